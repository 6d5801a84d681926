// Package guard applies admission checks to move requests before they reach
// the supervisor.
package guard

import (
	"sync"
	"time"

	"github.com/bridgetrainer/playengine/internal/domain"
)

// GuardConfig holds admission limits. A zero RateLimitPerMinute disables
// rate limiting.
type GuardConfig struct {
	RateLimitPerMinute int
}

// Guard tracks per-client request counts.
type Guard struct {
	Config GuardConfig

	mu         sync.Mutex
	rateCounts map[string]*rateBucket
	now        func() time.Time
}

type rateBucket struct {
	count       int
	windowStart int64
}

// NewGuard creates a Guard with the given limits.
func NewGuard(cfg GuardConfig) *Guard {
	return &Guard{
		Config:     cfg,
		rateCounts: make(map[string]*rateBucket),
		now:        time.Now,
	}
}

// CheckRateLimit enforces a per-client fixed window of 60 seconds. Once the
// count reaches the configured limit, ErrRateLimitExceeded is returned until
// the window rolls over.
func (g *Guard) CheckRateLimit(client string) error {
	if g == nil || g.Config.RateLimitPerMinute <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().Unix()
	bucket, ok := g.rateCounts[client]
	if !ok {
		g.rateCounts[client] = &rateBucket{count: 1, windowStart: now}
		return nil
	}

	if now-bucket.windowStart >= 60 {
		bucket.count = 1
		bucket.windowStart = now
		return nil
	}

	if bucket.count >= g.Config.RateLimitPerMinute {
		return domain.ErrRateLimitExceeded
	}

	bucket.count++
	return nil
}

// Sweep drops buckets whose window has expired. It returns the number of
// clients still tracked.
func (g *Guard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().Unix()
	for client, b := range g.rateCounts {
		if now-b.windowStart >= 60 {
			delete(g.rateCounts, client)
		}
	}
	return len(g.rateCounts)
}
