package runner

import (
	"context"
	"time"

	"github.com/bridgetrainer/playengine/internal/domain"
)

// Pool bounds the number of worker processes alive at once across all
// requests.
type Pool struct {
	slots          chan struct{}
	acquireTimeout time.Duration
}

// NewPool creates a pool of size slots. acquireTimeout caps how long Acquire
// waits for a slot; zero means wait as long as the caller's context allows.
func NewPool(size int, acquireTimeout time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		slots:          make(chan struct{}, size),
		acquireTimeout: acquireTimeout,
	}
}

// Acquire reserves a slot. The returned release func must be called exactly
// once. Returns ErrPoolExhausted when no slot frees up in time.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	select {
	case p.slots <- struct{}{}:
		return p.release, nil
	default:
	}

	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}
	select {
	case p.slots <- struct{}{}:
		return p.release, nil
	case <-ctx.Done():
		return nil, domain.WrapEngineError(domain.ErrPoolExhausted.Code, domain.ErrPoolExhausted.Message, ctx.Err())
	}
}

func (p *Pool) release() { <-p.slots }

// Size returns the pool capacity.
func (p *Pool) Size() int { return cap(p.slots) }

// InUse returns the number of slots currently held.
func (p *Pool) InUse() int { return len(p.slots) }
