// Package engine defines the decision-engine contract and the built-in engines
// that answer "which card does this seat play now?".
package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/bridgetrainer/playengine/internal/domain"
)

// Engine chooses a card for seat. Implementations must not mutate snap and
// should return promptly once ctx is done.
type Engine interface {
	Name() string
	Choose(ctx context.Context, snap *domain.Snapshot, seat domain.Seat) (domain.Card, error)
}

// Func adapts a plain function to the Engine interface.
type Func struct {
	EngineName string
	Fn         func(ctx context.Context, snap *domain.Snapshot, seat domain.Seat) (domain.Card, error)
}

func (f Func) Name() string { return f.EngineName }

func (f Func) Choose(ctx context.Context, snap *domain.Snapshot, seat domain.Seat) (domain.Card, error) {
	return f.Fn(ctx, snap, seat)
}

// Registry is a thread-safe set of engines addressed by name.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// NewDefaultRegistry returns a registry holding every built-in engine.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, e := range []Engine{
		Lowest{},
		Heuristic{},
		NewMinimax(DefaultMinimaxTricks),
		NewSolver(),
	} {
		// Built-in names are distinct.
		_ = r.Register(e)
	}
	return r
}

// Register adds an engine. Returns an ErrConfigInvalid-coded error if the
// name is already taken.
func (r *Registry) Register(e Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[e.Name()]; exists {
		return domain.WrapEngineError(domain.ErrConfigInvalid.Code, "engine already registered: "+e.Name(), nil)
	}
	r.engines[e.Name()] = e
	return nil
}

// Get returns the named engine, or ErrUnknownEngine.
func (r *Registry) Get(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.engines[name]
	if !ok {
		return nil, domain.WrapEngineError(domain.ErrUnknownEngine.Code, domain.ErrUnknownEngine.Message+": "+name, nil)
	}
	return e, nil
}

// List returns registered engine names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
