package device

import (
	"context"
	"strings"
	"sync"
)

// Guards serializes calls per device. One instance is shared by every runtime
// in the process so that the embedding and rerank models do not interleave
// on the same accelerator.
type Guards struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewGuards creates an empty guard registry.
func NewGuards() *Guards {
	return &Guards{locks: make(map[string]chan struct{})}
}

// Do runs fn while holding the device's guard. Reentrant devices run unguarded.
// Waiting for the guard honors ctx.
func (g *Guards) Do(ctx context.Context, d Descriptor, fn func() error) error {
	if d.Reentrant() {
		return fn()
	}
	sem := g.lockFor(guardKey(d.Name))
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // cancellation is returned as-is
	}
	defer func() { <-sem }()
	return fn()
}

// guardKey maps aliases of one physical device onto a single key:
// a bare "cuda" is the runtime's default ordinal, cuda:0.
func guardKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "cuda" {
		return "cuda:0"
	}
	return name
}

func (g *Guards) lockFor(name string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	sem, ok := g.locks[name]
	if !ok {
		sem = make(chan struct{}, 1)
		g.locks[name] = sem
	}
	return sem
}
