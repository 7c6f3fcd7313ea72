package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
)

// Handle is a single-initialization model resource. The first Get starts the
// load; every concurrent caller waits for that one load. A failed load is
// sticky: the handle never retries.
type Handle[T any] struct {
	spec Spec
	load Loader[T]

	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewHandle creates an unloaded handle.
func NewHandle[T any](spec Spec, load Loader[T]) *Handle[T] {
	return &Handle[T]{spec: spec, load: load, done: make(chan struct{})}
}

// Spec returns the model spec this handle is bound to.
func (h *Handle[T]) Spec() Spec { return h.spec }

// Get returns the loaded runtime, loading it on first use. The load itself is
// detached from ctx so that one cancelled caller does not poison the handle;
// ctx only bounds how long this caller waits.
func (h *Handle[T]) Get(ctx context.Context) (T, error) {
	h.once.Do(func() {
		go h.run(context.WithoutCancel(ctx))
	})
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err() //nolint:wrapcheck // cancellation is returned as-is
	}
}

// Loaded reports whether a load has completed successfully.
func (h *Handle[T]) Loaded() bool {
	select {
	case <-h.done:
		return h.err == nil
	default:
		return false
	}
}

func (h *Handle[T]) run(ctx context.Context) {
	defer close(h.done)
	v, err := h.load(ctx, h.spec)
	if err != nil {
		h.err = fmt.Errorf("%w: %s on %s: %w", domain.ErrModelLoad, h.spec.Model, h.spec.Device.Name, err)
		return
	}
	h.value = v
}
