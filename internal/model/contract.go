// Package model owns model handles: one lazily loaded runtime per model type,
// bound to one device for the process lifetime.
package model

import (
	"context"
	"fmt"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/device"
)

// Spec selects a model and the device it runs on.
type Spec struct {
	Model     string
	Device    device.Descriptor
	MaxLength int // max input length in characters; 0 = unlimited
}

// Encoder produces raw (unnormalized) embedding vectors, one per text, in order.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// PairScorer jointly scores (query, passage) pairs, one score per passage, in order.
type PairScorer interface {
	ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Reclaimer is implemented by runtimes holding device memory that can be
// released between batches.
type Reclaimer interface {
	Reclaim(ctx context.Context) error
}

// Loader creates a runtime for a spec. It runs at most once per Handle.
type Loader[T any] func(ctx context.Context, spec Spec) (T, error)

// Widen adapts a loader of a concrete runtime to a loader of an interface the
// runtime implements.
func Widen[T, U any](load Loader[T]) Loader[U] {
	return func(ctx context.Context, spec Spec) (U, error) {
		var zero U
		v, err := load(ctx, spec)
		if err != nil {
			return zero, err
		}
		u, ok := any(v).(U)
		if !ok {
			return zero, fmt.Errorf("runtime %T does not implement %T", v, (*U)(nil))
		}
		return u, nil
	}
}
