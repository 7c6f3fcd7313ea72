package retrieval

import (
	"context"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/model"
)

// Encoder produces embedding vectors, one per text, in order.
// Vectors need not be normalized.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Scorer jointly scores (query, passage) pairs, one score per passage, in order.
// Higher is more relevant.
type Scorer interface {
	ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error)
}

// staticLoader hands an already constructed runtime to a model handle.
func staticLoader[T any](rt T) model.Loader[T] {
	return func(context.Context, model.Spec) (T, error) {
		return rt, nil
	}
}
