package search

import (
	"context"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/filter"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
)

// Backend is the nearest-neighbor capability of the vector store.
type Backend interface {
	NearestNeighbors(
		ctx context.Context, vector []float32, predicate filter.Expression, limit int,
	) ([]result.Passage, error)
}

// Embedder vectorizes a query, cache-aware.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Refiner reorders a batch of results by relevance.
type Refiner interface {
	Refine(ctx context.Context, results []result.Ranked) []result.Ranked
}
