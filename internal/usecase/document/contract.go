package document

import (
	"context"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/chunk"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/filter"
)

// Store is the chunk persistence contract of the vector store.
type Store interface {
	Upsert(ctx context.Context, chunks []chunk.Chunk) error
	DeleteByDocumentIDs(ctx context.Context, documentIDs []string) error
	DeleteByFilter(ctx context.Context, predicate filter.Expression) error
	DeleteAll(ctx context.Context) error
	// Chunks returns every stored chunk matching predicate, without vectors.
	Chunks(ctx context.Context, predicate filter.Expression) ([]chunk.Chunk, error)
}

// Embedder vectorizes chunk texts in bulk.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}
