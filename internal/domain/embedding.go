package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
// Vectors are L2-normalized.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// HealthChecker verifies model runtime availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
