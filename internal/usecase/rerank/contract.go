package rerank

import "context"

// PassageScorer returns one relevance score per passage, in order.
type PassageScorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}
