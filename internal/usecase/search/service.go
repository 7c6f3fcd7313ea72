// Package search is the retrieval orchestrator: embed, nearest-neighbor
// search, refine.
package search

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/filter"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/request"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
)

// DefaultParallelism bounds how many queries of one batch run at once.
const DefaultParallelism = 8

// Service answers batches of queries.
type Service struct {
	backend     Backend
	embed       Embedder
	refiner     Refiner
	parallelism int
}

// New creates a search service.
func New(backend Backend, embed Embedder, refiner Refiner) *Service {
	return &Service{backend: backend, embed: embed, refiner: refiner, parallelism: DefaultParallelism}
}

// Query runs every query and returns one ranked result per query, in input
// order. Any embedding, filter or backend failure fails the whole batch;
// refinement failures do not.
func (s *Service) Query(ctx context.Context, queries []request.Query) ([]result.Ranked, error) {
	if len(queries) == 0 {
		return []result.Ranked{}, nil
	}

	// Translate up front so that a bad filter rejects the batch before any model call.
	predicates := make([]filter.Expression, len(queries))
	for i, q := range queries {
		expr, err := filter.Translate(q.Filter())
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		predicates[i] = expr
	}

	results := make([]result.Ranked, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, q := range queries {
		g.Go(func() error {
			ranked, err := s.queryOne(gctx, q, predicates[i])
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = ranked
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // already wrapped per query
	}

	return s.refiner.Refine(ctx, results), nil
}

func (s *Service) queryOne(ctx context.Context, q request.Query, predicate filter.Expression) (result.Ranked, error) {
	vec, err := s.embed.EmbedOne(ctx, q.Text())
	if err != nil {
		return result.Ranked{}, fmt.Errorf("vectorize query: %w", err)
	}

	passages, err := s.backend.NearestNeighbors(ctx, vec, predicate, q.TopK())
	if err != nil {
		return result.Ranked{}, fmt.Errorf("nearest neighbors: %w", err)
	}
	return result.NewRanked(q.Text(), passages), nil
}

// Refine runs the refiner standalone over already retrieved results.
func (s *Service) Refine(ctx context.Context, results []result.Ranked) []result.Ranked {
	return s.refiner.Refine(ctx, results)
}
