// Package rerank holds the relevance scorer and the two-stage result refiner.
package rerank

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/device"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/model"
)

// Scorer is the relevance scorer: a cross-encoder runtime behind a
// single-load handle, serialized per device.
type Scorer struct {
	handle *model.Handle[model.PairScorer]
	guards *device.Guards
	logger *zap.Logger
}

// NewScorer creates a scorer. The model is not loaded until Load or the first Score.
func NewScorer(handle *model.Handle[model.PairScorer], guards *device.Guards, logger *zap.Logger) *Scorer {
	return &Scorer{handle: handle, guards: guards, logger: logger}
}

// Load forces the model load. Used at startup so that a load failure is fatal.
func (s *Scorer) Load(ctx context.Context) error {
	_, err := s.handle.Get(ctx)
	return err
}

// Score implements PassageScorer. Empty passages never touch the model.
func (s *Scorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}

	rt, err := s.handle.Get(ctx)
	if err != nil {
		return nil, err
	}

	spec := s.handle.Spec()
	var scores []float64
	err = s.guards.Do(ctx, spec.Device, func() error {
		var scoreErr error
		scores, scoreErr = rt.ScorePairs(ctx, query, passages)
		if rc, ok := rt.(model.Reclaimer); ok {
			if err := rc.Reclaim(ctx); err != nil {
				s.logger.Warn("Device memory reclaim failed",
					zap.String("device", spec.Device.Name), zap.Error(err))
			}
		}
		return scoreErr
	})
	if err != nil {
		return nil, fmt.Errorf("score %d passages: %w", len(passages), err)
	}
	if len(scores) != len(passages) {
		return nil, fmt.Errorf("%w: got %d scores for %d passages",
			domain.ErrRerankProviderError, len(scores), len(passages))
	}
	return scores, nil
}

// HealthCheck reports whether the model is loaded and, if the runtime
// supports it, reachable.
func (s *Scorer) HealthCheck(ctx context.Context) error {
	if !s.handle.Loaded() {
		return fmt.Errorf("%w: %s not loaded", domain.ErrModelLoad, s.handle.Spec().Model)
	}
	rt, err := s.handle.Get(ctx)
	if err != nil {
		return err
	}
	if hc, ok := rt.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // runtime errors carry their own context
	}
	return nil
}
