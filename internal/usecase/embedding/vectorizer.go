// Package embedding is the vectorizer: batched, device-guarded encoding
// with L2 normalization and a query cache.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/device"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/model"
)

// DefaultBatchSize is used when no batch size is configured.
const DefaultBatchSize = 16

// QueryCache stores query vectors by exact text.
type QueryCache interface {
	Get(text string) ([]float32, bool)
	Put(text string, vec []float32)
}

// Vectorizer implements domain.Embedder on top of a model handle.
type Vectorizer struct {
	handle    *model.Handle[model.Encoder]
	cache     QueryCache
	guards    *device.Guards
	batchSize int
	logger    *zap.Logger
}

// NewVectorizer creates a vectorizer. cache may be nil.
func NewVectorizer(
	handle *model.Handle[model.Encoder], cache QueryCache,
	guards *device.Guards, batchSize int, logger *zap.Logger,
) *Vectorizer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Vectorizer{
		handle:    handle,
		cache:     cache,
		guards:    guards,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Load forces the model load. Used at startup so that a load failure is fatal.
func (v *Vectorizer) Load(ctx context.Context) error {
	_, err := v.handle.Get(ctx)
	return err
}

// EmbedOne returns the normalized vector for a query, served from the cache when possible.
func (v *Vectorizer) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if v.cache != nil {
		if vec, ok := v.cache.Get(text); ok {
			return vec, nil
		}
	}

	vecs, err := v.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if v.cache != nil {
		v.cache.Put(text, vecs[0])
	}
	return vecs[0], nil
}

// EmbedMany returns one normalized vector per text, in order. Texts are
// encoded in batches; device memory is reclaimed after every batch.
func (v *Vectorizer) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	enc, err := v.handle.Get(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += v.batchSize {
		end := min(offset+v.batchSize, len(texts))
		batch := texts[offset:end]

		vecs, err := v.encodeBatch(ctx, enc, batch)
		if err != nil {
			v.logger.Error("Embedding batch failed",
				zap.String("model", v.handle.Spec().Model),
				zap.Int("batch_start", offset),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			return nil, &domain.EmbedError{
				BatchStart: offset,
				BatchSize:  len(batch),
				FirstText:  batch[0],
				Err:        err,
			}
		}
		for _, vec := range vecs {
			out = append(out, Normalize(vec))
		}
	}

	v.logger.Debug("Embedding completed",
		zap.String("model", v.handle.Spec().Model),
		zap.Int("texts", len(texts)),
		zap.Int("dimensions", len(out[0])),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func (v *Vectorizer) encodeBatch(ctx context.Context, enc model.Encoder, batch []string) ([][]float32, error) {
	spec := v.handle.Spec()
	var vecs [][]float32
	err := v.guards.Do(ctx, spec.Device, func() error {
		var encErr error
		vecs, encErr = enc.Encode(ctx, batch)
		if rc, ok := enc.(model.Reclaimer); ok {
			if err := rc.Reclaim(ctx); err != nil {
				v.logger.Warn("Device memory reclaim failed",
					zap.String("device", spec.Device.Name), zap.Error(err))
			}
		}
		return encErr
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts",
			domain.ErrEmbeddingProviderError, len(vecs), len(batch))
	}
	return vecs, nil
}

// Dimensions returns the vector size of the loaded model. Runtimes that
// know their dimension report it directly; others are probed with one embed.
func (v *Vectorizer) Dimensions(ctx context.Context) (int, error) {
	enc, err := v.handle.Get(ctx)
	if err != nil {
		return 0, err
	}
	if d, ok := enc.(interface{ Dimensions() int }); ok && d.Dimensions() > 0 {
		return d.Dimensions(), nil
	}
	vecs, err := v.EmbedMany(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, fmt.Errorf("probe dimension: %w", err)
	}
	return len(vecs[0]), nil
}

// HealthCheck reports whether the model is loaded and, if the runtime
// supports it, reachable.
func (v *Vectorizer) HealthCheck(ctx context.Context) error {
	if !v.handle.Loaded() {
		return fmt.Errorf("%w: %s not loaded", domain.ErrModelLoad, v.handle.Spec().Model)
	}
	enc, err := v.handle.Get(ctx)
	if err != nil {
		return err
	}
	if hc, ok := enc.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // runtime errors carry their own context
	}
	return nil
}

// Normalize returns vec scaled to unit L2 norm in a new slice.
// A zero vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(vec))
	if sum == 0 {
		copy(out, vec)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range vec {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
