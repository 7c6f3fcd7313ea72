// Package openai is the embedding runtime for OpenAI-compatible servers
// (OpenAI, text-embeddings-inference, vLLM, Ollama serving BGE models).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/metrics"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/model"
)

const runtimeName = "openai"

// Config holds the runtime connection settings.
type Config struct {
	APIKey            string
	BaseURL           string
	Dimensions        int     // requested output dimension; 0 = model default
	RequestsPerSecond float64 // 0 = unlimited
	Logger            *zap.Logger
}

// Encoder implements model.Encoder over the embeddings endpoint.
type Encoder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	maxLength  int
	dim        int // observed at load
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Loader returns a model.Loader that connects to the runtime and performs a
// probe embedding, so an unreachable server or unknown model fails at startup.
func Loader(cfg Config) model.Loader[*Encoder] {
	return func(ctx context.Context, spec model.Spec) (*Encoder, error) {
		e := newEncoder(cfg, spec)
		vecs, err := e.Encode(ctx, []string{"ping"})
		if err != nil {
			return nil, fmt.Errorf("probe embedding: %w", err)
		}
		e.dim = len(vecs[0])
		e.logger.Info("Embedding model loaded",
			zap.String("model", spec.Model),
			zap.String("device", spec.Device.String()),
			zap.Int("dimensions", e.dim),
		)
		return e, nil
	}
}

func newEncoder(cfg Config, spec model.Spec) *Encoder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Encoder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(spec.Model),
		dimensions: cfg.Dimensions,
		maxLength:  spec.MaxLength,
		limiter:    limiter,
		logger:     logger,
	}
}

// Dimensions returns the vector size observed when the model was loaded.
func (e *Encoder) Dimensions() int { return e.dim }

// Encode implements model.Encoder. Vectors come back in input order.
func (e *Encoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = truncate(t, e.maxLength)
	}

	req := openai.EmbeddingRequest{
		Input:          input,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	modelName := string(e.model)
	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(runtimeName, modelName, "error").Inc()
		return nil, parseAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(runtimeName, modelName, "error").Inc()
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs: %w",
			len(resp.Data), len(texts), domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(runtimeName, modelName, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(runtimeName, modelName).Observe(time.Since(start).Seconds())
	metrics.EmbeddingTextsTotal.WithLabelValues(runtimeName, modelName).Add(float64(len(texts)))

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// HealthCheck verifies API availability via ListModels.
func (e *Encoder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || len(s) <= maxRunes {
		return s
	}
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes])
}

// parseAPIError extracts a readable message and wraps domain.ErrEmbeddingProviderError.
func parseAPIError(err error) error {
	wrap := domain.ErrEmbeddingProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("embedding request: %w", err)
	}
	return fmt.Errorf("embedding request failed: %w: %w", wrap, err)
}

// extractDetail reads the "detail" (TEI, vLLM) or "error" field of a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	if parsed.Detail != "" {
		return parsed.Detail
	}
	return parsed.Error
}
