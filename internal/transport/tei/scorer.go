// Package tei is the cross-encoder runtime for a text-embeddings-inference
// style /rerank endpoint serving models such as bge-reranker.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/metrics"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/model"
)

const runtimeName = "tei"

// Config holds the runtime connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Scorer implements model.PairScorer over HTTP.
type Scorer struct {
	baseURL   string
	apiKey    string
	model     string
	maxLength int
	client    *http.Client
	logger    *zap.Logger
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

type infoResponse struct {
	ModelID string `json:"model_id"`
}

// Loader returns a model.Loader that checks the runtime's /info endpoint.
func Loader(cfg Config) model.Loader[*Scorer] {
	return func(ctx context.Context, spec model.Spec) (*Scorer, error) {
		s := newScorer(cfg, spec)
		info, err := s.info(ctx)
		if err != nil {
			return nil, err
		}
		if info.ModelID != "" && spec.Model != "" && !strings.EqualFold(info.ModelID, spec.Model) {
			s.logger.Warn("Rerank runtime serves a different model than configured",
				zap.String("configured", spec.Model),
				zap.String("served", info.ModelID),
			)
		}
		s.logger.Info("Rerank model loaded",
			zap.String("model", spec.Model),
			zap.String("device", spec.Device.String()),
		)
		return s, nil
	}
}

func newScorer(cfg Config, spec model.Spec) *Scorer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     spec.Model,
		maxLength: spec.MaxLength,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// ScorePairs implements model.PairScorer. Scores are returned in passage order.
func (s *Scorer) ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	start := time.Now()
	var hits []rerankHit
	err := s.do(ctx, http.MethodPost, "/rerank", rerankRequest{
		Query:     query,
		Texts:     passages,
		RawScores: false,
		Truncate:  s.maxLength > 0,
	}, &hits)
	if err != nil {
		metrics.RerankRequestsTotal.WithLabelValues(runtimeName, s.model, "error").Inc()
		return nil, err
	}

	scores := make([]float64, len(passages))
	filled := make([]bool, len(passages))
	for _, h := range hits {
		if h.Index < 0 || h.Index >= len(passages) || filled[h.Index] {
			metrics.RerankRequestsTotal.WithLabelValues(runtimeName, s.model, "error").Inc()
			return nil, fmt.Errorf("rerank response has bad index %d: %w", h.Index, domain.ErrRerankProviderError)
		}
		scores[h.Index] = h.Score
		filled[h.Index] = true
	}
	if len(hits) != len(passages) {
		metrics.RerankRequestsTotal.WithLabelValues(runtimeName, s.model, "error").Inc()
		return nil, fmt.Errorf("rerank response has %d scores for %d passages: %w",
			len(hits), len(passages), domain.ErrRerankProviderError)
	}

	metrics.RerankRequestsTotal.WithLabelValues(runtimeName, s.model, "success").Inc()
	metrics.RerankRequestDuration.WithLabelValues(runtimeName, s.model).Observe(time.Since(start).Seconds())
	return scores, nil
}

// HealthCheck verifies runtime availability.
func (s *Scorer) HealthCheck(ctx context.Context) error {
	_, err := s.info(ctx)
	return err
}

func (s *Scorer) info(ctx context.Context) (infoResponse, error) {
	var info infoResponse
	if err := s.do(ctx, http.MethodGet, "/info", nil, &info); err != nil {
		return infoResponse{}, fmt.Errorf("runtime info: %w", err)
	}
	return info, nil
}

func (s *Scorer) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, domain.ErrRerankProviderError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s returned %d: %s: %w",
			method, path, resp.StatusCode, strings.TrimSpace(string(data)), domain.ErrRerankProviderError)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w: %w", domain.ErrRerankProviderError, err)
	}
	return nil
}
