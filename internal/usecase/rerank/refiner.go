package rerank

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain/search/result"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/metrics"
)

// RefinerConfig bounds the second ranking stage.
type RefinerConfig struct {
	Enabled         bool
	CandidateWindow int // K: prefix of the similarity order that gets scored
	FinalWindow     int // N: passages kept after scoring
}

// Refiner reorders each result's top candidates by relevance score.
// It never mutates its input and fails open per result.
type Refiner struct {
	scorer PassageScorer
	cfg    RefinerConfig
	logger *zap.Logger
}

// NewRefiner creates a refiner. Windows below 1 are raised to 1.
func NewRefiner(scorer PassageScorer, cfg RefinerConfig, logger *zap.Logger) *Refiner {
	cfg.CandidateWindow = max(cfg.CandidateWindow, 1)
	cfg.FinalWindow = max(cfg.FinalWindow, 1)
	return &Refiner{scorer: scorer, cfg: cfg, logger: logger}
}

// Enabled reports whether refinement runs.
func (r *Refiner) Enabled() bool { return r.cfg.Enabled }

// Refine returns a new slice with every result refined. A result whose
// scoring fails is returned in its original order.
func (r *Refiner) Refine(ctx context.Context, results []result.Ranked) []result.Ranked {
	out := make([]result.Ranked, len(results))
	copy(out, results)
	if !r.cfg.Enabled {
		return out
	}

	for i, res := range results {
		refined, err := r.refineOne(ctx, res)
		if err != nil {
			metrics.RefineFallbacksTotal.Inc()
			r.logger.Warn("Rerank skipped, keeping similarity order",
				zap.String("query", res.Query()),
				zap.Int("passages", res.Len()),
				zap.Error(err),
			)
			continue
		}
		out[i] = refined
	}
	return out
}

type scored struct {
	passage result.Passage
	score   float64
}

func (r *Refiner) refineOne(ctx context.Context, res result.Ranked) (result.Ranked, error) {
	if res.Query() == "" || res.Len() == 0 {
		return res, nil
	}

	k := min(r.cfg.CandidateWindow, res.Len())
	candidates := res.Passages()[:k]
	texts := make([]string, k)
	for i, p := range candidates {
		texts[i] = p.Text()
	}

	scores, err := r.scorer.Score(ctx, res.Query(), texts)
	if err != nil {
		return result.Ranked{}, err
	}
	if len(scores) != k {
		return result.Ranked{}, fmt.Errorf("%w: got %d scores for %d candidates",
			domain.ErrRerankProviderError, len(scores), k)
	}

	ranked := make([]scored, k)
	for i, p := range candidates {
		ranked[i] = scored{passage: p, score: scores[i]}
	}
	// Stable: equal scores keep similarity order.
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	n := max(1, min(r.cfg.FinalWindow, k))
	final := make([]result.Passage, n)
	for i := range final {
		final[i] = ranked[i].passage
	}

	if ce := r.logger.Check(zap.DebugLevel, "Reranked"); ce != nil {
		ce.Write(
			zap.String("query", res.Query()),
			zap.Int("candidates", k),
			zap.Strings("before", passageIDs(candidates)),
			zap.Strings("after", passageIDs(final)),
		)
	}
	return res.WithPassages(final), nil
}

func passageIDs(ps []result.Passage) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID()
	}
	return ids
}
