package rerank

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/device"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/domain"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/model"
)

var cpuSpec = model.Spec{
	Model:  "bge-reranker",
	Device: device.Descriptor{Kind: device.CPU, Name: "cpu", Precision: device.FP32},
}

type fakeRuntime struct {
	calls    atomic.Int32
	reclaims atomic.Int32
	scores   []float64
	err      error
}

func (f *fakeRuntime) ScorePairs(_ context.Context, _ string, _ []string) ([]float64, error) {
	f.calls.Add(1)
	return f.scores, f.err
}

func (f *fakeRuntime) Reclaim(_ context.Context) error {
	f.reclaims.Add(1)
	return nil
}

func newTestScorer(rt *fakeRuntime, loads *atomic.Int32, loadErr error) *Scorer {
	h := model.NewHandle(cpuSpec, func(_ context.Context, _ model.Spec) (model.PairScorer, error) {
		loads.Add(1)
		if loadErr != nil {
			return nil, loadErr
		}
		return rt, nil
	})
	return NewScorer(h, device.NewGuards(), zap.NewNop())
}

func TestScorer_EmptyPassagesSkipModel(t *testing.T) {
	var loads atomic.Int32
	rt := &fakeRuntime{}
	s := newTestScorer(rt, &loads, nil)

	scores, err := s.Score(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("scores = %v, want empty", scores)
	}
	if loads.Load() != 0 || rt.calls.Load() != 0 {
		t.Errorf("loads=%d calls=%d, want 0/0", loads.Load(), rt.calls.Load())
	}
}

func TestScorer_ScoresAndReclaims(t *testing.T) {
	var loads atomic.Int32
	rt := &fakeRuntime{scores: []float64{0.2, 0.9}}
	s := newTestScorer(rt, &loads, nil)

	for range 3 {
		scores, err := s.Score(context.Background(), "q", []string{"a", "b"})
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if scores[0] != 0.2 || scores[1] != 0.9 {
			t.Errorf("scores = %v", scores)
		}
	}
	if loads.Load() != 1 {
		t.Errorf("loads = %d, want 1", loads.Load())
	}
	if rt.calls.Load() != 3 || rt.reclaims.Load() != 3 {
		t.Errorf("calls=%d reclaims=%d, want 3/3", rt.calls.Load(), rt.reclaims.Load())
	}
}

func TestScorer_LengthMismatch(t *testing.T) {
	var loads atomic.Int32
	s := newTestScorer(&fakeRuntime{scores: []float64{0.5}}, &loads, nil)

	_, err := s.Score(context.Background(), "q", []string{"a", "b"})
	if !errors.Is(err, domain.ErrRerankProviderError) {
		t.Errorf("err = %v, want ErrRerankProviderError", err)
	}
}

func TestScorer_RuntimeError(t *testing.T) {
	var loads atomic.Int32
	rt := &fakeRuntime{err: domain.ErrRerankProviderError}
	s := newTestScorer(rt, &loads, nil)

	_, err := s.Score(context.Background(), "q", []string{"a"})
	if !errors.Is(err, domain.ErrRerankProviderError) {
		t.Errorf("err = %v", err)
	}
	if rt.reclaims.Load() != 1 {
		t.Errorf("reclaims = %d, want 1 even on failure", rt.reclaims.Load())
	}
}

func TestScorer_LoadFailure(t *testing.T) {
	var loads atomic.Int32
	s := newTestScorer(&fakeRuntime{}, &loads, errors.New("weights missing"))

	if err := s.Load(context.Background()); !errors.Is(err, domain.ErrModelLoad) {
		t.Fatalf("Load err = %v, want ErrModelLoad", err)
	}
	if _, err := s.Score(context.Background(), "q", []string{"a"}); !errors.Is(err, domain.ErrModelLoad) {
		t.Errorf("Score err = %v, want ErrModelLoad", err)
	}
	if loads.Load() != 1 {
		t.Errorf("loads = %d, want 1", loads.Load())
	}
}

func TestScorer_HealthCheck(t *testing.T) {
	var loads atomic.Int32
	s := newTestScorer(&fakeRuntime{}, &loads, nil)

	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("expected error before load")
	}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
