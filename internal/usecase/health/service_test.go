package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct {
	err error
}

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name       string
		db         error
		embedding  Checker
		rerank     Checker
		wantStatus Status
		wantChecks map[string]CheckResult
	}{
		{
			name:       "all healthy",
			embedding:  &mockChecker{},
			rerank:     &mockChecker{},
			wantStatus: Healthy,
			wantChecks: map[string]CheckResult{
				ComponentDatabase: CheckOK, ComponentEmbedding: CheckOK, ComponentRerank: CheckOK,
			},
		},
		{
			name:       "rerank failing degrades",
			embedding:  &mockChecker{},
			rerank:     &mockChecker{err: boom},
			wantStatus: Degraded,
			wantChecks: map[string]CheckResult{
				ComponentDatabase: CheckOK, ComponentEmbedding: CheckOK, ComponentRerank: CheckError,
			},
		},
		{
			name:       "database failing is unhealthy",
			db:         boom,
			embedding:  &mockChecker{},
			wantStatus: Unhealthy,
			wantChecks: map[string]CheckResult{
				ComponentDatabase: CheckError, ComponentEmbedding: CheckOK,
			},
		},
		{
			name:       "nil components skipped",
			wantStatus: Healthy,
			wantChecks: map[string]CheckResult{ComponentDatabase: CheckOK},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(&mockDBPinger{err: tt.db}, tt.embedding, tt.rerank)
			r := svc.Check(context.Background())

			if r.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", r.Status, tt.wantStatus)
			}
			if len(r.Checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", r.Checks, tt.wantChecks)
			}
			for k, v := range tt.wantChecks {
				if r.Checks[k] != v {
					t.Errorf("check %s = %q, want %q", k, r.Checks[k], v)
				}
			}
		})
	}
}
