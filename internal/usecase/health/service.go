// Package health aggregates readiness of the datastore and the model components.
package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a model component is failing; requests may still succeed.
	Degraded Status = "degraded"
	// Unhealthy indicates the datastore is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names reported by Check.
const (
	ComponentDatabase  = "database"
	ComponentEmbedding = "embedding"
	ComponentRerank    = "rerank"
)

const checkTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db         DBPinger
	components map[string]Checker
}

// New creates a Service. Nil components are skipped.
func New(db DBPinger, embedding, rerank Checker) *Service {
	components := make(map[string]Checker, 2)
	if embedding != nil {
		components[ComponentEmbedding] = embedding
	}
	if rerank != nil {
		components[ComponentRerank] = rerank
	}
	return &Service{db: db, components: components}
}

// Check runs every health check concurrently, each bounded by a short timeout.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, len(s.components)+1)
	)
	run := func(name string, fn func(context.Context) error) {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		res := CheckOK
		if err := fn(cctx); err != nil {
			res = CheckError
		}
		mu.Lock()
		checks[name] = res
		mu.Unlock()
	}

	wg.Add(1 + len(s.components))
	go run(ComponentDatabase, s.db.Ping)
	for name, c := range s.components {
		go run(name, c.HealthCheck)
	}
	wg.Wait()

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[ComponentDatabase] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}
