package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
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

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	index     IndexChecker
	indexName string
	embedding EmbeddingChecker
}

// New creates a Service. index and embedding can be nil.
func New(store StorePinger, index IndexChecker, indexName string, embedding EmbeddingChecker) *Service {
	return &Service{store: store, index: index, indexName: indexName, embedding: embedding}
}

// Check runs health checks against all components. A missing search index
// degrades but does not fail the report: matching still answers, with
// estimated distances.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	storeOK := s.store.Ping(ctx) == nil
	if storeOK {
		checks["store"] = CheckOK
	} else {
		checks["store"] = CheckError
	}

	if s.index != nil && storeOK {
		exists, err := s.index.IndexExists(ctx, s.indexName)
		if err == nil && exists {
			checks["search_index"] = CheckOK
		} else {
			checks["search_index"] = CheckError
		}
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if !storeOK {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}
