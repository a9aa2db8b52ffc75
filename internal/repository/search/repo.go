package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campusfound/matchd/internal/db"
	"github.com/campusfound/matchd/internal/domain"
	"github.com/campusfound/matchd/internal/metrics"
)

// Synthetic distance parameters for the degraded path (backing index
// returned a hit without a distance value). Deterministic by rank: never
// equal at different ranks, never random, so confidence stays monotonic
// and a re-run reproduces the same numbers.
const (
	syntheticBase = 0.08
	syntheticStep = 0.15
)

// store is the consumer interface for KNN retrieval (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo retrieves nearest found items by cosine distance over the vector index.
type Repo struct {
	store  store
	prefix string
	logger *zap.Logger
}

// New creates a retriever over the found-item pool.
func New(s store, prefix string, logger *zap.Logger) *Repo {
	return &Repo{store: s, prefix: prefix, logger: logger}
}

// Nearest returns up to limit found items ordered by ascending cosine
// distance to the query vector, with prefilters applied as exact-match
// conjunctions before the similarity search.
func (r *Repo) Nearest(
	ctx context.Context, vector []float32, pf domain.Prefilters, limit int,
) ([]domain.Candidate, error) {
	indexName := r.prefix + string(domain.CollectionFound) + ":idx"

	q := &db.KNNQuery{
		IndexName:  indexName,
		Vector:     vector,
		TagFilters: tagFilters(pf),
		K:          limit,
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) || errors.Is(err, db.ErrSearchUnsupported) {
			return nil, fmt.Errorf(
				"%w: vector index %q is not provisioned (create it and retry)",
				domain.ErrIndexUnavailable, indexName,
			)
		}
		return nil, fmt.Errorf("knn search: %w", err)
	}

	return r.candidates(sr), nil
}

func tagFilters(pf domain.Prefilters) map[string]string {
	if pf.IsEmpty() {
		return nil
	}
	filters := make(map[string]string, 2)
	if pf.Category != "" {
		filters["category"] = pf.Category
	}
	if pf.Campus != "" {
		filters["campus"] = pf.Campus
	}
	return filters
}

// candidates converts store entries into domain candidates, synthesizing a
// rank-based distance for entries the index returned without one.
func (r *Repo) candidates(sr *db.SearchResult) []domain.Candidate {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	keyPrefix := r.prefix + string(domain.CollectionFound) + ":"
	out := make([]domain.Candidate, 0, len(sr.Entries))

	for rank, entry := range sr.Entries {
		c := domain.Candidate{
			FoundID:  strings.TrimPrefix(entry.Key, keyPrefix),
			Distance: entry.Distance,
		}

		if !entry.HasDistance {
			// Degraded mode: estimate strictly increasing distances from
			// rank so downstream confidence stays ordered.
			c.Distance = syntheticDistance(rank)
			c.Synthetic = true
			metrics.SyntheticDistanceTotal.Inc()
			r.logger.Warn("index omitted distance, synthesizing from rank",
				zap.String("found_id", c.FoundID),
				zap.Int("rank", rank),
				zap.Float64("synthetic_distance", c.Distance),
			)
		}

		out = append(out, c)
	}

	return out
}

func syntheticDistance(rank int) float64 {
	return syntheticBase + syntheticStep*float64(rank)
}
