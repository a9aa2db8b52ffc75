package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campusfound/matchd/internal/domain"
	"github.com/campusfound/matchd/internal/metrics"
)

// Service orchestrates a matching run: load the request, ensure its
// embedding, retrieve nearest found items, apply the distance threshold,
// rank, and reconcile the persisted match set.
type Service struct {
	items     ItemRepository
	ensurer   EmbeddingEnsurer
	retriever Retriever
	writer    MatchWriter
	defaults  Defaults
	logger    *zap.Logger
}

// Result is the outcome of one matching run.
type Result struct {
	RequestID string
	Matches   []domain.Match
	Duration  time.Duration
}

// New creates a matching service.
func New(
	items ItemRepository,
	ensurer EmbeddingEnsurer,
	retriever Retriever,
	writer MatchWriter,
	defaults Defaults,
	logger *zap.Logger,
) *Service {
	return &Service{
		items:     items,
		ensurer:   ensurer,
		retriever: retriever,
		writer:    writer,
		defaults:  defaults,
		logger:    logger,
	}
}

// MatchRequest runs the full pipeline for one request. The persisted
// match set is replaced wholesale: candidates that fell out since the
// previous run disappear, including any review status they carried.
func (s *Service) MatchRequest(ctx context.Context, requestID string, opts Options) (Result, error) {
	opts = opts.normalize(s.defaults)
	start := time.Now()

	res, err := s.matchRequest(ctx, requestID, opts)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.MatchRunsTotal.WithLabelValues(opts.Origin, status).Inc()
	metrics.MatchRunDuration.WithLabelValues(opts.Origin).Observe(duration.Seconds())
	if err != nil {
		return Result{}, err
	}

	metrics.MatchesPersisted.Observe(float64(len(res.Matches)))
	res.Duration = duration

	s.logger.Info("Matching run completed",
		zap.String("request_id", requestID),
		zap.String("origin", opts.Origin),
		zap.Int("matches", len(res.Matches)),
		zap.Duration("duration", duration))

	return res, nil
}

func (s *Service) matchRequest(ctx context.Context, requestID string, opts Options) (Result, error) {
	request, err := s.items.Get(ctx, domain.CollectionRequests, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			return Result{}, fmt.Errorf("request %s: %w", requestID, domain.ErrRequestNotFound)
		}
		return Result{}, fmt.Errorf("load request %s: %w", requestID, err)
	}

	request, err = s.ensurer.EnsureItem(ctx, domain.CollectionRequests, &request)
	if err != nil {
		return Result{}, err
	}

	candidates, err := s.retriever.Nearest(ctx, request.Embedding, opts.Prefilters, opts.Limit)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve candidates for %s: %w", requestID, err)
	}

	matches := buildMatches(candidates, *opts.DistanceThreshold, time.Now())

	if err := s.writer.Replace(ctx, requestID, matches); err != nil {
		return Result{}, fmt.Errorf("reconcile matches for %s: %w", requestID, err)
	}

	return Result{RequestID: requestID, Matches: matches}, nil
}

// buildMatches filters candidates by the distance threshold and assigns
// confidence, rank, and the initial review status. Rank is the position
// in the surviving ascending-distance order, so ranks stay contiguous
// even when the threshold drops candidates from the middle of the list.
func buildMatches(candidates []domain.Candidate, threshold float64, now time.Time) []domain.Match {
	matches := make([]domain.Match, 0, len(candidates))
	for _, c := range candidates {
		if c.Distance > threshold {
			continue
		}
		matches = append(matches, domain.Match{
			FoundID:    c.FoundID,
			Distance:   c.Distance,
			Confidence: domain.Confidence(c.Distance),
			Rank:       len(matches),
			Status:     domain.MatchPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return matches
}
