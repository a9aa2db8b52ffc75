package match

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/campusfound/matchd/internal/domain"
)

// store is the consumer interface for match persistence (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HReplace(ctx context.Context, key string, fields map[string]string) error
	HCompareAndSet(ctx context.Context, key, field, old, val string) (bool, error)
	Del(ctx context.Context, key string) error
}

// Repo persists each request's match set as a single hash: field = found
// item ID, value = JSON match record. One key per request makes the
// replace-all reconcile a single atomic transaction and guarantees at most
// one match per (request, found item) pair.
type Repo struct {
	store  store
	prefix string
}

// New creates a match repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) key(requestID string) string {
	return r.prefix + string(domain.CollectionRequests) + ":" + requestID + ":matches"
}

// record is the stored JSON shape of a match.
type record struct {
	Distance   float64   `json:"distance"`
	Confidence float64   `json:"confidence"`
	Rank       int       `json:"rank"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Replace swaps the entire persisted match set of a request for the given
// one. An empty slice legitimately clears all matches. The swap happens in
// one MULTI/EXEC transaction: no reader sees a mix of two runs or a
// transiently empty set while a non-empty one is being written.
func (r *Repo) Replace(ctx context.Context, requestID string, matches []domain.Match) error {
	fields := make(map[string]string, len(matches))
	for _, m := range matches {
		data, err := json.Marshal(record{
			Distance:   m.Distance,
			Confidence: m.Confidence,
			Rank:       m.Rank,
			Status:     string(m.Status),
			CreatedAt:  m.CreatedAt,
			UpdatedAt:  m.UpdatedAt,
		})
		if err != nil {
			return fmt.Errorf("encode match %s/%s: %w", requestID, m.FoundID, err)
		}
		fields[m.FoundID] = string(data)
	}

	if err := r.store.HReplace(ctx, r.key(requestID), fields); err != nil {
		return fmt.Errorf("replace matches for %s: %w", requestID, err)
	}
	return nil
}

// List returns the request's current match set ordered by rank.
func (r *Repo) List(ctx context.Context, requestID string) ([]domain.Match, error) {
	fields, err := r.store.HGetAll(ctx, r.key(requestID))
	if err != nil {
		return nil, fmt.Errorf("list matches for %s: %w", requestID, err)
	}

	matches := make([]domain.Match, 0, len(fields))
	for foundID, raw := range fields {
		m, err := decode(foundID, raw)
		if err != nil {
			return nil, fmt.Errorf("decode match %s/%s: %w", requestID, foundID, err)
		}
		matches = append(matches, m)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Rank != matches[j].Rank {
			return matches[i].Rank < matches[j].Rank
		}
		return matches[i].FoundID < matches[j].FoundID
	})

	return matches, nil
}

// Delete removes the entire match set of a request. Used when the
// request itself is deleted; a missing set is not an error.
func (r *Repo) Delete(ctx context.Context, requestID string) error {
	if err := r.store.Del(ctx, r.key(requestID)); err != nil {
		return fmt.Errorf("delete matches for %s: %w", requestID, err)
	}
	return nil
}

// updateStatusRetries bounds how often UpdateStatus re-reads after losing
// the compare-and-set race to a concurrent reconcile.
const updateStatusRetries = 3

// UpdateStatus transitions a match to the given review status. This is the
// only mutation of a match outside the replace-all reconcile; the matching
// core itself never calls it. The write is a compare-and-set on the stored
// field: a match that a concurrent reconcile dropped or rewrote cannot be
// resurrected with stale data, the loop re-reads and retries instead.
func (r *Repo) UpdateStatus(
	ctx context.Context, requestID, foundID string, status domain.MatchStatus,
) (domain.Match, error) {
	for attempt := 0; attempt < updateStatusRetries; attempt++ {
		fields, err := r.store.HGetAll(ctx, r.key(requestID))
		if err != nil {
			return domain.Match{}, fmt.Errorf("load matches for %s: %w", requestID, err)
		}

		raw, ok := fields[foundID]
		if !ok {
			return domain.Match{}, fmt.Errorf("%s/%s: %w", requestID, foundID, domain.ErrMatchNotFound)
		}

		m, err := decode(foundID, raw)
		if err != nil {
			return domain.Match{}, fmt.Errorf("decode match %s/%s: %w", requestID, foundID, err)
		}

		m.Status = status
		m.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(record{
			Distance:   m.Distance,
			Confidence: m.Confidence,
			Rank:       m.Rank,
			Status:     string(m.Status),
			CreatedAt:  m.CreatedAt,
			UpdatedAt:  m.UpdatedAt,
		})
		if err != nil {
			return domain.Match{}, fmt.Errorf("encode match %s/%s: %w", requestID, foundID, err)
		}

		ok, err = r.store.HCompareAndSet(ctx, r.key(requestID), foundID, raw, string(data))
		if err != nil {
			return domain.Match{}, fmt.Errorf("update match %s/%s: %w", requestID, foundID, err)
		}
		if ok {
			return m, nil
		}
	}

	return domain.Match{}, fmt.Errorf("update match %s/%s: concurrent reconcile, gave up after %d attempts",
		requestID, foundID, updateStatusRetries)
}

func decode(foundID, raw string) (domain.Match, error) {
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.Match{}, err
	}
	return domain.Match{
		FoundID:    foundID,
		Distance:   rec.Distance,
		Confidence: rec.Confidence,
		Rank:       rec.Rank,
		Status:     domain.MatchStatus(rec.Status),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}
