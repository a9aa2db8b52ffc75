package matching

import (
	"context"

	"github.com/campusfound/matchd/internal/domain"
)

// ItemRepository reads request documents for matching.
type ItemRepository interface {
	Get(ctx context.Context, collection domain.Collection, id string) (domain.Item, error)
}

// EmbeddingEnsurer guarantees an item carries a valid embedding.
type EmbeddingEnsurer interface {
	EnsureItem(ctx context.Context, collection domain.Collection, item *domain.Item) (domain.Item, error)
}

// Retriever runs KNN retrieval over the found-items index.
type Retriever interface {
	Nearest(ctx context.Context, vector []float32, pf domain.Prefilters, limit int) ([]domain.Candidate, error)
}

// MatchWriter reconciles the persisted match set for a request.
type MatchWriter interface {
	Replace(ctx context.Context, requestID string, matches []domain.Match) error
}
