package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campusfound/matchd/internal/domain"
)

// Service guarantees items carry a usable embedding before matching.
type Service struct {
	items      ItemRepository
	embedder   Embedder
	dimensions int
	logger     *zap.Logger
}

// New creates an embedding service. dimensions is the configured vector
// width every stored embedding must satisfy.
func New(items ItemRepository, embedder Embedder, dimensions int, logger *zap.Logger) *Service {
	return &Service{
		items:      items,
		embedder:   embedder,
		dimensions: dimensions,
		logger:     logger,
	}
}

// Ensure returns an item with a valid embedding, computing and persisting
// one when the stored copy is absent or has the wrong width. When the
// cached embedding already matches the configured dimension the item is
// returned as-is with zero writes.
func (s *Service) Ensure(ctx context.Context, collection domain.Collection, id string) (domain.Item, error) {
	item, err := s.items.Get(ctx, collection, id)
	if err != nil {
		return domain.Item{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}

	return s.EnsureItem(ctx, collection, &item)
}

// EnsureItem is Ensure for an already-loaded item. The item is mutated
// in place when a new embedding is computed.
func (s *Service) EnsureItem(ctx context.Context, collection domain.Collection, item *domain.Item) (domain.Item, error) {
	if item.HasValidEmbedding(s.dimensions) {
		return *item, nil
	}

	text := item.Description()
	if text == "" {
		return domain.Item{}, domain.NewMissingDescription(collection, item.ID)
	}

	result, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return domain.Item{}, fmt.Errorf("embed %s/%s: %w", collection, item.ID, err)
	}

	if len(result.Embedding) != s.dimensions {
		return domain.Item{}, domain.NewDimensionMismatch(s.dimensions, len(result.Embedding), item.ID)
	}

	if err := s.items.SaveEmbedding(ctx, collection, item.ID, result.Embedding, time.Now()); err != nil {
		return domain.Item{}, fmt.Errorf("save embedding %s/%s: %w", collection, item.ID, err)
	}

	s.logger.Info("Computed embedding",
		zap.String("collection", string(collection)),
		zap.String("id", item.ID),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens))

	item.Embedding = result.Embedding
	item.EmbeddingDim = len(result.Embedding)
	return *item, nil
}
