package embedding

import (
	"context"
	"time"

	"github.com/campusfound/matchd/internal/domain"
)

// ItemRepository defines the storage contract for embedding persistence.
type ItemRepository interface {
	Get(ctx context.Context, collection domain.Collection, id string) (domain.Item, error)
	SaveEmbedding(ctx context.Context, collection domain.Collection, id string, vec []float32, at time.Time) error
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
