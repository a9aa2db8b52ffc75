package health

import "context"

// StorePinger checks backing store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// IndexChecker reports whether the vector search index is provisioned.
type IndexChecker interface {
	IndexExists(ctx context.Context, name string) (bool, error)
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
