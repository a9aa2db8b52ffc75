package db

import (
	"context"
	"time"
)

// Store is the database facade combining all sub-interfaces. Consumers
// depend on narrow sub-interfaces (ISP); the facade exists for wiring.
type Store interface {
	Pinger
	HashStore
	KVStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides hash-based document operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	// HReplace atomically replaces the entire hash at key with the given
	// fields inside a MULTI/EXEC transaction. An empty fields map deletes
	// the key. No reader observes the window between delete and rewrite.
	HReplace(ctx context.Context, key string, fields map[string]string) error
	// HCompareAndSet sets field to val only if its current value equals
	// old; a missing field counts as a mismatch.
	HCompareAndSet(ctx context.Context, key, field, old, val string) (bool, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher provides KNN search over FT indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}
