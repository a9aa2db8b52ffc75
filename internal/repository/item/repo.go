package item

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusfound/matchd/internal/db"
	"github.com/campusfound/matchd/internal/domain"
)

// store is the consumer interface for item persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// HNSWConfig holds vector index build parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo persists request and found-item documents as Redis hashes.
type Repo struct {
	store  store
	prefix string
	dim    int
	hnsw   HNSWConfig
}

// New creates an item repository. dim is the embedding dimension every
// stored vector is validated against.
func New(s store, prefix string, dim int) *Repo {
	return &Repo{store: s, prefix: prefix, dim: dim}
}

// WithHNSW sets vector index build parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	r.hnsw = cfg
	return r
}

func (r *Repo) key(col domain.Collection, id string) string {
	return r.prefix + string(col) + ":" + id
}

// FoundIndexName returns the FT index name for the found-item pool.
func (r *Repo) FoundIndexName() string {
	return r.prefix + string(domain.CollectionFound) + ":idx"
}

// Get loads a document from the given collection.
// Returns domain.ErrItemNotFound for a missing document.
func (r *Repo) Get(ctx context.Context, col domain.Collection, id string) (domain.Item, error) {
	fields, err := r.store.HGetAll(ctx, r.key(col, id))
	if err != nil {
		return domain.Item{}, fmt.Errorf("get %s/%s: %w", col, id, err)
	}
	if len(fields) == 0 {
		return domain.Item{}, fmt.Errorf("%s/%s: %w", col, id, domain.ErrItemNotFound)
	}

	it := itemFromFields(id, fields)

	// A stored vector with a stale dimension is treated as absent, not trusted.
	if len(it.Embedding) > 0 && !it.HasValidEmbedding(r.dim) {
		it.Embedding = nil
	}

	return it, nil
}

// GetMulti loads documents for the given IDs in one round-trip. Missing
// documents are dropped from the result, so it may be shorter than ids.
func (r *Repo) GetMulti(ctx context.Context, col domain.Collection, ids []string) ([]domain.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(col, id)
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get multi %s: %w", col, err)
	}

	items := make([]domain.Item, 0, len(ids))
	for i, fields := range maps {
		if len(fields) == 0 {
			continue
		}
		it := itemFromFields(ids[i], fields)
		if len(it.Embedding) > 0 && !it.HasValidEmbedding(r.dim) {
			it.Embedding = nil
		}
		items = append(items, it)
	}
	return items, nil
}

// Create stores a new document. The caller assigns the ID.
func (r *Repo) Create(ctx context.Context, col domain.Collection, it domain.Item) error {
	if err := r.store.HSet(ctx, r.key(col, it.ID), fieldsFromItem(it)); err != nil {
		return fmt.Errorf("create %s/%s: %w", col, it.ID, err)
	}
	return nil
}

// Delete removes a document. Returns domain.ErrItemNotFound when no
// document exists under the ID.
func (r *Repo) Delete(ctx context.Context, col domain.Collection, id string) error {
	key := r.key(col, id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check %s/%s: %w", col, id, err)
	}
	if !exists {
		return fmt.Errorf("%s/%s: %w", col, id, domain.ErrItemNotFound)
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", col, id, err)
	}
	return nil
}

// SaveEmbedding writes the vector, its dimension and the generation
// timestamp back onto the document. This is the single persistence write
// of the embedding cache; concurrent writers for the same document are
// last-write-wins with identical values.
func (r *Repo) SaveEmbedding(
	ctx context.Context, col domain.Collection, id string, vec []float32, at time.Time,
) error {
	fields := map[string]string{
		fieldEmbedding:    vectorToBytes(vec),
		fieldEmbeddingDim: fmt.Sprintf("%d", len(vec)),
		fieldEmbeddingAt:  at.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt:    at.UTC().Format(time.RFC3339Nano),
	}
	if err := r.store.HSet(ctx, r.key(col, id), fields); err != nil {
		return fmt.Errorf("save embedding %s/%s: %w", col, id, err)
	}
	return nil
}

// RequestIDs enumerates request document IDs up to cap. Order is not
// guaranteed (SCAN order); callers treat the result as an unordered pool.
func (r *Repo) RequestIDs(ctx context.Context, cap int) ([]string, error) {
	prefix := r.prefix + string(domain.CollectionRequests) + ":"

	keys, err := r.store.Scan(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan requests: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id := strings.TrimPrefix(k, prefix)
		// Skip match subcollection keys living under the same prefix.
		if strings.Contains(id, ":") {
			continue
		}
		ids = append(ids, id)
		if cap > 0 && len(ids) >= cap {
			break
		}
	}
	return ids, nil
}

// FoundIDs enumerates found-item document IDs up to cap.
func (r *Repo) FoundIDs(ctx context.Context, cap int) ([]string, error) {
	prefix := r.prefix + string(domain.CollectionFound) + ":"

	keys, err := r.store.Scan(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan found: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id := strings.TrimPrefix(k, prefix)
		if strings.Contains(id, ":") {
			continue
		}
		ids = append(ids, id)
		if cap > 0 && len(ids) >= cap {
			break
		}
	}
	return ids, nil
}

// EnsureFoundIndex creates the vector index over the found-item pool if it
// does not exist yet. Category and campus are TAG fields so prefilters run
// ahead of the KNN clause.
func (r *Repo) EnsureFoundIndex(ctx context.Context) error {
	name := r.FoundIndexName()

	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("probe index %s: %w", name, err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     name,
		Prefixes: []string{r.prefix + string(domain.CollectionFound) + ":"},
		Fields: []db.IndexField{
			{Name: fieldCategory, Type: db.IndexFieldTag},
			{Name: fieldCampus, Type: db.IndexFieldTag},
			{
				Name:              fieldEmbedding,
				Type:              db.IndexFieldVector,
				VectorDim:         r.dim,
				VectorM:           r.hnsw.M,
				VectorEFConstruct: r.hnsw.EFConstruct,
			},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}
