package domain

import (
	"strings"
	"time"
)

// Collection identifies one of the two document pools.
type Collection string

const (
	// CollectionRequests holds lost-item requests submitted by users.
	CollectionRequests Collection = "requests"
	// CollectionFound holds items logged by staff.
	CollectionFound Collection = "found"
)

// Attributes is the free-text attribute bag of a searchable item.
// GenericDescription is the canonical text used for embedding.
type Attributes struct {
	GenericDescription string
	Brand              string
	Model              string
	Color              string
}

// Item is a searchable document from either collection. Requests and found
// items share this shape; UserID is set only for requests.
type Item struct {
	ID       string
	UserID   string
	Category string
	Campus   string

	Attributes Attributes

	// Embedding is absent (nil) or a vector whose recorded dimension is
	// EmbeddingDim. A stored vector with the wrong dimension is treated
	// as absent and regenerated, never trusted.
	Embedding    []float32
	EmbeddingDim int
	EmbeddingAt  time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Description returns the trimmed canonical embedding text.
func (it *Item) Description() string {
	return strings.TrimSpace(it.Attributes.GenericDescription)
}

// HasValidEmbedding reports whether the item carries a vector of the given dimension.
func (it *Item) HasValidEmbedding(dim int) bool {
	return len(it.Embedding) > 0 && it.EmbeddingDim == dim && len(it.Embedding) == dim
}

// Prefilters narrows the candidate pool with equality conditions applied
// before the similarity search.
type Prefilters struct {
	Category string
	Campus   string
}

// IsEmpty reports whether no prefilter is set.
func (p Prefilters) IsEmpty() bool {
	return p.Category == "" && p.Campus == ""
}
