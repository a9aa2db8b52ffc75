package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestNotFound signals that the matching target request does not exist.
	ErrRequestNotFound = errors.New("request not found")
	// ErrItemNotFound signals a missing document in either collection.
	ErrItemNotFound = errors.New("item not found")
	// ErrMissingDescription signals an entity with no usable text to embed.
	ErrMissingDescription = errors.New("missing description")
	// ErrDimensionMismatch signals embedding generator/config drift.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrIndexUnavailable signals that the backing vector index cannot run.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrMatchNotFound signals a missing match record.
	ErrMatchNotFound = errors.New("match not found")
	// ErrInvalidStatus signals an unknown match status value.
	ErrInvalidStatus = errors.New("invalid match status")
)

// MissingDescriptionError wraps ErrMissingDescription with the entity that lacks text.
type MissingDescriptionError struct {
	Collection Collection
	ID         string
}

func (e *MissingDescriptionError) Error() string {
	return fmt.Sprintf("%s/%s has no generic description to embed", e.Collection, e.ID)
}

func (e *MissingDescriptionError) Unwrap() error { return ErrMissingDescription }

// NewMissingDescription creates a missing description error for an entity.
func NewMissingDescription(col Collection, id string) error {
	return &MissingDescriptionError{Collection: col, ID: id}
}

// DimensionMismatchError wraps ErrDimensionMismatch with expected and actual dimensions.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	ID       string
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch for %s: expected %d, got %d",
		e.ID, e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(expected, actual int, id string) error {
	return &DimensionMismatchError{Expected: expected, Actual: actual, ID: id}
}
