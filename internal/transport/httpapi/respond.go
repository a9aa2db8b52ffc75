package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campusfound/matchd/internal/domain"
)

// Error type identifiers returned in the errorType field.
const (
	errTypeBadRequest       = "bad_request"
	errTypeRequestNotFound  = "request_not_found"
	errTypeItemNotFound     = "item_not_found"
	errTypeMatchNotFound    = "match_not_found"
	errTypeMissingDesc      = "missing_description"
	errTypeDimMismatch      = "embedding_dim_mismatch"
	errTypeIndexUnavailable = "index_unavailable"
	errTypeProviderError    = "embedding_provider_error"
	errTypeInternal         = "internal"
)

type errorResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
	Hint      string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, errorResponse{Error: message, ErrorType: errType})
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// sentinelHandler returns an errorHandler matching a single sentinel error.
func sentinelHandler(sentinel error, status int, errType string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, errType, msg)
		return true
	}
}

// indexUnavailableHandler adds the provisioning hint to 503 responses.
func indexUnavailableHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		return false
	}
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{
		Error:     msg,
		ErrorType: errTypeIndexUnavailable,
		Hint:      "create the vector index for the found-items collection and retry",
	})
	return true
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrRequestNotFound,
		domain.ErrItemNotFound,
		domain.ErrMatchNotFound,
		domain.ErrMissingDescription,
		domain.ErrDimensionMismatch,
		domain.ErrIndexUnavailable,
		domain.ErrEmbeddingProviderError,
		domain.ErrInvalidStatus,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}
