package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/campusfound/matchd/internal/domain"
	"github.com/campusfound/matchd/internal/trigger"
	healthuc "github.com/campusfound/matchd/internal/usecase/health"
	"github.com/campusfound/matchd/internal/usecase/matching"
)

// Matcher runs on-demand matching.
type Matcher interface {
	MatchRequest(ctx context.Context, requestID string, opts matching.Options) (matching.Result, error)
}

// ItemWriter creates and deletes documents in a collection.
type ItemWriter interface {
	Create(ctx context.Context, collection domain.Collection, item domain.Item) error
	Delete(ctx context.Context, collection domain.Collection, id string) error
}

// MatchStore reads, reviews, and drops the persisted match set.
type MatchStore interface {
	List(ctx context.Context, requestID string) ([]domain.Match, error)
	UpdateStatus(ctx context.Context, requestID, foundID string, status domain.MatchStatus) (domain.Match, error)
	Delete(ctx context.Context, requestID string) error
}

// HealthService aggregates component health.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// Server is the HTTP API for the matching engine.
type Server struct {
	matcher       Matcher
	items         ItemWriter
	matches       MatchStore
	health        HealthService
	events        trigger.Publisher
	maxLimit      int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. events may be nil when reactive
// matching is disabled.
func NewServer(
	matcher Matcher,
	items ItemWriter,
	matches MatchStore,
	health HealthService,
	events trigger.Publisher,
	maxLimit int,
	logger *zap.Logger,
) *Server {
	s := &Server{
		matcher:  matcher,
		items:    items,
		matches:  matches,
		health:   health,
		events:   events,
		maxLimit: maxLimit,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		indexUnavailableHandler,
		sentinelHandler(domain.ErrRequestNotFound, http.StatusNotFound, errTypeRequestNotFound),
		sentinelHandler(domain.ErrMatchNotFound, http.StatusNotFound, errTypeMatchNotFound),
		sentinelHandler(domain.ErrItemNotFound, http.StatusNotFound, errTypeItemNotFound),
		sentinelHandler(domain.ErrMissingDescription, http.StatusBadRequest, errTypeMissingDesc),
		sentinelHandler(domain.ErrInvalidStatus, http.StatusBadRequest, errTypeBadRequest),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusInternalServerError, errTypeDimMismatch),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusServiceUnavailable, errTypeProviderError),
	}
	return s
}

// Routes registers all handlers on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/match", s.handleMatch)
	r.Post("/requests", s.handleCreateItem(domain.CollectionRequests))
	r.Post("/found", s.handleCreateItem(domain.CollectionFound))
	r.Delete("/requests/{id}", s.handleDeleteItem(domain.CollectionRequests))
	r.Delete("/found/{id}", s.handleDeleteItem(domain.CollectionFound))
	r.Get("/requests/{id}/matches", s.handleListMatches)
	r.Post("/requests/{id}/matches/{foundId}/status", s.handleUpdateStatus)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

type prefiltersBody struct {
	Category string `json:"category,omitempty"`
	Campus   string `json:"campus,omitempty"`
}

type matchRequestBody struct {
	RequestID         string          `json:"requestId"`
	Limit             *int            `json:"limit,omitempty"`
	DistanceThreshold *float64        `json:"distanceThreshold,omitempty"`
	Prefilters        *prefiltersBody `json:"prefilters,omitempty"`
}

type matchItem struct {
	LostID     string  `json:"lostId"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
	Rank       int     `json:"rank"`
}

type matchResponse struct {
	OK        bool        `json:"ok"`
	RequestID string      `json:"requestId"`
	Matches   []matchItem `json:"matches"`
	Duration  int64       `json:"duration"`
}

// handleMatch handles POST /match.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errTypeBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.RequestID == "" {
		writeError(w, http.StatusBadRequest, errTypeBadRequest, "requestId is required")
		return
	}

	opts := matching.Options{Origin: matching.OriginHTTP}
	if req.Limit != nil {
		if *req.Limit < 1 || *req.Limit > s.maxLimit {
			writeError(w, http.StatusBadRequest, errTypeBadRequest, "limit out of range")
			return
		}
		opts.Limit = *req.Limit
	}
	if req.DistanceThreshold != nil {
		// 0 is a legal threshold: keep exact-direction matches only.
		if *req.DistanceThreshold < 0 || *req.DistanceThreshold > 2 {
			writeError(w, http.StatusBadRequest, errTypeBadRequest, "distanceThreshold out of range")
			return
		}
		opts.DistanceThreshold = req.DistanceThreshold
	}
	if req.Prefilters != nil {
		opts.Prefilters = domain.Prefilters{
			Category: req.Prefilters.Category,
			Campus:   req.Prefilters.Campus,
		}
	}

	res, err := s.matcher.MatchRequest(r.Context(), req.RequestID, opts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]matchItem, len(res.Matches))
	for i, m := range res.Matches {
		items[i] = matchItem{
			LostID:     m.FoundID,
			Distance:   m.Distance,
			Confidence: m.Confidence,
			Rank:       m.Rank,
		}
	}

	writeJSON(w, http.StatusOK, matchResponse{
		OK:        true,
		RequestID: res.RequestID,
		Matches:   items,
		Duration:  res.Duration.Milliseconds(),
	})
}

type createItemBody struct {
	UserID     string `json:"userId,omitempty"`
	Category   string `json:"category,omitempty"`
	Campus     string `json:"campus,omitempty"`
	Attributes struct {
		GenericDescription string `json:"genericDescription"`
		Brand              string `json:"brand,omitempty"`
		Model              string `json:"model,omitempty"`
		Color              string `json:"color,omitempty"`
	} `json:"attributes"`
}

type createItemResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// handleCreateItem handles POST /requests and POST /found. Creation
// publishes the matching trigger event; the event is best-effort and its
// outcome never affects the write.
func (s *Server) handleCreateItem(collection domain.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createItemBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, errTypeBadRequest, "invalid request body: "+err.Error())
			return
		}

		now := time.Now()
		item := domain.Item{
			ID:       uuid.NewString(),
			UserID:   req.UserID,
			Category: req.Category,
			Campus:   req.Campus,
			Attributes: domain.Attributes{
				GenericDescription: req.Attributes.GenericDescription,
				Brand:              req.Attributes.Brand,
				Model:              req.Attributes.Model,
				Color:              req.Attributes.Color,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}

		if item.Description() == "" {
			writeError(w, http.StatusBadRequest, errTypeBadRequest, "attributes.genericDescription is required")
			return
		}

		if err := s.items.Create(r.Context(), collection, item); err != nil {
			s.handleDomainError(w, err)
			return
		}

		if s.events != nil {
			s.events.Publish(trigger.Event{Collection: collection, ID: item.ID})
		}

		writeJSON(w, http.StatusCreated, createItemResponse{OK: true, ID: item.ID})
	}
}

type deleteItemResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// handleDeleteItem handles DELETE /requests/{id} and DELETE /found/{id}.
// Deleting a request cascades to its persisted match set.
func (s *Server) handleDeleteItem(collection domain.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := s.items.Delete(r.Context(), collection, id); err != nil {
			s.handleDomainError(w, err)
			return
		}

		if collection == domain.CollectionRequests {
			if err := s.matches.Delete(r.Context(), id); err != nil {
				s.handleDomainError(w, err)
				return
			}
		}

		writeJSON(w, http.StatusOK, deleteItemResponse{OK: true, ID: id})
	}
}

type matchDetail struct {
	matchItem
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type listMatchesResponse struct {
	OK        bool          `json:"ok"`
	RequestID string        `json:"requestId"`
	Matches   []matchDetail `json:"matches"`
}

// handleListMatches handles GET /requests/{id}/matches.
func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")

	matches, err := s.matches.List(r.Context(), requestID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]matchDetail, len(matches))
	for i, m := range matches {
		items[i] = toMatchDetail(m)
	}

	writeJSON(w, http.StatusOK, listMatchesResponse{
		OK:        true,
		RequestID: requestID,
		Matches:   items,
	})
}

type updateStatusBody struct {
	Status string `json:"status"`
}

type updateStatusResponse struct {
	OK        bool        `json:"ok"`
	RequestID string      `json:"requestId"`
	Match     matchDetail `json:"match"`
}

// handleUpdateStatus handles POST /requests/{id}/matches/{foundId}/status.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	foundID := chi.URLParam(r, "foundId")

	var req updateStatusBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errTypeBadRequest, "invalid request body: "+err.Error())
		return
	}

	status, err := domain.ParseMatchStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, errTypeBadRequest, "status must be pending, accepted, or rejected")
		return
	}

	m, err := s.matches.UpdateStatus(r.Context(), requestID, foundID, status)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updateStatusResponse{
		OK:        true,
		RequestID: requestID,
		Match:     toMatchDetail(m),
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func toMatchDetail(m domain.Match) matchDetail {
	return matchDetail{
		matchItem: matchItem{
			LostID:     m.FoundID,
			Distance:   m.Distance,
			Confidence: m.Confidence,
			Rank:       m.Rank,
		},
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, errTypeInternal, "internal error")
}
