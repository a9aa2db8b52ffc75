package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/campusfound/matchd/internal/domain"
	"github.com/campusfound/matchd/internal/trigger"
	healthuc "github.com/campusfound/matchd/internal/usecase/health"
	"github.com/campusfound/matchd/internal/usecase/matching"
)

type mockMatcher struct {
	result   matching.Result
	err      error
	lastID   string
	lastOpts matching.Options
}

func (m *mockMatcher) MatchRequest(_ context.Context, requestID string, opts matching.Options) (matching.Result, error) {
	m.lastID = requestID
	m.lastOpts = opts
	if m.err != nil {
		return matching.Result{}, m.err
	}
	res := m.result
	res.RequestID = requestID
	return res, nil
}

type mockItemWriter struct {
	created   []domain.Item
	deleted   []string
	lastCol   domain.Collection
	err       error
	deleteErr error
}

func (m *mockItemWriter) Create(_ context.Context, collection domain.Collection, item domain.Item) error {
	if m.err != nil {
		return m.err
	}
	m.lastCol = collection
	m.created = append(m.created, item)
	return nil
}

func (m *mockItemWriter) Delete(_ context.Context, collection domain.Collection, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.lastCol = collection
	m.deleted = append(m.deleted, id)
	return nil
}

type mockMatchStore struct {
	matches []domain.Match
	updated domain.Match
	deleted []string
	err     error
}

func (m *mockMatchStore) List(_ context.Context, _ string) ([]domain.Match, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.matches, nil
}

func (m *mockMatchStore) UpdateStatus(_ context.Context, _, _ string, status domain.MatchStatus) (domain.Match, error) {
	if m.err != nil {
		return domain.Match{}, m.err
	}
	upd := m.updated
	upd.Status = status
	return upd, nil
}

func (m *mockMatchStore) Delete(_ context.Context, requestID string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, requestID)
	return nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report {
	return m.report
}

type recordingPublisher struct {
	events []trigger.Event
}

func (p *recordingPublisher) Publish(ev trigger.Event) {
	p.events = append(p.events, ev)
}

func newTestRouter(s *Server) *chi.Mux {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

func newTestServer(matcher *mockMatcher, items *mockItemWriter, matches *mockMatchStore, pub trigger.Publisher) *Server {
	health := &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{"store": healthuc.CheckOK}}}
	return NewServer(matcher, items, matches, health, pub, 100, zap.NewNop())
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleMatch_Success(t *testing.T) {
	matcher := &mockMatcher{result: matching.Result{
		Matches: []domain.Match{
			{FoundID: "fnd-1", Distance: 0.2, Confidence: 0.9, Rank: 0},
			{FoundID: "fnd-2", Distance: 0.4, Confidence: 0.8, Rank: 1},
		},
		Duration: 42 * time.Millisecond,
	}}
	s := newTestServer(matcher, &mockItemWriter{}, &mockMatchStore{}, nil)
	r := newTestRouter(s)

	rec := doJSON(t, r, http.MethodPost, "/match", `{"requestId":"req-1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp matchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK || resp.RequestID != "req-1" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(resp.Matches))
	}
	if resp.Matches[0].LostID != "fnd-1" || resp.Matches[0].Rank != 0 {
		t.Errorf("first match = %+v", resp.Matches[0])
	}
	if resp.Duration != 42 {
		t.Errorf("duration = %d, want 42", resp.Duration)
	}
	if matcher.lastOpts.Origin != matching.OriginHTTP {
		t.Errorf("origin = %s, want http", matcher.lastOpts.Origin)
	}
}

func TestHandleMatch_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing requestId", `{}`},
		{"limit too low", `{"requestId":"r","limit":0}`},
		{"limit too high", `{"requestId":"r","limit":101}`},
		{"threshold negative", `{"requestId":"r","distanceThreshold":-0.5}`},
		{"threshold too high", `{"requestId":"r","distanceThreshold":2.5}`},
		{"malformed json", `{`},
	}

	s := newTestServer(&mockMatcher{}, &mockItemWriter{}, &mockMatchStore{}, nil)
	r := newTestRouter(s)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, "/match", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.OK {
				t.Error("ok = true in error response")
			}
			if resp.ErrorType != errTypeBadRequest {
				t.Errorf("errorType = %s, want bad_request", resp.ErrorType)
			}
		})
	}
}

func TestHandleMatch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"request not found", domain.ErrRequestNotFound, http.StatusNotFound, errTypeRequestNotFound},
		{"missing description", domain.NewMissingDescription(domain.CollectionRequests, "r"), http.StatusBadRequest, errTypeMissingDesc},
		{"dimension mismatch", domain.NewDimensionMismatch(768, 512, "r"), http.StatusInternalServerError, errTypeDimMismatch},
		{"index unavailable", domain.ErrIndexUnavailable, http.StatusServiceUnavailable, errTypeIndexUnavailable},
		{"provider error", domain.ErrEmbeddingProviderError, http.StatusServiceUnavailable, errTypeProviderError},
		{"unknown", context.DeadlineExceeded, http.StatusInternalServerError, errTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&mockMatcher{err: tt.err}, &mockItemWriter{}, &mockMatchStore{}, nil)
			r := newTestRouter(s)

			rec := doJSON(t, r, http.MethodPost, "/match", `{"requestId":"req-1"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.ErrorType != tt.wantType {
				t.Errorf("errorType = %s, want %s", resp.ErrorType, tt.wantType)
			}
		})
	}
}

func TestHandleMatch_IndexUnavailableCarriesHint(t *testing.T) {
	s := newTestServer(&mockMatcher{err: domain.ErrIndexUnavailable}, &mockItemWriter{}, &mockMatchStore{}, nil)
	r := newTestRouter(s)

	rec := doJSON(t, r, http.MethodPost, "/match", `{"requestId":"req-1"}`)
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Hint == "" {
		t.Error("503 response missing provisioning hint")
	}
}

func TestHandleMatch_ForwardsOptions(t *testing.T) {
	matcher := &mockMatcher{}
	s := newTestServer(matcher, &mockItemWriter{}, &mockMatchStore{}, nil)
	r := newTestRouter(s)

	body := `{"requestId":"req-1","limit":5,"distanceThreshold":0.8,"prefilters":{"category":"electronics","campus":"north"}}`
	rec := doJSON(t, r, http.MethodPost, "/match", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	if matcher.lastOpts.Limit != 5 {
		t.Errorf("limit = %d, want 5", matcher.lastOpts.Limit)
	}
	if matcher.lastOpts.DistanceThreshold == nil || *matcher.lastOpts.DistanceThreshold != 0.8 {
		t.Errorf("threshold = %v, want 0.8", matcher.lastOpts.DistanceThreshold)
	}
	want := domain.Prefilters{Category: "electronics", Campus: "north"}
	if matcher.lastOpts.Prefilters != want {
		t.Errorf("prefilters = %+v, want %+v", matcher.lastOpts.Prefilters, want)
	}
}

func TestHandleMatch_ZeroThresholdAccepted(t *testing.T) {
	// 0 is inside the documented 0..2 range and must reach the matcher
	// as an explicit value, not collapse into the default.
	matcher := &mockMatcher{}
	s := newTestServer(matcher, &mockItemWriter{}, &mockMatchStore{}, nil)
	r := newTestRouter(s)

	rec := doJSON(t, r, http.MethodPost, "/match", `{"requestId":"req-1","distanceThreshold":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if matcher.lastOpts.DistanceThreshold == nil {
		t.Fatal("threshold not forwarded")
	}
	if *matcher.lastOpts.DistanceThreshold != 0 {
		t.Errorf("threshold = %v, want 0", *matcher.lastOpts.DistanceThreshold)
	}
}

func TestHandleCreateItem_PublishesEvent(t *testing.T) {
	items := &mockItemWriter{}
	pub := &recordingPublisher{}
	s := newTestServer(&mockMatcher{}, items, &mockMatchStore{}, pub)
	r := newTestRouter(s)

	body := `{"userId":"u-1","category":"bags","campus":"north","attributes":{"genericDescription":"black leather backpack"}}`
	rec := doJSON(t, r, http.MethodPost, "/requests", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp createItemResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID == "" {
		t.Error("response missing id")
	}
	if items.lastCol != domain.CollectionRequests {
		t.Errorf("collection = %s, want requests", items.lastCol)
	}
	if len(pub.events) != 1 {
		t.Fatalf("events = %d, want 1", len(pub.events))
	}
	if pub.events[0].Collection != domain.CollectionRequests || pub.events[0].ID != resp.ID {
		t.Errorf("event = %+v", pub.events[0])
	}
}

func TestHandleCreateItem_FoundCollection(t *testing.T) {
	items := &mockItemWriter{}
	pub := &recordingPublisher{}
	s := newTestServer(&mockMatcher{}, items, &mockMatchStore{}, pub)
	r := newTestRouter(s)

	rec := doJSON(t, r, http.MethodPost, "/found", `{"attributes":{"genericDescription":"silver thermos"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if items.lastCol != domain.CollectionFound {
		t.Errorf("collection = %s, want found", items.lastCol)
	}
	if len(pub.events) != 1 || pub.events[0].Collection != domain.CollectionFound {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestHandleCreateItem_RequiresDescription(t *testing.T) {
	items := &mockItemWriter{}
	s := newTestServer(&mockMatcher{}, items, &mockMatchStore{}, nil)
	r := newTestRouter(s)

	rec := doJSON(t, r, http.MethodPost, "/requests", `{"attributes":{"genericDescription":"  "}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(items.created) != 0 {
		t.Error("item created without description")
	}
}

func TestHandleDeleteRequest_CascadesToMatches(t *testing.T) {
	items := &mockItemWriter{}
	matches := &mockMatchStore{}
	s := newTestServer(&mockMatcher{}, items, matches, nil)
	r := newTestRouter(s)

	rec := doJSON(t, r, http.MethodDelete, "/requests/req-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	if len(items.deleted) != 1 || items.deleted[0] != "req-1" {
		t.Errorf("deleted = %v, want [req-1]", items.deleted)
	}
	if items.lastCol != domain.CollectionRequests {
		t.Errorf("collection = %s, want requests", items.lastCol)
	}
	if len(matches.deleted) != 1 || matches.deleted[0] != "req-1" {
		t.Errorf("match set not dropped with the request: %v", matches.deleted)
	}

	var resp deleteItemResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.OK || resp.ID != "req-1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleDeleteFound_NoCascade(t *testing.T) {
	items := &mockItemWriter{}
	matches := &mockMatchStore{}
	s := newTestServer(&mockMatcher{}, items, matches, nil)
	r := newTestRouter(s)

	rec := doJSON(t, r, http.MethodDelete, "/found/fnd-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	if items.lastCol != domain.CollectionFound {
		t.Errorf("collection = %s, want found", items.lastCol)
	}
	if len(matches.deleted) != 0 {
		t.Errorf("found-item delete must not touch match sets: %v", matches.deleted)
	}
}

func TestHandleDeleteItem_Missing(t *testing.T) {
	items := &mockItemWriter{deleteErr: domain.ErrItemNotFound}
	s := newTestServer(&mockMatcher{}, items, &mockMatchStore{}, nil)
	r := newTestRouter(s)

	rec := doJSON(t, r, http.MethodDelete, "/requests/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ErrorType != errTypeItemNotFound {
		t.Errorf("errorType = %s, want %s", resp.ErrorType, errTypeItemNotFound)
	}
}

func TestHandleListMatches(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	store := &mockMatchStore{matches: []domain.Match{
		{FoundID: "fnd-1", Distance: 0.1, Confidence: 0.95, Rank: 0, Status: domain.MatchPending, CreatedAt: now, UpdatedAt: now},
		{FoundID: "fnd-2", Distance: 0.5, Confidence: 0.75, Rank: 1, Status: domain.MatchAccepted, CreatedAt: now, UpdatedAt: now},
	}}
	s := newTestServer(&mockMatcher{}, &mockItemWriter{}, store, nil)
	r := newTestRouter(s)

	rec := doJSON(t, r, http.MethodGet, "/requests/req-1/matches", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp listMatchesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RequestID != "req-1" || len(resp.Matches) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Matches[1].Status != "accepted" {
		t.Errorf("status = %s, want accepted", resp.Matches[1].Status)
	}
}

func TestHandleUpdateStatus(t *testing.T) {
	store := &mockMatchStore{updated: domain.Match{FoundID: "fnd-1", Distance: 0.2, Rank: 0}}
	s := newTestServer(&mockMatcher{}, &mockItemWriter{}, store, nil)
	r := newTestRouter(s)

	rec := doJSON(t, r, http.MethodPost, "/requests/req-1/matches/fnd-1/status", `{"status":"accepted"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp updateStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Match.Status != "accepted" {
		t.Errorf("status = %s, want accepted", resp.Match.Status)
	}
}

func TestHandleUpdateStatus_Errors(t *testing.T) {
	t.Run("invalid status", func(t *testing.T) {
		s := newTestServer(&mockMatcher{}, &mockItemWriter{}, &mockMatchStore{}, nil)
		r := newTestRouter(s)

		rec := doJSON(t, r, http.MethodPost, "/requests/req-1/matches/fnd-1/status", `{"status":"maybe"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown match", func(t *testing.T) {
		s := newTestServer(&mockMatcher{}, &mockItemWriter{}, &mockMatchStore{err: domain.ErrMatchNotFound}, nil)
		r := newTestRouter(s)

		rec := doJSON(t, r, http.MethodPost, "/requests/req-1/matches/ghost/status", `{"status":"rejected"}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(&mockMatcher{}, &mockItemWriter{}, &mockMatchStore{}, nil)
		r := newTestRouter(s)

		rec := doJSON(t, r, http.MethodGet, "/health", "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("degraded", func(t *testing.T) {
		health := &mockHealth{report: healthuc.Report{Status: healthuc.Degraded}}
		s := NewServer(&mockMatcher{}, &mockItemWriter{}, &mockMatchStore{}, health, nil, 100, zap.NewNop())
		r := newTestRouter(s)

		rec := doJSON(t, r, http.MethodGet, "/health", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestBearerAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("disabled without keys", func(t *testing.T) {
		h := BearerAuthMiddleware(nil)(next)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/match", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		h := BearerAuthMiddleware([]string{"secret"})(next)
		req := httptest.NewRequest(http.MethodPost, "/match", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		h := BearerAuthMiddleware([]string{"secret"})(next)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/match", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		h := BearerAuthMiddleware([]string{"secret"})(next)
		req := httptest.NewRequest(http.MethodPost, "/match", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("health exempt", func(t *testing.T) {
		h := BearerAuthMiddleware([]string{"secret"})(next)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("non-bearer scheme", func(t *testing.T) {
		h := BearerAuthMiddleware([]string{"secret"})(next)
		req := httptest.NewRequest(http.MethodPost, "/match", nil)
		req.Header.Set("Authorization", "Basic "+strings.Repeat("x", 10))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}
