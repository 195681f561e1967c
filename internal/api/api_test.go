package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/civicadmin/internal/apiclient"
	"github.com/joescharf/civicadmin/internal/auth"
	"github.com/joescharf/civicadmin/internal/models"
	"github.com/joescharf/civicadmin/internal/store"
	"github.com/joescharf/civicadmin/internal/viewmodel"
)

// backend is a fake remote issue API.
type backend struct {
	mu        sync.Mutex
	issues    []models.Issue
	failList  bool
	failPut   bool
	statsBody string
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, b.statsBody)
	})
	mux.HandleFunc("GET /issues", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failList {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(b.issues)
	})
	mux.HandleFunc("PUT /issues/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failPut {
			http.Error(w, "Status and ExpectedCompletionDate are required.", http.StatusBadRequest)
			return
		}
		var in models.Issue
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for i := range b.issues {
			if b.issues[i].ID == r.PathValue("id") {
				b.issues[i] = in
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func seed() []models.Issue {
	return []models.Issue{
		{ID: "a1", Type: "pothole", Location: "Main St", Status: models.IssueStatusNew, Priority: models.IssuePriorityHigh},
		{ID: "b2", Type: "streetlight", Location: "Oak Ave", Status: models.IssueStatusProcessing, Priority: models.IssuePriorityLow},
	}
}

type fixture struct {
	router  http.Handler
	backend *backend
	journal store.Store
	logs    *bytes.Buffer
}

func setupTestServer(t *testing.T, token string) *fixture {
	t.Helper()
	b := &backend{
		issues:    seed(),
		statsBody: `{"statusCode":200,"body":"{\"keyMetrics\":{\"totalPending\":2,\"highPriority\":1,\"totalCompleted\":\"5\"},\"byStatus\":[{\"name\":\"New\",\"value\":1}]}"}`,
	}
	remote := httptest.NewServer(b.handler())
	t.Cleanup(remote.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := apiclient.New(apiclient.Config{
		BaseURL:    remote.URL,
		Tokens:     auth.NewStatic(token),
		HTTPClient: remote.Client(),
		Logger:     logger,
	})
	require.NoError(t, err)

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	opts := []viewmodel.Option{viewmodel.WithLogger(logger), viewmodel.WithRecorder(s)}
	logs := &bytes.Buffer{}
	srv := NewServer(viewmodel.NewStats(client, opts...), viewmodel.NewIssues(client, opts...), s,
		slog.New(slog.NewTextHandler(logs, nil)))

	return &fixture{router: srv.Router(), backend: b, journal: s, logs: logs}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["error"]
}

func TestGetStats(t *testing.T) {
	f := setupTestServer(t, "tok")

	w := f.do(t, "GET", "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	metrics := got["keyMetrics"].(map[string]any)
	assert.Equal(t, float64(2), metrics["totalPending"])
	assert.Equal(t, float64(5), metrics["totalCompleted"])
	assert.Equal(t, models.NoSummary, got["summaryText"])
	assert.Nil(t, got["byPriority"])
}

func TestListIssues(t *testing.T) {
	f := setupTestServer(t, "tok")

	w := f.do(t, "GET", "/api/v1/issues", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all []models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	w = f.do(t, "GET", "/api/v1/issues?search=OAK", "")
	require.Equal(t, http.StatusOK, w.Code)
	var filtered []models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &filtered))
	require.Len(t, filtered, 1)
	assert.Equal(t, "b2", filtered[0].ID)
}

func TestListIssues_NoToken(t *testing.T) {
	f := setupTestServer(t, "")

	w := f.do(t, "GET", "/api/v1/issues", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, errorBody(t, w))
}

func TestListIssues_UpstreamFailure(t *testing.T) {
	f := setupTestServer(t, "tok")
	f.backend.failList = true

	w := f.do(t, "GET", "/api/v1/issues", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, errorBody(t, w), "500")

	assert.Contains(t, f.logs.String(), "request failed")
	assert.Contains(t, f.logs.String(), "status=502")
}

func TestNewServer_DefaultLogger(t *testing.T) {
	srv := NewServer(nil, nil, nil, nil)
	assert.Same(t, slog.Default(), srv.logger)
}

func TestGetIssue(t *testing.T) {
	f := setupTestServer(t, "tok")

	w := f.do(t, "GET", "/api/v1/issues/a1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "pothole", got.Type)

	w = f.do(t, "GET", "/api/v1/issues/zz", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateIssue(t *testing.T) {
	f := setupTestServer(t, "tok")

	w := f.do(t, "PUT", "/api/v1/issues/a1", `{"status":"completed","expected":""}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view []models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Len(t, view, 2)
	assert.Equal(t, models.IssueStatusCompleted, view[0].Status)
	assert.Equal(t, models.UnderReview, view[0].ExpectedCompletionDate)

	entries, err := f.journal.ListActivity(context.Background(), store.ActivityFilter{Kind: models.ActivityUpdate})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a1", entries[0].IssueID)
}

func TestUpdateIssue_FilteredResponse(t *testing.T) {
	f := setupTestServer(t, "tok")

	w := f.do(t, "PUT", "/api/v1/issues/b2?search=oak", `{"status":"New","expected":"2025-12-01"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var view []models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Len(t, view, 1)
	assert.Equal(t, "2025-12-01", view[0].ExpectedCompletionDate)
}

func TestUpdateIssue_BadRequests(t *testing.T) {
	f := setupTestServer(t, "tok")

	w := f.do(t, "PUT", "/api/v1/issues/a1", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "PUT", "/api/v1/issues/a1", `{"status":"Archived"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "PUT", "/api/v1/issues/zz", `{"status":"New"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateIssue_UpstreamRejects(t *testing.T) {
	f := setupTestServer(t, "tok")
	f.backend.failPut = true

	w := f.do(t, "PUT", "/api/v1/issues/a1", `{"status":"Completed"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, errorBody(t, w), "required")

	failed, err := f.journal.ListActivity(context.Background(), store.ActivityFilter{FailedOnly: true})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, models.ActivityUpdate, failed[0].Kind)
}

func TestListActivity(t *testing.T) {
	f := setupTestServer(t, "tok")
	f.do(t, "GET", "/api/v1/stats", "")
	f.do(t, "GET", "/api/v1/issues", "")

	w := f.do(t, "GET", "/api/v1/activity?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []models.Activity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActivityRefresh, entries[0].Kind)

	w = f.do(t, "GET", "/api/v1/activity?kind=stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)

	w = f.do(t, "GET", "/api/v1/activity?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListActivity_NoJournal(t *testing.T) {
	srv := NewServer(nil, nil, nil, nil)
	req := httptest.NewRequest("GET", "/api/v1/activity", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := setupTestServer(t, "tok")

	w := f.do(t, "OPTIONS", "/api/v1/issues/a1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, errorStatus(&apiclient.AuthError{Err: auth.ErrNoToken}))
	assert.Equal(t, http.StatusBadGateway, errorStatus(&apiclient.HTTPError{StatusCode: 404}))
	assert.Equal(t, http.StatusBadGateway, errorStatus(&apiclient.ParseError{}))
	assert.Equal(t, http.StatusNotFound, errorStatus(viewmodel.ErrIssueNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, errorStatus(viewmodel.ErrClosed))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(io.ErrUnexpectedEOF))
}
