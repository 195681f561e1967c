package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joescharf/civicadmin/internal/apiclient"
	"github.com/joescharf/civicadmin/internal/filter"
	"github.com/joescharf/civicadmin/internal/models"
	"github.com/joescharf/civicadmin/internal/store"
	"github.com/joescharf/civicadmin/internal/viewmodel"
)

// Server provides the local REST API over the dashboard and triage view
// models.
type Server struct {
	stats   *viewmodel.Stats
	issues  *viewmodel.Issues
	journal store.Store
	logger  *slog.Logger
}

// NewServer creates a new API server. The journal may be nil, in which
// case the activity route answers 503. A nil logger means slog.Default().
func NewServer(stats *viewmodel.Stats, issues *viewmodel.Issues, journal store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		stats:   stats,
		issues:  issues,
		journal: journal,
		logger:  logger,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/stats", s.getStats)

	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("PUT /api/v1/issues/{id}", s.updateIssue)

	mux.HandleFunc("GET /api/v1/activity", s.listActivity)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps a core error onto the HTTP status the local API answers
// with. Upstream failures are a bad gateway from this server's point of view.
func errorStatus(err error) int {
	switch {
	case apiclient.IsAuth(err):
		return http.StatusUnauthorized
	case errors.Is(err, viewmodel.ErrIssueNotFound):
		return http.StatusNotFound
	case errors.Is(err, viewmodel.ErrClosed):
		return http.StatusServiceUnavailable
	case apiclient.IsHTTP(err), apiclient.IsParse(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

// --- Stats ---

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.stats.Load(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: snap, SummaryText: snap.SummaryText()})
}

type statsResponse struct {
	models.Stats
	// SummaryText is the summary with the placeholder applied.
	SummaryText string `json:"summaryText"`
}

// --- Issues ---

// listIssues refreshes from the remote API and returns the view filtered
// by ?search=. Each request filters independently; the view model's own
// search text is left alone.
func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.issues.Refresh(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, filter.Issues(issues, r.URL.Query().Get("search")))
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.issues.Refresh(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	issue, ok := s.issues.Find(id)
	if !ok {
		writeError(w, http.StatusNotFound, "issue not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

type updateRequest struct {
	Status   string `json:"status"`
	Expected string `json:"expected"`
}

// updateIssue runs an update and answers with the refreshed view, filtered
// by ?search=.
func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var status models.IssueStatus
	if req.Status != "" {
		parsed, err := models.ParseStatus(req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = parsed
	}

	// The update starts from the server's copy of the record.
	if _, ok := s.issues.Find(id); !ok {
		if _, err := s.issues.Refresh(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	if err := s.issues.Update(r.Context(), id, status, req.Expected); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, filter.Issues(s.issues.State().Issues, r.URL.Query().Get("search")))
}

// --- Activity ---

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "activity journal not configured")
		return
	}

	q := r.URL.Query()
	f := store.ActivityFilter{
		Kind:    models.ActivityKind(q.Get("kind")),
		IssueID: q.Get("issue"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}
	if v := q.Get("failed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid failed flag")
			return
		}
		f.FailedOnly = b
	}

	entries, err := s.journal.ListActivity(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.Activity{}
	}
	writeJSON(w, http.StatusOK, entries)
}
