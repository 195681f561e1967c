package cmd

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/spf13/viper"

	"github.com/joescharf/civicadmin/internal/models"
)

const testStatsBody = `{"statusCode":200,"body":"{\"keyMetrics\":{\"totalPending\":2,\"highPriority\":1,\"totalCompleted\":\"7\"},\"byStatus\":[{\"name\":\"New\",\"value\":1},{\"name\":\"Processing\",\"value\":1}],\"byPriority\":[{\"name\":\"HIGH\",\"value\":1}],\"aiExecutiveSummary\":\"Two open issues.\"}"}`

// fakeAPI is an in-process stand-in for the remote issue API.
type fakeAPI struct {
	mu       sync.Mutex
	issues   []models.Issue
	tokens   []string
	puts     []models.Issue
	failList bool
	failStat bool
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.tokens = append(f.tokens, r.Header.Get("Authorization"))
		if f.failStat {
			http.Error(w, "stats down", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, testStatsBody)
	})
	mux.HandleFunc("GET /issues", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.tokens = append(f.tokens, r.Header.Get("Authorization"))
		if f.failList {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		issues := f.issues
		if st := r.URL.Query().Get("status"); st != "" {
			issues = nil
			for _, i := range f.issues {
				if string(i.Status) == st {
					issues = append(issues, i)
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(issues)
	})
	mux.HandleFunc("PUT /issues/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var in models.Issue
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.puts = append(f.puts, in)
		for i := range f.issues {
			if f.issues[i].ID == r.PathValue("id") {
				f.issues[i] = in
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"message":"updated"}`)
	})
	return mux
}

// startFakeAPI serves a fake API and points config at it with a static
// token. Call after testEnv, which resets viper.
func startFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{issues: []models.Issue{
		{ID: "101", Type: "pothole", Location: "Main St", Status: models.IssueStatusNew, Priority: models.IssuePriorityHigh, ExpectedCompletionDate: models.UnderReview},
		{ID: "102", Type: "graffiti", Location: "Harbor Rd", Status: models.IssueStatusProcessing, Priority: models.IssuePriorityLow, ExpectedCompletionDate: "2 Mar 2026"},
		{ID: "103", Type: "streetlight", Location: "Elm Ct", Status: models.IssueStatusCompleted, Priority: models.IssuePriorityMedium, ExpectedCompletionDate: "1 Jan 2026"},
	}}
	ts := httptest.NewServer(f.handler())
	t.Cleanup(ts.Close)

	viper.Set("api.base_url", ts.URL)
	viper.Set("auth.token", "test-token")

	t.Cleanup(func() {
		issueSearch = ""
		issueStatus = ""
		issueExpected = ""
		reportFormat = "json"
		exportType = "issues"
		exportLimit = 1000
	})
	return f
}
