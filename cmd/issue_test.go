package cmd

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/civicadmin/internal/models"
	"github.com/joescharf/civicadmin/internal/store"
	"github.com/joescharf/civicadmin/internal/viewmodel"
)

func TestIssueList_Table(t *testing.T) {
	_, out := testEnv(t)
	f := startFakeAPI(t)

	require.NoError(t, issueListRun(context.Background()))

	got := out.String()
	assert.Contains(t, got, "pothole")
	assert.Contains(t, got, "graffiti")
	assert.Contains(t, got, "Completed")
	assert.Equal(t, []string{"Bearer test-token"}, f.tokens)
}

func TestIssueList_Search(t *testing.T) {
	_, out := testEnv(t)
	startFakeAPI(t)
	issueSearch = "HARBOR"
	jsonOutput = true

	require.NoError(t, issueListRun(context.Background()))

	var got []models.Issue
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "102", got[0].ID)
}

func TestIssueList_StatusFilter(t *testing.T) {
	_, out := testEnv(t)
	startFakeAPI(t)
	issueStatus = "completed"
	jsonOutput = true

	require.NoError(t, issueListRun(context.Background()))

	var got []models.Issue
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "103", got[0].ID)
}

func TestIssueList_InvalidStatus(t *testing.T) {
	testEnv(t)
	f := startFakeAPI(t)
	issueStatus = "done-ish"

	err := issueListRun(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status")
	assert.Empty(t, f.tokens, "no request for a bad flag")
}

func TestIssueList_NoBaseURL(t *testing.T) {
	testEnv(t)

	err := issueListRun(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url is not set")
}

func TestIssueList_Empty(t *testing.T) {
	_, out := testEnv(t)
	startFakeAPI(t)
	issueSearch = "no such thing"

	require.NoError(t, issueListRun(context.Background()))
	assert.Contains(t, out.String(), "No issues found")
}

func TestIssueShow(t *testing.T) {
	_, out := testEnv(t)
	startFakeAPI(t)

	require.NoError(t, issueShowRun(context.Background(), "102"))
	assert.Contains(t, out.String(), "Harbor Rd")
	assert.Contains(t, out.String(), "2 Mar 2026")
}

func TestIssueShow_NotFound(t *testing.T) {
	testEnv(t)
	startFakeAPI(t)

	err := issueShowRun(context.Background(), "999")
	assert.ErrorIs(t, err, viewmodel.ErrIssueNotFound)
}

func TestIssueUpdate(t *testing.T) {
	_, out := testEnv(t)
	f := startFakeAPI(t)
	issueStatus = "sorting-it-out"

	require.NoError(t, issueUpdateRun(context.Background(), "101"))

	require.Len(t, f.puts, 1)
	assert.Equal(t, models.IssueStatusSortingItOut, f.puts[0].Status)
	assert.Equal(t, models.UnderReview, f.puts[0].ExpectedCompletionDate)
	assert.Equal(t, "pothole", f.puts[0].Type, "full record is sent")
	assert.Contains(t, out.String(), "Updated issue")
	// refresh, update, refresh
	assert.Len(t, f.tokens, 3)
}

func TestIssueUpdate_KeepsStatusWhenOmitted(t *testing.T) {
	testEnv(t)
	f := startFakeAPI(t)
	issueExpected = "30 Apr 2026"

	require.NoError(t, issueUpdateRun(context.Background(), "102"))

	require.Len(t, f.puts, 1)
	assert.Equal(t, models.IssueStatusProcessing, f.puts[0].Status)
	assert.Equal(t, "30 Apr 2026", f.puts[0].ExpectedCompletionDate)
}

func TestIssueUpdate_DryRun(t *testing.T) {
	_, out := testEnv(t)
	f := startFakeAPI(t)
	dryRun = true
	ui.DryRun = true
	issueStatus = "Completed"

	require.NoError(t, issueUpdateRun(context.Background(), "101"))
	assert.Empty(t, f.puts)
	assert.Contains(t, out.String(), "Would update issue 101")
}

func TestIssueUpdate_UnknownID(t *testing.T) {
	testEnv(t)
	f := startFakeAPI(t)
	issueStatus = "Completed"

	err := issueUpdateRun(context.Background(), "999")
	assert.ErrorIs(t, err, viewmodel.ErrIssueNotFound)
	assert.Empty(t, f.puts)
}

func TestIssueUpdate_JournalsActivity(t *testing.T) {
	testEnv(t)
	startFakeAPI(t)
	issueStatus = "Completed"

	require.NoError(t, issueUpdateRun(context.Background(), "101"))

	s, err := getStore()
	require.NoError(t, err)
	entries, err := s.ListActivity(context.Background(), store.ActivityFilter{Kind: models.ActivityUpdate})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "101", entries[0].IssueID)
	assert.False(t, entries[0].Failed())
}

func TestIssueList_UpstreamFailure(t *testing.T) {
	testEnv(t)
	f := startFakeAPI(t)
	f.failList = true

	err := issueListRun(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestIssueList_NoToken(t *testing.T) {
	testEnv(t)
	f := startFakeAPI(t)
	viper.Set("auth.token", "")

	err := issueListRun(context.Background())
	require.Error(t, err)
	assert.Empty(t, f.tokens, "no request without a token")
}
