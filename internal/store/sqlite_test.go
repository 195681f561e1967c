package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/civicadmin/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestRecord_FillsIDAndTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.Activity{Kind: models.ActivityRefresh, Detail: "2 issues"}
	require.NoError(t, s.Record(ctx, a))
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	got, err := s.ListActivity(ctx, ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, models.ActivityRefresh, got[0].Kind)
	assert.Equal(t, "2 issues", got[0].Detail)
	assert.False(t, got[0].Failed())
	assert.WithinDuration(t, a.CreatedAt, got[0].CreatedAt, time.Second)
}

func TestRecord_RequiresKind(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Record(context.Background(), &models.Activity{}))
}

func TestListActivity_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, kind := range []models.ActivityKind{models.ActivityStats, models.ActivityRefresh, models.ActivityUpdate} {
		require.NoError(t, s.Record(ctx, &models.Activity{Kind: kind}))
	}

	got, err := s.ListActivity(ctx, ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, models.ActivityUpdate, got[0].Kind)
	assert.Equal(t, models.ActivityStats, got[2].Kind)
}

func TestListActivity_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []*models.Activity{
		{Kind: models.ActivityUpdate, IssueID: "a1", Detail: "status=Completed"},
		{Kind: models.ActivityRefresh, Error: "API 500 Internal Server Error: boom"},
		{Kind: models.ActivityUpdate, IssueID: "b2", Error: "API 400 Bad Request: missing"},
		{Kind: models.ActivityRefresh, Detail: "3 issues"},
	}
	for _, a := range entries {
		require.NoError(t, s.Record(ctx, a))
	}

	updates, err := s.ListActivity(ctx, ActivityFilter{Kind: models.ActivityUpdate})
	require.NoError(t, err)
	assert.Len(t, updates, 2)

	forIssue, err := s.ListActivity(ctx, ActivityFilter{IssueID: "a1"})
	require.NoError(t, err)
	require.Len(t, forIssue, 1)
	assert.Equal(t, "status=Completed", forIssue[0].Detail)

	failed, err := s.ListActivity(ctx, ActivityFilter{FailedOnly: true})
	require.NoError(t, err)
	require.Len(t, failed, 2)
	for _, a := range failed {
		assert.True(t, a.Failed())
	}

	failedUpdates, err := s.ListActivity(ctx, ActivityFilter{Kind: models.ActivityUpdate, FailedOnly: true})
	require.NoError(t, err)
	require.Len(t, failedUpdates, 1)
	assert.Equal(t, "b2", failedUpdates[0].IssueID)
}

func TestListActivity_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range DefaultActivityLimit + 5 {
		require.NoError(t, s.Record(ctx, &models.Activity{Kind: models.ActivityStats}))
	}

	got, err := s.ListActivity(ctx, ActivityFilter{})
	require.NoError(t, err)
	assert.Len(t, got, DefaultActivityLimit)

	got, err = s.ListActivity(ctx, ActivityFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestPruneActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for range 5 {
		a := &models.Activity{Kind: models.ActivityRefresh}
		require.NoError(t, s.Record(ctx, a))
		ids = append(ids, a.ID)
	}

	n, err := s.PruneActivity(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := s.ListActivity(ctx, ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[4], got[0].ID)
	assert.Equal(t, ids[3], got[1].ID)

	n, err = s.PruneActivity(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
