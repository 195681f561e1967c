package viewmodel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/civicadmin/internal/apiclient"
	"github.com/joescharf/civicadmin/internal/models"
)

type fakeStats struct {
	snap  *models.Stats
	err   error
	calls int
	hook  func()
}

func (f *fakeStats) Stats(context.Context) (*models.Stats, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	return f.snap, f.err
}

func sampleStats() *models.Stats {
	return &models.Stats{
		KeyMetrics: models.KeyMetrics{TotalPending: 4, HighPriority: 1, TotalCompleted: 9},
		ByStatus:   []models.NamedCount{{Name: "New", Value: 3}, {Name: "Processing", Value: 1}},
		ByPriority: []models.NamedCount{{Name: "HIGH", Value: 1}},
		Summary:    "Quiet week.",
	}
}

func TestStats_Load(t *testing.T) {
	src := &fakeStats{snap: sampleStats()}
	rec := &memRecorder{}
	vm := NewStats(src, WithLogger(quietLogger()), WithRecorder(rec))

	assert.False(t, vm.State().Loaded)

	got, err := vm.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, *sampleStats(), got)

	s := vm.State()
	assert.True(t, s.Loaded)
	assert.False(t, s.Loading)
	assert.NoError(t, s.Err)
	assert.Equal(t, "Quiet week.", s.Snapshot.SummaryText())

	require.Len(t, rec.entries, 1)
	assert.Equal(t, models.ActivityStats, rec.entries[0].Kind)
	assert.Contains(t, rec.entries[0].Detail, "pending=4")
}

func TestStats_MissingByPriority(t *testing.T) {
	snap := sampleStats()
	snap.ByPriority = nil
	snap.Summary = ""
	vm := NewStats(&fakeStats{snap: snap}, WithLogger(quietLogger()))

	got, err := vm.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.ByPriority)
	assert.Len(t, got.ByStatus, 2)
	assert.Equal(t, models.NoSummary, got.SummaryText())
}

func TestStats_FailureKeepsSnapshot(t *testing.T) {
	src := &fakeStats{snap: sampleStats()}
	rec := &memRecorder{}
	vm := NewStats(src, WithLogger(quietLogger()), WithRecorder(rec))

	_, err := vm.Load(context.Background())
	require.NoError(t, err)

	src.snap, src.err = nil, &apiclient.AuthError{Err: errors.New("no token")}
	_, err = vm.Load(context.Background())
	require.Error(t, err)
	assert.True(t, apiclient.IsAuth(err))

	s := vm.State()
	assert.Error(t, s.Err)
	assert.True(t, s.Loaded)
	assert.Equal(t, *sampleStats(), s.Snapshot)

	require.Len(t, rec.entries, 2)
	assert.True(t, rec.entries[1].Failed())
}

func TestStats_NoRetry(t *testing.T) {
	src := &fakeStats{err: errors.New("boom")}
	vm := NewStats(src, WithLogger(quietLogger()))

	_, err := vm.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestStats_CloseDiscardsLateResults(t *testing.T) {
	var vm *Stats
	src := &fakeStats{snap: sampleStats()}
	src.hook = func() { vm.Close() }
	vm = NewStats(src, WithLogger(quietLogger()))

	_, err := vm.Load(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, vm.State().Loaded)
}

func TestStats_IndependentOfIssues(t *testing.T) {
	stats := NewStats(&fakeStats{err: errors.New("stats down")}, WithLogger(quietLogger()))
	issues := newTestIssues(&fakeBackend{issues: seedIssues()}, nil)

	_, err := stats.Load(context.Background())
	require.Error(t, err)

	got, err := issues.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NoError(t, issues.State().Err)
}

func TestStats_StateIsACopy(t *testing.T) {
	src := &fakeStats{snap: sampleStats()}
	vm := NewStats(src, WithLogger(quietLogger()))

	got, err := vm.Load(context.Background())
	require.NoError(t, err)
	got.ByStatus[0].Name = "changed by caller"
	src.snap.ByPriority[0].Value = 99

	s := vm.State()
	s.Snapshot.ByStatus[1].Value = 42
	s.Snapshot.ByPriority = append(s.Snapshot.ByPriority[:0], models.NamedCount{Name: "LOW"})

	again := vm.State().Snapshot
	assert.Equal(t, sampleStats().ByStatus, again.ByStatus)
	assert.Equal(t, sampleStats().ByPriority, again.ByPriority)
}
