package viewmodel

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/joescharf/civicadmin/internal/apiclient"
	"github.com/joescharf/civicadmin/internal/filter"
	"github.com/joescharf/civicadmin/internal/models"
)

// IssuesState is what the triage view renders.
type IssuesState struct {
	Issues   []models.Issue
	Filtered []models.Issue
	Search   string
	Loading  bool
	Busy     bool  // an update is in flight
	Err      error // last refresh failure
	// UpdateErr is the last update failure. A refresh failing after a
	// successful update lands in Err, not here.
	UpdateErr error
}

// Issues is the triage view model. The collection mirrors the server and
// is only ever replaced as a whole by Refresh; Update never patches it.
type Issues struct {
	source IssueSource
	opts   options

	mu         sync.Mutex
	list       apiclient.ListOptions
	state      IssuesState
	refreshing int
	updating   int
	closed     bool
}

// NewIssues returns a triage view model backed by source.
func NewIssues(source IssueSource, opts ...Option) *Issues {
	return &Issues{
		source: source,
		opts:   buildOptions(opts),
		state: IssuesState{
			Issues:   []models.Issue{},
			Filtered: []models.Issue{},
		},
	}
}

// SetStatusFilter asks the server for a single status on later refreshes.
// An empty status lists everything.
func (vm *Issues) SetStatusFilter(status models.IssueStatus) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.list.Status = status
}

// Refresh replaces the collection with a fresh server listing and
// recomputes the filtered view. On failure both are emptied. Concurrent
// refreshes are independent; whichever response lands last wins.
func (vm *Issues) Refresh(ctx context.Context) ([]models.Issue, error) {
	return vm.refresh(ctx, nil)
}

// RefreshWith is Refresh with list options for this call only. The status
// filter set by SetStatusFilter, which later refreshes and Update use, is
// left alone.
func (vm *Issues) RefreshWith(ctx context.Context, opts apiclient.ListOptions) ([]models.Issue, error) {
	return vm.refresh(ctx, &opts)
}

func (vm *Issues) refresh(ctx context.Context, override *apiclient.ListOptions) ([]models.Issue, error) {
	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return nil, ErrClosed
	}
	vm.refreshing++
	vm.state.Loading = true
	list := vm.list
	if override != nil {
		list = *override
	}
	vm.mu.Unlock()

	issues, err := vm.source.ListIssues(ctx, list)

	vm.mu.Lock()
	vm.refreshing--
	vm.state.Loading = vm.refreshing > 0
	if vm.closed {
		vm.mu.Unlock()
		return nil, ErrClosed
	}
	if err != nil {
		vm.state.Issues = []models.Issue{}
		vm.state.Filtered = []models.Issue{}
		vm.state.Err = err
		vm.mu.Unlock()

		vm.opts.logger.Error("refresh issues failed", "error", err)
		vm.opts.record(ctx, models.ActivityRefresh, "", "", err)
		return nil, fmt.Errorf("refresh issues: %w", err)
	}

	if issues == nil {
		issues = []models.Issue{}
	}
	vm.state.Issues = issues
	vm.state.Filtered = filter.Issues(issues, vm.state.Search)
	vm.state.Err = nil
	out := slices.Clone(issues)
	vm.mu.Unlock()

	vm.opts.record(ctx, models.ActivityRefresh, "", fmt.Sprintf("%d issues", len(out)), nil)
	return out, nil
}

// ApplyFilter recomputes the filtered view for search. No network.
func (vm *Issues) ApplyFilter(search string) []models.Issue {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.state.Search = search
	vm.state.Filtered = filter.Issues(vm.state.Issues, search)
	return slices.Clone(vm.state.Filtered)
}

// Update sets the status and expected-completion date of issue id and then
// refreshes the whole collection from the server. The local collection is
// never patched. An empty expected date is sent as models.UnderReview.
//
// If the PUT fails the collection is untouched and UpdateErr is set. If the
// PUT succeeds but the refresh fails, the refresh error is returned and the
// collection is empty, as after any failed refresh.
func (vm *Issues) Update(ctx context.Context, id string, status models.IssueStatus, expected string) error {
	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return ErrClosed
	}
	idx := slices.IndexFunc(vm.state.Issues, func(i models.Issue) bool { return i.ID == id })
	if idx < 0 {
		vm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrIssueNotFound, id)
	}
	updated := vm.state.Issues[idx].WithUpdate(status, expected)
	vm.updating++
	vm.state.Busy = true
	vm.mu.Unlock()

	defer func() {
		vm.mu.Lock()
		vm.updating--
		vm.state.Busy = vm.updating > 0
		vm.mu.Unlock()
	}()

	detail := fmt.Sprintf("status=%s expected=%s", updated.Status, updated.ExpectedCompletionDate)
	if err := vm.source.UpdateIssue(ctx, updated); err != nil {
		vm.mu.Lock()
		if !vm.closed {
			vm.state.UpdateErr = err
		}
		vm.mu.Unlock()

		vm.opts.logger.Error("update issue failed", "issue", id, "error", err)
		vm.opts.record(ctx, models.ActivityUpdate, id, detail, err)
		return fmt.Errorf("update issue %s: %w", id, err)
	}

	vm.mu.Lock()
	vm.state.UpdateErr = nil
	vm.mu.Unlock()
	vm.opts.record(ctx, models.ActivityUpdate, id, detail, nil)

	if _, err := vm.Refresh(ctx); err != nil {
		return fmt.Errorf("issue %s updated, but reload failed: %w", id, err)
	}
	return nil
}

// Busy reports whether an update is in flight. Advisory only: concurrent
// updates are neither queued nor rejected.
func (vm *Issues) Busy() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state.Busy
}

// Find returns the issue with id from the current collection.
func (vm *Issues) Find(id string) (models.Issue, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	idx := slices.IndexFunc(vm.state.Issues, func(i models.Issue) bool { return i.ID == id })
	if idx < 0 {
		return models.Issue{}, false
	}
	return vm.state.Issues[idx], true
}

// State returns a copy of the current state.
func (vm *Issues) State() IssuesState {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	s := vm.state
	s.Issues = slices.Clone(vm.state.Issues)
	s.Filtered = slices.Clone(vm.state.Filtered)
	return s
}

// Close detaches the view model; results of in-flight requests are
// discarded and later calls return ErrClosed.
func (vm *Issues) Close() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.closed = true
}
