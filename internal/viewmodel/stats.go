package viewmodel

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/joescharf/civicadmin/internal/models"
)

// StatsState is what the dashboard renders.
type StatsState struct {
	Snapshot models.Stats
	Loaded   bool
	Loading  bool
	Err      error
}

// Stats is the dashboard view model. Load never retries; a failure is
// kept in the state until the next Load.
type Stats struct {
	source StatsSource
	opts   options

	mu       sync.Mutex
	state    StatsState
	inflight int
	closed   bool
}

// NewStats returns a dashboard view model backed by source.
func NewStats(source StatsSource, opts ...Option) *Stats {
	return &Stats{source: source, opts: buildOptions(opts)}
}

// Load fetches a fresh snapshot and replaces the current one. On failure
// the previous snapshot is kept and Err is set.
func (vm *Stats) Load(ctx context.Context) (models.Stats, error) {
	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return models.Stats{}, ErrClosed
	}
	vm.inflight++
	vm.state.Loading = true
	vm.mu.Unlock()

	snap, err := vm.source.Stats(ctx)

	vm.mu.Lock()
	vm.inflight--
	vm.state.Loading = vm.inflight > 0
	if vm.closed {
		vm.mu.Unlock()
		return models.Stats{}, ErrClosed
	}
	if err != nil {
		vm.state.Err = err
		vm.mu.Unlock()

		vm.opts.logger.Error("load stats failed", "error", err)
		vm.opts.record(ctx, models.ActivityStats, "", "", err)
		return models.Stats{}, fmt.Errorf("load stats: %w", err)
	}

	var out models.Stats
	if snap != nil {
		out = *snap
	}
	vm.state.Snapshot = cloneStats(out)
	vm.state.Loaded = true
	vm.state.Err = nil
	vm.mu.Unlock()

	vm.opts.record(ctx, models.ActivityStats, "",
		fmt.Sprintf("pending=%d high=%d completed=%d", out.KeyMetrics.TotalPending, out.KeyMetrics.HighPriority, out.KeyMetrics.TotalCompleted), nil)
	return out, nil
}

// State returns a copy of the current state.
func (vm *Stats) State() StatsState {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	st := vm.state
	st.Snapshot = cloneStats(st.Snapshot)
	return st
}

// cloneStats copies the breakdown slices so the stored snapshot never
// shares memory with a caller.
func cloneStats(s models.Stats) models.Stats {
	s.ByStatus = slices.Clone(s.ByStatus)
	s.ByPriority = slices.Clone(s.ByPriority)
	return s
}

// Close detaches the view model; later results are discarded.
func (vm *Stats) Close() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.closed = true
}
