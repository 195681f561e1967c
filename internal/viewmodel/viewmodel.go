// Package viewmodel holds the operator-facing state for the dashboard and
// issue triage views, independent of how that state is rendered.
package viewmodel

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joescharf/civicadmin/internal/apiclient"
	"github.com/joescharf/civicadmin/internal/models"
)

var (
	// ErrClosed is returned when a view model has been closed; results of
	// requests that were in flight at that point are discarded.
	ErrClosed = errors.New("view model closed")

	// ErrIssueNotFound is returned by Update for an id not in the collection.
	ErrIssueNotFound = errors.New("issue not found")
)

// StatsSource fetches aggregate statistics.
type StatsSource interface {
	Stats(ctx context.Context) (*models.Stats, error)
}

// IssueSource lists and updates issues.
type IssueSource interface {
	ListIssues(ctx context.Context, opts apiclient.ListOptions) ([]models.Issue, error)
	UpdateIssue(ctx context.Context, issue models.Issue) error
}

// Recorder journals operator actions. Recording failures are logged and
// never change the outcome of the action.
type Recorder interface {
	Record(ctx context.Context, a *models.Activity) error
}

// Option configures a view model.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	recorder Recorder
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder journals each action to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) record(ctx context.Context, kind models.ActivityKind, issueID, detail string, err error) {
	if o.recorder == nil {
		return
	}
	a := &models.Activity{
		Kind:      kind,
		IssueID:   issueID,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		a.Error = err.Error()
	}
	// The journal outlives a cancelled request context.
	if rerr := o.recorder.Record(context.WithoutCancel(ctx), a); rerr != nil {
		o.logger.Warn("failed to record activity", "kind", kind, "error", rerr)
	}
}
