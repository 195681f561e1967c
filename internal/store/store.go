package store

import (
	"context"

	"github.com/joescharf/civicadmin/internal/models"
)

// DefaultActivityLimit caps ListActivity when no limit is given.
const DefaultActivityLimit = 50

// ActivityFilter specifies filters for listing journal entries.
type ActivityFilter struct {
	Kind    models.ActivityKind
	IssueID string
	// FailedOnly keeps only entries that recorded an error.
	FailedOnly bool
	Limit      int
}

// Store is the local activity journal. It never holds issue data or tokens.
type Store interface {
	Record(ctx context.Context, a *models.Activity) error
	ListActivity(ctx context.Context, filter ActivityFilter) ([]*models.Activity, error)
	PruneActivity(ctx context.Context, keep int) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
