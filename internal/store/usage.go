package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
)

// UsageStore persists the per-project daily generation call counter.
type UsageStore interface {
	// IncrementIfBelow atomically adds one to the (project, day) counter when
	// it is below max, creating it if needed, and returns the new value.
	// Returns ErrLimitReached and leaves the counter unchanged otherwise.
	IncrementIfBelow(ctx context.Context, projectID uuid.UUID, day time.Time, max int) (int, error)

	// GetUsage returns the counter for (project, day), zero when absent.
	GetUsage(ctx context.Context, projectID uuid.UUID, day time.Time) (int, error)
}

// CallLogStore persists generation call audit records.
type CallLogStore interface {
	Create(ctx context.Context, entry *domain.CallLog) error

	// ListByProject returns the newest records first.
	ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*domain.CallLog, error)
}
