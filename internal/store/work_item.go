package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
)

// WorkItemFilter narrows ListBySprint. Zero values mean "any".
type WorkItemFilter struct {
	Granularity domain.Granularity
	Status      domain.WorkItemStatus
	Limit       int
	Offset      int
}

// WorkItemStore defines the interface for work item and dependency edge persistence.
type WorkItemStore interface {
	// CreateBatch saves new work items.
	CreateBatch(ctx context.Context, items []*domain.WorkItem) error

	// GetByID retrieves a live work item.
	// Returns ErrWorkItemNotFound if it does not exist or is superseded.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkItem, error)

	// Update saves every mutable field of a live work item.
	Update(ctx context.Context, item *domain.WorkItem) error

	// ListBySprint returns live items of a sprint ordered by OrderIndex.
	ListBySprint(ctx context.Context, sprintID uuid.UUID, filter WorkItemFilter) ([]*domain.WorkItem, error)

	// MaxOrderIndex returns the highest order index ever assigned in the sprint,
	// superseded rows included, or -1 when the sprint has no items.
	MaxOrderIndex(ctx context.Context, sprintID uuid.UUID) (int, error)

	// SupersedeByGranularity marks every live item of the given granularity in
	// the sprint as superseded at t and removes their dependency edges.
	// Returns the number of items superseded.
	SupersedeByGranularity(ctx context.Context, sprintID uuid.UUID, g domain.Granularity, t time.Time) (int, error)

	// ReplaceDependencies deletes every edge whose ItemID is in itemIDs and
	// inserts edges. Duplicate edges are stored once.
	ReplaceDependencies(ctx context.Context, itemIDs []uuid.UUID, edges []domain.DependencyEdge) error

	// ListDependencies returns edges between live items of the sprint.
	ListDependencies(ctx context.Context, sprintID uuid.UUID) ([]domain.DependencyEdge, error)
}
