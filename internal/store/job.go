package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
)

// JobStore defines the interface for job persistence.
type JobStore interface {
	// Create saves a new queued job and assigns its creation sequence.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// Update saves the job's status, progress, result, error and timestamps,
	// but only while the stored status still equals from.
	// Returns ErrStaleStatus when it does not and ErrJobNotFound for an unknown job.
	// The cancellation flag is never written by Update.
	Update(ctx context.Context, job *domain.Job, from domain.JobStatus) error

	// RequestCancellation sets the cancellation flag of a running job.
	// Returns ErrStaleStatus if the job is no longer running.
	RequestCancellation(ctx context.Context, id uuid.UUID) error

	// ClaimNextQueued stamps claimedAt on the oldest queued job (by creation
	// time, then creation sequence) and returns it, or nil when the queue is empty.
	ClaimNextQueued(ctx context.Context, claimedAt time.Time) (*domain.Job, error)

	// ListByProject returns a project's jobs, newest first.
	ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*domain.Job, error)

	// ListRunningStartedBefore returns running jobs whose StartedAt precedes t.
	ListRunningStartedBefore(ctx context.Context, t time.Time) ([]*domain.Job, error)
}
