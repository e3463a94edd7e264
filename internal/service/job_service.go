package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/events"
	"github.com/phrazzld/sprint-planner-api/internal/platform/logger"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// JobPoller claims and runs the next queued job.
type JobPoller interface {
	Poll(ctx context.Context) (*domain.Job, error)
}

// JobService manages the job lifecycle from the caller's side.
type JobService interface {
	// CreateJob queues a sprint pipeline job and announces it.
	CreateJob(ctx context.Context, projectID, sprintID uuid.UUID, payload json.RawMessage) (*domain.Job, error)

	// GetJob returns a job by ID.
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ListProjectJobs returns a project's jobs, newest first.
	ListProjectJobs(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*domain.Job, error)

	// CancelJob cancels a queued job at once or flags a running job for
	// cancellation at its next stage boundary. Finished jobs yield ErrConflict.
	CancelJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// RunNextJob runs the oldest queued job in the caller's goroutine.
	// It returns nil when the queue is empty.
	RunNextJob(ctx context.Context) (*domain.Job, error)
}

type jobServiceImpl struct {
	provider store.Provider
	poller   JobPoller
	emitter  events.EventEmitter
	logger   *slog.Logger
	now      func() time.Time
}

var _ JobService = (*jobServiceImpl)(nil)

// NewJobService creates a JobService. It returns an error if a required
// dependency is nil.
func NewJobService(
	provider store.Provider,
	poller JobPoller,
	emitter events.EventEmitter,
	log *slog.Logger,
) (JobService, error) {
	if provider == nil {
		return nil, &Error{Operation: "create_service", Message: "provider cannot be nil"}
	}
	if poller == nil {
		return nil, &Error{Operation: "create_service", Message: "poller cannot be nil"}
	}
	if emitter == nil {
		return nil, &Error{Operation: "create_service", Message: "emitter cannot be nil"}
	}
	if log == nil {
		log = slog.Default()
	}

	return &jobServiceImpl{
		provider: provider,
		poller:   poller,
		emitter:  emitter,
		logger:   log.With(slog.String("component", "job_service")),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *jobServiceImpl) CreateJob(
	ctx context.Context,
	projectID, sprintID uuid.UUID,
	payload json.RawMessage,
) (*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	sprint, err := s.provider.Planning().GetSprint(ctx, sprintID)
	if err != nil {
		return nil, NewError("create_job", "failed to load sprint", err)
	}
	if sprint.ProjectID != projectID {
		return nil, fmt.Errorf("%w: sprint %s does not belong to project %s",
			domain.ErrValidation, sprintID, projectID)
	}

	job, err := domain.NewJob(projectID, &sprintID, domain.JobTypeTaskPipeline, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	job.CreatedAt = s.now()

	if err := s.provider.Jobs().Create(ctx, job); err != nil {
		log.ErrorContext(ctx, "failed to create job", "project_id", projectID, "error", err)
		return nil, NewError("create_job", "failed to save job", err)
	}

	// The job is durable; a failed notification only delays pickup until the next poll.
	if err := s.emitter.EmitEvent(ctx, events.NewJobEvent(events.TypeJobCreated, job.ID, projectID)); err != nil {
		log.WarnContext(ctx, "failed to announce job", "job_id", job.ID, "error", err)
	}

	log.InfoContext(ctx, "job queued", "job_id", job.ID, "project_id", projectID, "sprint_id", sprintID)
	return job, nil
}

func (s *jobServiceImpl) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := s.provider.Jobs().GetByID(ctx, id)
	if err != nil {
		return nil, NewError("get_job", "failed to load job", err)
	}
	return job, nil
}

func (s *jobServiceImpl) ListProjectJobs(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*domain.Job, error) {
	if _, err := s.provider.Planning().GetProject(ctx, projectID); err != nil {
		return nil, NewError("list_jobs", "failed to load project", err)
	}
	jobs, err := s.provider.Jobs().ListByProject(ctx, projectID, limit, offset)
	if err != nil {
		return nil, NewError("list_jobs", "failed to list jobs", err)
	}
	return jobs, nil
}

func (s *jobServiceImpl) CancelJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	jobs := s.provider.Jobs()

	job, err := jobs.GetByID(ctx, id)
	if err != nil {
		return nil, NewError("cancel_job", "failed to load job", err)
	}

	if job.Status == domain.JobStatusQueued {
		if err := job.TransitionTo(domain.JobStatusCancelled, s.now()); err != nil {
			return nil, err
		}
		err := jobs.Update(ctx, job, domain.JobStatusQueued)
		if err == nil {
			log.InfoContext(ctx, "queued job cancelled", "job_id", id)
			return job, nil
		}
		if !errors.Is(err, store.ErrStaleStatus) {
			return nil, NewError("cancel_job", "failed to cancel queued job", err)
		}
		// A worker started it meanwhile; fall through and flag the running job.
		if job, err = jobs.GetByID(ctx, id); err != nil {
			return nil, NewError("cancel_job", "failed to reload job", err)
		}
	}

	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: job %s is already %s", ErrConflict, id, job.Status)
	}

	if err := jobs.RequestCancellation(ctx, id); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: job %s finished before it could be cancelled", ErrConflict, id)
		}
		return nil, NewError("cancel_job", "failed to request cancellation", err)
	}
	job.CancellationRequested = true

	if err := s.emitter.EmitEvent(ctx, events.NewJobEvent(events.TypeJobCancelRequested, id, job.ProjectID)); err != nil {
		log.WarnContext(ctx, "failed to announce cancellation", "job_id", id, "error", err)
	}
	log.InfoContext(ctx, "cancellation requested", "job_id", id)
	return job, nil
}

func (s *jobServiceImpl) RunNextJob(ctx context.Context) (*domain.Job, error) {
	job, err := s.poller.Poll(ctx)
	if err != nil {
		return nil, NewError("run_next_job", "failed to run job", err)
	}
	return job, nil
}
