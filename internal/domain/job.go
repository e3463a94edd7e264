package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a background job
type JobStatus string

// Possible job status values
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobType identifies the stage sequence a job executes
type JobType string

// JobTypeTaskPipeline runs Draft, Refine and Split for one sprint.
const JobTypeTaskPipeline JobType = "task_pipeline_for_sprint"

// Common validation errors for Job
var (
	ErrEmptyJobID        = errors.New("job ID cannot be empty")
	ErrEmptyJobProjectID = errors.New("job project ID cannot be empty")
	ErrEmptyJobType      = errors.New("job type cannot be empty")
	ErrInvalidJobStatus  = errors.New("invalid job status")
	ErrInvalidProgress   = errors.New("progress must be between 0 and 100")
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:  {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

// IsTerminal reports whether no further transition is possible from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Job is a trackable unit of background work. Jobs are created queued,
// claimed by a worker, and reach exactly one terminal status.
type Job struct {
	ID                    uuid.UUID       `json:"id"`
	Seq                   int64           `json:"-"`
	ProjectID             uuid.UUID       `json:"project_id"`
	SprintID              *uuid.UUID      `json:"sprint_id,omitempty"`
	Type                  JobType         `json:"type"`
	Status                JobStatus       `json:"status"`
	Payload               json.RawMessage `json:"payload,omitempty"`
	Result                json.RawMessage `json:"result,omitempty"`
	ErrorMessage          *string         `json:"error_message,omitempty"`
	ProgressPct           int             `json:"progress_pct"`
	CurrentStep           string          `json:"current_step,omitempty"`
	CancellationRequested bool            `json:"cancellation_requested"`
	ClaimedAt             *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	StartedAt             *time.Time      `json:"started_at,omitempty"`
	FinishedAt            *time.Time      `json:"finished_at,omitempty"`
}

// NewJob creates a queued job for the given project and optional sprint.
func NewJob(projectID uuid.UUID, sprintID *uuid.UUID, jobType JobType, payload json.RawMessage) (*Job, error) {
	job := &Job{
		ID:        uuid.New(),
		ProjectID: projectID,
		SprintID:  sprintID,
		Type:      jobType,
		Status:    JobStatusQueued,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}
	if j.ProjectID == uuid.Nil {
		return ErrEmptyJobProjectID
	}
	if j.Type == "" {
		return ErrEmptyJobType
	}
	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}
	if j.ProgressPct < 0 || j.ProgressPct > 100 {
		return ErrInvalidProgress
	}
	return nil
}

// TransitionTo moves the job to next, stamping StartedAt when it starts
// running and FinishedAt when it reaches a terminal status.
// Returns ErrInvalidTransition without mutating the job if the move is not allowed.
func (j *Job) TransitionTo(next JobStatus, now time.Time) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: job %s from %s to %s", ErrInvalidTransition, j.ID, j.Status, next)
	}

	j.Status = next
	switch {
	case next == JobStatusRunning:
		j.StartedAt = &now
		j.ProgressPct = 0
	case next.IsTerminal():
		j.FinishedAt = &now
		if next == JobStatusCompleted {
			j.ProgressPct = 100
		}
	}
	return nil
}

// SetProgress records the current step and progress of a running job.
func (j *Job) SetProgress(pct int, step string) error {
	if pct < 0 || pct > 100 {
		return ErrInvalidProgress
	}
	if j.Status == JobStatusRunning && pct < j.ProgressPct {
		return fmt.Errorf("%w: %d -> %d", ErrProgressRegression, j.ProgressPct, pct)
	}
	j.ProgressPct = pct
	j.CurrentStep = step
	return nil
}

// Fail moves a running job to failed and records msg.
func (j *Job) Fail(msg string, now time.Time) error {
	if err := j.TransitionTo(JobStatusFailed, now); err != nil {
		return err
	}
	j.ErrorMessage = &msg
	return nil
}

func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}
