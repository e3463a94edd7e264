package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// TypeJobCreated is emitted after a job is stored as queued.
	TypeJobCreated = "job.created"
	// TypeJobCancelRequested is emitted when cancellation of a running job is requested.
	TypeJobCancelRequested = "job.cancel_requested"
)

// JobEvent reports a change to a job.
type JobEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	JobID     uuid.UUID `json:"job_id"`
	ProjectID uuid.UUID `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewJobEvent creates an event of eventType for a job.
func NewJobEvent(eventType string, jobID, projectID uuid.UUID) *JobEvent {
	return &JobEvent{
		ID:        uuid.New(),
		Type:      eventType,
		JobID:     jobID,
		ProjectID: projectID,
		CreatedAt: time.Now().UTC(),
	}
}

// EventHandler processes events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// EventEmitter publishes events to the registered handlers.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *JobEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *JobEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *JobEvent) error {
	return f(ctx, event)
}
