package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus is the outcome recorded for one generation call
type CallStatus string

// Recorded call outcomes
const (
	CallStatusSuccess CallStatus = "success"
	CallStatusFailed  CallStatus = "failed"
)

// CallLog is the audit record of one generation call.
type CallLog struct {
	ID        uuid.UUID  `json:"id"`
	ProjectID uuid.UUID  `json:"project_id"`
	JobID     *uuid.UUID `json:"job_id,omitempty"`
	StepType  string     `json:"step_type"`
	Status    CallStatus `json:"status"`
	Request   string     `json:"request"`
	Response  string     `json:"response"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewCallLog creates an audit record stamped with the current time.
func NewCallLog(projectID uuid.UUID, jobID *uuid.UUID, stepType string, status CallStatus, request, response string) *CallLog {
	return &CallLog{
		ID:        uuid.New(),
		ProjectID: projectID,
		JobID:     jobID,
		StepType:  stepType,
		Status:    status,
		Request:   request,
		Response:  response,
		CreatedAt: time.Now().UTC(),
	}
}

// UsageDay truncates t to the UTC calendar day used for quota accounting.
func UsageDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
