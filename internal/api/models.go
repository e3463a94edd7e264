package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/pipeline"
)

// CreateJobRequest is the payload of POST /api/jobs/task-pipeline.
type CreateJobRequest struct {
	ProjectID string          `json:"project_id" validate:"required,uuid"`
	SprintID  string          `json:"sprint_id"  validate:"required,uuid"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ChangeStatusRequest is the payload of PATCH /api/work-items/{id}/status.
type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=todo in_progress done blocked ready_for_dev stale"`
}

// JobResponse is the public view of a job.
type JobResponse struct {
	ID                    uuid.UUID       `json:"id"`
	ProjectID             uuid.UUID       `json:"project_id"`
	SprintID              *uuid.UUID      `json:"sprint_id,omitempty"`
	Type                  string          `json:"type"`
	Status                string          `json:"status"`
	ProgressPct           int             `json:"progress_pct"`
	CurrentStep           string          `json:"current_step,omitempty"`
	CancellationRequested bool            `json:"cancellation_requested"`
	Result                json.RawMessage `json:"result,omitempty"`
	ErrorMessage          *string         `json:"error_message,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	StartedAt             *time.Time      `json:"started_at,omitempty"`
	FinishedAt            *time.Time      `json:"finished_at,omitempty"`
}

// JobListResponse is a page of jobs.
type JobListResponse struct {
	Jobs   []JobResponse `json:"jobs"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// WorkItemResponse is the public view of a work item.
type WorkItemResponse struct {
	ID                 uuid.UUID  `json:"id"`
	SprintID           uuid.UUID  `json:"sprint_id"`
	PlanningUnitID     *uuid.UUID `json:"planning_unit_id,omitempty"`
	ParentID           *uuid.UUID `json:"parent_id,omitempty"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Status             string     `json:"status"`
	Granularity        string     `json:"granularity"`
	RefinementRound    int        `json:"refinement_round"`
	OrderIndex         int        `json:"order_index"`
	AcceptanceCriteria []string   `json:"acceptance_criteria,omitempty"`
	DoDFocus           *string    `json:"dod_focus,omitempty"`
	NFRFocus           []string   `json:"nfr_focus,omitempty"`
	EstimatePoints     *int       `json:"estimate_points,omitempty"`
	Tags               []string   `json:"tags,omitempty"`
}

// WorkItemListResponse is a list of work items.
type WorkItemListResponse struct {
	Items []WorkItemResponse `json:"items"`
}

// DraftResponse reports the outcome of the draft pass.
type DraftResponse struct {
	Items []WorkItemResponse `json:"items"`
}

// RefineResponse reports the outcome of the refine pass.
type RefineResponse struct {
	Items        []WorkItemResponse `json:"items"`
	Unreferenced int                `json:"unreferenced"`
	Edges        int                `json:"edges"`
}

// SplitResponse reports the outcome of the split pass.
type SplitResponse struct {
	Items        []WorkItemResponse `json:"items"`
	Superseded   int                `json:"superseded"`
	StaleParents int                `json:"stale_parents"`
}

// PlanningUnitResponse is the public view of a planning unit.
type PlanningUnitResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
}

// UnitOrderResponse lists planning units in dependency order.
type UnitOrderResponse struct {
	Units []PlanningUnitResponse `json:"units"`
}

// UnitDependenciesResponse lists derived planning unit dependencies.
type UnitDependenciesResponse struct {
	Dependencies []domain.PlanningUnitDependency `json:"dependencies"`
}

// WorkItemOrderResponse lists work item IDs in dependency order.
type WorkItemOrderResponse struct {
	ItemIDs []uuid.UUID `json:"item_ids"`
}

func jobToResponse(j *domain.Job) JobResponse {
	return JobResponse{
		ID:                    j.ID,
		ProjectID:             j.ProjectID,
		SprintID:              j.SprintID,
		Type:                  string(j.Type),
		Status:                string(j.Status),
		ProgressPct:           j.ProgressPct,
		CurrentStep:           j.CurrentStep,
		CancellationRequested: j.CancellationRequested,
		Result:                j.Result,
		ErrorMessage:          j.ErrorMessage,
		CreatedAt:             j.CreatedAt,
		StartedAt:             j.StartedAt,
		FinishedAt:            j.FinishedAt,
	}
}

func workItemToResponse(w *domain.WorkItem) WorkItemResponse {
	return WorkItemResponse{
		ID:                 w.ID,
		SprintID:           w.SprintID,
		PlanningUnitID:     w.PlanningUnitID,
		ParentID:           w.ParentID,
		Title:              w.Title,
		Description:        w.Description,
		Status:             string(w.Status),
		Granularity:        string(w.Granularity),
		RefinementRound:    w.RefinementRound,
		OrderIndex:         w.OrderIndex,
		AcceptanceCriteria: w.AcceptanceCriteria,
		DoDFocus:           w.DoDFocus,
		NFRFocus:           w.NFRFocus,
		EstimatePoints:     w.EstimatePoints,
		Tags:               w.Tags,
	}
}

func workItemsToResponse(items []*domain.WorkItem) []WorkItemResponse {
	out := make([]WorkItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, workItemToResponse(it))
	}
	return out
}

func draftToResponse(r *pipeline.DraftResult) DraftResponse {
	return DraftResponse{Items: workItemsToResponse(r.Items)}
}

func refineToResponse(r *pipeline.RefineResult) RefineResponse {
	return RefineResponse{Items: workItemsToResponse(r.Refined), Unreferenced: r.Unreferenced, Edges: r.Edges}
}

func splitToResponse(r *pipeline.SplitResult) SplitResponse {
	return SplitResponse{Items: workItemsToResponse(r.Created), Superseded: r.Superseded, StaleParents: r.StaleParents}
}
