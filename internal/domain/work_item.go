package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WorkItemStatus represents the delivery state of a work item
type WorkItemStatus string

// Possible work item status values
const (
	WorkItemStatusTodo        WorkItemStatus = "todo"
	WorkItemStatusInProgress  WorkItemStatus = "in_progress"
	WorkItemStatusDone        WorkItemStatus = "done"
	WorkItemStatusBlocked     WorkItemStatus = "blocked"
	WorkItemStatusReadyForDev WorkItemStatus = "ready_for_dev"
	WorkItemStatusStale       WorkItemStatus = "stale"
)

// Granularity is the refinement tier of a work item
type Granularity string

// Granularity tiers, one per refinement round
const (
	GranularityCoarse Granularity = "coarse"
	GranularityMedium Granularity = "medium"
	GranularityFine   Granularity = "fine"
)

// Common validation errors for WorkItem
var (
	ErrEmptyWorkItemID        = errors.New("work item ID cannot be empty")
	ErrEmptyWorkItemSprintID  = errors.New("work item sprint ID cannot be empty")
	ErrEmptyWorkItemTitle     = errors.New("work item title cannot be empty")
	ErrInvalidWorkItemStatus  = errors.New("invalid work item status")
	ErrFineWorkItemNeedParent = errors.New("fine work item requires a parent")
)

var workItemTransitions = map[WorkItemStatus][]WorkItemStatus{
	WorkItemStatusTodo: {
		WorkItemStatusInProgress, WorkItemStatusBlocked,
		WorkItemStatusReadyForDev, WorkItemStatusStale,
	},
	WorkItemStatusInProgress:  {WorkItemStatusDone, WorkItemStatusBlocked, WorkItemStatusStale},
	WorkItemStatusBlocked:     {WorkItemStatusInProgress, WorkItemStatusStale},
	WorkItemStatusReadyForDev: {WorkItemStatusInProgress, WorkItemStatusBlocked, WorkItemStatusStale},
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Done and stale items accept no transitions.
func (s WorkItemStatus) CanTransitionTo(next WorkItemStatus) bool {
	for _, allowed := range workItemTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known status.
func (s WorkItemStatus) IsValid() bool {
	switch s {
	case WorkItemStatusTodo, WorkItemStatusInProgress, WorkItemStatusDone,
		WorkItemStatusBlocked, WorkItemStatusReadyForDev, WorkItemStatusStale:
		return true
	default:
		return false
	}
}

// Round returns the refinement round that produces items of granularity g,
// or 0 for an unknown granularity.
func (g Granularity) Round() int {
	switch g {
	case GranularityCoarse:
		return 1
	case GranularityMedium:
		return 2
	case GranularityFine:
		return 3
	default:
		return 0
	}
}

// WorkItem is a unit of planned work (a "task") at one of three granularity
// tiers. Superseded items keep their row with DeletedAt set and are hidden
// from every normal read.
type WorkItem struct {
	ID                 uuid.UUID      `json:"id"`
	ProjectID          uuid.UUID      `json:"project_id"`
	SprintID           uuid.UUID      `json:"sprint_id"`
	PlanningUnitID     *uuid.UUID     `json:"planning_unit_id,omitempty"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Status             WorkItemStatus `json:"status"`
	Granularity        Granularity    `json:"granularity"`
	RefinementRound    int            `json:"refinement_round"`
	OrderIndex         int            `json:"order_index"`
	AcceptanceCriteria []string       `json:"acceptance_criteria"`
	Tags               []string       `json:"tags,omitempty"`
	EstimatePoints     *int           `json:"estimate_points,omitempty"`
	DoDFocus           *string        `json:"dod_focus,omitempty"`
	NFRFocus           []string       `json:"nfr_focus,omitempty"`
	ParentID           *uuid.UUID     `json:"parent_id,omitempty"`
	DeletedAt          *time.Time     `json:"-"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// NewDraftWorkItem creates a coarse, round-1 item in todo status.
func NewDraftWorkItem(
	projectID, sprintID uuid.UUID,
	unitID *uuid.UUID,
	title, description string,
	orderIndex int,
	tags []string,
) (*WorkItem, error) {
	now := time.Now().UTC()
	item := &WorkItem{
		ID:                 uuid.New(),
		ProjectID:          projectID,
		SprintID:           sprintID,
		PlanningUnitID:     unitID,
		Title:              strings.TrimSpace(title),
		Description:        description,
		Status:             WorkItemStatusTodo,
		Granularity:        GranularityCoarse,
		RefinementRound:    1,
		OrderIndex:         orderIndex,
		AcceptanceCriteria: []string{},
		Tags:               tags,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// NewFineWorkItem creates a ready-for-dev child of a medium parent. The child
// inherits the parent's sprint, planning unit and quality focus.
func NewFineWorkItem(
	parent *WorkItem,
	title, description string,
	criteria []string,
	estimate *int,
	orderIndex int,
) (*WorkItem, error) {
	if parent == nil {
		return nil, ErrFineWorkItemNeedParent
	}
	if parent.Granularity != GranularityMedium {
		return nil, fmt.Errorf("%w: parent %s is %s", ErrInvalidGranularity, parent.ID, parent.Granularity)
	}

	now := time.Now().UTC()
	parentID := parent.ID
	item := &WorkItem{
		ID:                 uuid.New(),
		ProjectID:          parent.ProjectID,
		SprintID:           parent.SprintID,
		PlanningUnitID:     parent.PlanningUnitID,
		Title:              strings.TrimSpace(title),
		Description:        description,
		Status:             WorkItemStatusReadyForDev,
		Granularity:        GranularityFine,
		RefinementRound:    3,
		OrderIndex:         orderIndex,
		AcceptanceCriteria: append([]string(nil), criteria...),
		EstimatePoints:     estimate,
		DoDFocus:           parent.DoDFocus,
		NFRFocus:           append([]string(nil), parent.NFRFocus...),
		ParentID:           &parentID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks if the WorkItem has valid data.
func (w *WorkItem) Validate() error {
	if w.ID == uuid.Nil {
		return ErrEmptyWorkItemID
	}
	if w.SprintID == uuid.Nil {
		return ErrEmptyWorkItemSprintID
	}
	if strings.TrimSpace(w.Title) == "" {
		return ErrEmptyWorkItemTitle
	}
	if !w.Status.IsValid() {
		return ErrInvalidWorkItemStatus
	}
	round := w.Granularity.Round()
	if round == 0 || round != w.RefinementRound {
		return fmt.Errorf("%w: %q at round %d", ErrInvalidGranularity, w.Granularity, w.RefinementRound)
	}
	if w.Granularity == GranularityFine && w.ParentID == nil {
		return ErrFineWorkItemNeedParent
	}
	return nil
}

// ChangeStatus applies the work item state machine.
// Returns ErrInvalidTransition without mutating the item if the move is not allowed.
func (w *WorkItem) ChangeStatus(next WorkItemStatus) error {
	if !next.IsValid() {
		return ErrInvalidWorkItemStatus
	}
	if !w.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: work item %s from %s to %s", ErrInvalidTransition, w.ID, w.Status, next)
	}
	w.Status = next
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// Refinement carries the replacement content for a coarse item being promoted.
type Refinement struct {
	Title              string
	Description        string
	AcceptanceCriteria []string
	DoDFocus           *string
	NFRFocus           []string
}

// Promote rewrites a coarse item in place and advances it to medium, round 2.
func (w *WorkItem) Promote(r Refinement) error {
	if w.Granularity != GranularityCoarse {
		return fmt.Errorf("%w: cannot promote %s item %s", ErrInvalidGranularity, w.Granularity, w.ID)
	}
	if strings.TrimSpace(r.Title) == "" {
		return ErrEmptyWorkItemTitle
	}

	w.Title = strings.TrimSpace(r.Title)
	w.Description = r.Description
	w.AcceptanceCriteria = append([]string(nil), r.AcceptanceCriteria...)
	w.DoDFocus = r.DoDFocus
	w.NFRFocus = append([]string(nil), r.NFRFocus...)
	w.Granularity = GranularityMedium
	w.RefinementRound = 2
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// IsDeleted reports whether the item has been superseded.
func (w *WorkItem) IsDeleted() bool {
	return w.DeletedAt != nil
}

// DependencyEdge records that ItemID depends on DependsOnID.
type DependencyEdge struct {
	ItemID      uuid.UUID `json:"item_id"`
	DependsOnID uuid.UUID `json:"depends_on_id"`
}

// NewDependencyEdge builds an edge, rejecting self references.
func NewDependencyEdge(itemID, dependsOnID uuid.UUID) (DependencyEdge, error) {
	if itemID == dependsOnID {
		return DependencyEdge{}, fmt.Errorf("%w: %s", ErrSelfDependency, itemID)
	}
	return DependencyEdge{ItemID: itemID, DependsOnID: dependsOnID}, nil
}
