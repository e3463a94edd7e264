package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
)

// PlanningStore defines persistence for the planning context the pipeline
// reads: projects, sprints, planning units and quality constraints.
type PlanningStore interface {
	CreateProject(ctx context.Context, p *domain.Project) error

	// GetProject returns ErrProjectNotFound if the project does not exist.
	GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error)

	// CreateSprint saves the sprint and its planning unit assignments.
	CreateSprint(ctx context.Context, s *domain.Sprint) error

	// GetSprint returns ErrSprintNotFound if the sprint does not exist.
	GetSprint(ctx context.Context, id uuid.UUID) (*domain.Sprint, error)

	CreatePlanningUnit(ctx context.Context, u *domain.PlanningUnit) error

	// ListSprintUnits returns the units assigned to a sprint in assignment order.
	ListSprintUnits(ctx context.Context, sprintID uuid.UUID) ([]*domain.PlanningUnit, error)

	// ListProjectUnits returns a project's units in creation order.
	ListProjectUnits(ctx context.Context, projectID uuid.UUID) ([]*domain.PlanningUnit, error)

	ListUnitDependencies(ctx context.Context, projectID uuid.UUID) ([]domain.PlanningUnitDependency, error)

	// ReplaceUnitDependencies swaps every dependency of the project for deps.
	ReplaceUnitDependencies(ctx context.Context, projectID uuid.UUID, deps []domain.PlanningUnitDependency) error

	CreateQualityConstraint(ctx context.Context, q *domain.QualityConstraint) error

	ListQualityConstraints(ctx context.Context, projectID uuid.UUID) ([]*domain.QualityConstraint, error)
}
