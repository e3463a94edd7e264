package api_test

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/pipeline"
	"github.com/phrazzld/sprint-planner-api/internal/service"
)

type mockJobService struct {
	CreateJobFn       func(ctx context.Context, projectID, sprintID uuid.UUID, payload json.RawMessage) (*domain.Job, error)
	GetJobFn          func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ListProjectJobsFn func(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*domain.Job, error)
	CancelJobFn       func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	RunNextJobFn      func(ctx context.Context) (*domain.Job, error)
}

var _ service.JobService = (*mockJobService)(nil)

func (m *mockJobService) CreateJob(ctx context.Context, projectID, sprintID uuid.UUID, payload json.RawMessage) (*domain.Job, error) {
	return m.CreateJobFn(ctx, projectID, sprintID, payload)
}

func (m *mockJobService) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return m.GetJobFn(ctx, id)
}

func (m *mockJobService) ListProjectJobs(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*domain.Job, error) {
	return m.ListProjectJobsFn(ctx, projectID, limit, offset)
}

func (m *mockJobService) CancelJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return m.CancelJobFn(ctx, id)
}

func (m *mockJobService) RunNextJob(ctx context.Context) (*domain.Job, error) {
	return m.RunNextJobFn(ctx)
}

type mockPlanningService struct {
	GenerateDraftFn          func(ctx context.Context, sprintID uuid.UUID) (*pipeline.DraftResult, error)
	RefineFn                 func(ctx context.Context, sprintID uuid.UUID) (*pipeline.RefineResult, error)
	SplitFn                  func(ctx context.Context, sprintID uuid.UUID) (*pipeline.SplitResult, error)
	ListWorkItemsFn          func(ctx context.Context, sprintID uuid.UUID, q service.WorkItemQuery) ([]*domain.WorkItem, error)
	ChangeWorkItemStatusFn   func(ctx context.Context, itemID uuid.UUID, next domain.WorkItemStatus) (*domain.WorkItem, error)
	OrderPlanningUnitsFn     func(ctx context.Context, projectID uuid.UUID) ([]*domain.PlanningUnit, error)
	DeriveUnitDependenciesFn func(ctx context.Context, projectID uuid.UUID) ([]domain.PlanningUnitDependency, error)
	OrderWorkItemsFn         func(ctx context.Context, sprintID uuid.UUID) ([]uuid.UUID, error)
}

var _ service.PlanningService = (*mockPlanningService)(nil)

func (m *mockPlanningService) GenerateDraft(ctx context.Context, sprintID uuid.UUID) (*pipeline.DraftResult, error) {
	return m.GenerateDraftFn(ctx, sprintID)
}

func (m *mockPlanningService) Refine(ctx context.Context, sprintID uuid.UUID) (*pipeline.RefineResult, error) {
	return m.RefineFn(ctx, sprintID)
}

func (m *mockPlanningService) Split(ctx context.Context, sprintID uuid.UUID) (*pipeline.SplitResult, error) {
	return m.SplitFn(ctx, sprintID)
}

func (m *mockPlanningService) ListWorkItems(ctx context.Context, sprintID uuid.UUID, q service.WorkItemQuery) ([]*domain.WorkItem, error) {
	return m.ListWorkItemsFn(ctx, sprintID, q)
}

func (m *mockPlanningService) ChangeWorkItemStatus(ctx context.Context, itemID uuid.UUID, next domain.WorkItemStatus) (*domain.WorkItem, error) {
	return m.ChangeWorkItemStatusFn(ctx, itemID, next)
}

func (m *mockPlanningService) OrderPlanningUnits(ctx context.Context, projectID uuid.UUID) ([]*domain.PlanningUnit, error) {
	return m.OrderPlanningUnitsFn(ctx, projectID)
}

func (m *mockPlanningService) DeriveUnitDependencies(ctx context.Context, projectID uuid.UUID) ([]domain.PlanningUnitDependency, error) {
	return m.DeriveUnitDependenciesFn(ctx, projectID)
}

func (m *mockPlanningService) OrderWorkItems(ctx context.Context, sprintID uuid.UUID) ([]uuid.UUID, error) {
	return m.OrderWorkItemsFn(ctx, sprintID)
}
