package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/graph"
	"github.com/phrazzld/sprint-planner-api/internal/pipeline"
	"github.com/phrazzld/sprint-planner-api/internal/platform/logger"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// Pipeline runs the generation passes of a sprint.
type Pipeline interface {
	Draft(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*pipeline.DraftResult, error)
	Refine(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*pipeline.RefineResult, error)
	Split(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*pipeline.SplitResult, error)
}

// WorkItemQuery narrows ListWorkItems.
type WorkItemQuery struct {
	ReadyForDevOnly bool
	Granularity     domain.Granularity
	Limit           int
	Offset          int
}

// PlanningService exposes the planning operations that run outside a job.
type PlanningService interface {
	// GenerateDraft runs the draft pass for a sprint synchronously.
	GenerateDraft(ctx context.Context, sprintID uuid.UUID) (*pipeline.DraftResult, error)

	// Refine runs the refinement pass for a sprint synchronously.
	Refine(ctx context.Context, sprintID uuid.UUID) (*pipeline.RefineResult, error)

	// Split runs the split pass for a sprint synchronously.
	Split(ctx context.Context, sprintID uuid.UUID) (*pipeline.SplitResult, error)

	// ListWorkItems returns the live work items of a sprint.
	ListWorkItems(ctx context.Context, sprintID uuid.UUID, q WorkItemQuery) ([]*domain.WorkItem, error)

	// ChangeWorkItemStatus applies a status transition to a work item.
	ChangeWorkItemStatus(ctx context.Context, itemID uuid.UUID, next domain.WorkItemStatus) (*domain.WorkItem, error)

	// OrderPlanningUnits returns a project's planning units in dependency order.
	OrderPlanningUnits(ctx context.Context, projectID uuid.UUID) ([]*domain.PlanningUnit, error)

	// DeriveUnitDependencies replaces a project's unit dependencies with the
	// ones implied by unit categories and returns them.
	DeriveUnitDependencies(ctx context.Context, projectID uuid.UUID) ([]domain.PlanningUnitDependency, error)

	// OrderWorkItems returns the IDs of a sprint's live work items in
	// dependency order, or graph.ErrCycleDetected.
	OrderWorkItems(ctx context.Context, sprintID uuid.UUID) ([]uuid.UUID, error)
}

type planningServiceImpl struct {
	provider store.Provider
	pipeline Pipeline
	logger   *slog.Logger
}

var _ PlanningService = (*planningServiceImpl)(nil)

// NewPlanningService creates a PlanningService. It returns an error if a
// required dependency is nil.
func NewPlanningService(provider store.Provider, p Pipeline, log *slog.Logger) (PlanningService, error) {
	if provider == nil {
		return nil, &Error{Operation: "create_service", Message: "provider cannot be nil"}
	}
	if p == nil {
		return nil, &Error{Operation: "create_service", Message: "pipeline cannot be nil"}
	}
	if log == nil {
		log = slog.Default()
	}
	return &planningServiceImpl{
		provider: provider,
		pipeline: p,
		logger:   log.With(slog.String("component", "planning_service")),
	}, nil
}

func (s *planningServiceImpl) requireSprint(ctx context.Context, op string, sprintID uuid.UUID) error {
	if _, err := s.provider.Planning().GetSprint(ctx, sprintID); err != nil {
		return NewError(op, "failed to load sprint", err)
	}
	return nil
}

func (s *planningServiceImpl) GenerateDraft(ctx context.Context, sprintID uuid.UUID) (*pipeline.DraftResult, error) {
	if err := s.requireSprint(ctx, "generate_draft", sprintID); err != nil {
		return nil, err
	}
	result, err := s.pipeline.Draft(ctx, sprintID, nil)
	if err != nil {
		return nil, NewError("generate_draft", "draft pass failed", err)
	}
	return result, nil
}

func (s *planningServiceImpl) Refine(ctx context.Context, sprintID uuid.UUID) (*pipeline.RefineResult, error) {
	if err := s.requireSprint(ctx, "refine", sprintID); err != nil {
		return nil, err
	}
	result, err := s.pipeline.Refine(ctx, sprintID, nil)
	if err != nil {
		return nil, NewError("refine", "refine pass failed", err)
	}
	return result, nil
}

func (s *planningServiceImpl) Split(ctx context.Context, sprintID uuid.UUID) (*pipeline.SplitResult, error) {
	if err := s.requireSprint(ctx, "split", sprintID); err != nil {
		return nil, err
	}
	result, err := s.pipeline.Split(ctx, sprintID, nil)
	if err != nil {
		return nil, NewError("split", "split pass failed", err)
	}
	return result, nil
}

func (s *planningServiceImpl) ListWorkItems(ctx context.Context, sprintID uuid.UUID, q WorkItemQuery) ([]*domain.WorkItem, error) {
	if err := s.requireSprint(ctx, "list_work_items", sprintID); err != nil {
		return nil, err
	}
	filter := store.WorkItemFilter{Granularity: q.Granularity, Limit: q.Limit, Offset: q.Offset}
	if q.ReadyForDevOnly {
		filter.Status = domain.WorkItemStatusReadyForDev
	}
	items, err := s.provider.WorkItems().ListBySprint(ctx, sprintID, filter)
	if err != nil {
		return nil, NewError("list_work_items", "failed to list work items", err)
	}
	return items, nil
}

func (s *planningServiceImpl) ChangeWorkItemStatus(
	ctx context.Context,
	itemID uuid.UUID,
	next domain.WorkItemStatus,
) (*domain.WorkItem, error) {
	if !next.IsValid() {
		return nil, fmt.Errorf("%w: unknown work item status %q", domain.ErrValidation, next)
	}

	var updated *domain.WorkItem
	err := s.provider.InTx(ctx, func(ctx context.Context, tx store.Provider) error {
		item, err := tx.WorkItems().GetByID(ctx, itemID)
		if err != nil {
			return err
		}
		if err := item.ChangeStatus(next); err != nil {
			return err
		}
		if err := tx.WorkItems().Update(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, NewError("change_work_item_status", "failed to change status", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).InfoContext(ctx, "work item status changed",
		"work_item_id", itemID, "status", next)
	return updated, nil
}

func (s *planningServiceImpl) OrderPlanningUnits(ctx context.Context, projectID uuid.UUID) ([]*domain.PlanningUnit, error) {
	planning := s.provider.Planning()
	if _, err := planning.GetProject(ctx, projectID); err != nil {
		return nil, NewError("order_planning_units", "failed to load project", err)
	}
	units, err := planning.ListProjectUnits(ctx, projectID)
	if err != nil {
		return nil, NewError("order_planning_units", "failed to list planning units", err)
	}
	deps, err := planning.ListUnitDependencies(ctx, projectID)
	if err != nil {
		return nil, NewError("order_planning_units", "failed to list unit dependencies", err)
	}
	if len(deps) == 0 {
		deps = DeriveUnitDependencies(units)
	}

	byID := make(map[uuid.UUID]*domain.PlanningUnit, len(units))
	ids := make([]uuid.UUID, 0, len(units))
	for _, u := range units {
		byID[u.ID] = u
		ids = append(ids, u.ID)
	}
	edges := make([]graph.Edge[uuid.UUID], 0, len(deps))
	for _, d := range deps {
		edges = append(edges, graph.Edge[uuid.UUID]{Node: d.UnitID, DependsOn: d.DependsOnID})
	}

	order, err := graph.Sort(ids, edges)
	if err != nil {
		return nil, NewError("order_planning_units", "failed to order planning units", err)
	}
	ordered := make([]*domain.PlanningUnit, 0, len(order))
	for _, id := range order {
		ordered = append(ordered, byID[id])
	}
	return ordered, nil
}

func (s *planningServiceImpl) DeriveUnitDependencies(
	ctx context.Context,
	projectID uuid.UUID,
) ([]domain.PlanningUnitDependency, error) {
	var deps []domain.PlanningUnitDependency
	err := s.provider.InTx(ctx, func(ctx context.Context, tx store.Provider) error {
		if _, err := tx.Planning().GetProject(ctx, projectID); err != nil {
			return err
		}
		units, err := tx.Planning().ListProjectUnits(ctx, projectID)
		if err != nil {
			return err
		}
		deps = DeriveUnitDependencies(units)
		return tx.Planning().ReplaceUnitDependencies(ctx, projectID, deps)
	})
	if err != nil {
		return nil, NewError("derive_unit_dependencies", "failed to derive dependencies", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).InfoContext(ctx, "derived unit dependencies",
		"project_id", projectID, "count", len(deps))
	return deps, nil
}

func (s *planningServiceImpl) OrderWorkItems(ctx context.Context, sprintID uuid.UUID) ([]uuid.UUID, error) {
	items, err := s.ListWorkItems(ctx, sprintID, WorkItemQuery{})
	if err != nil {
		return nil, err
	}
	edges, err := s.provider.WorkItems().ListDependencies(ctx, sprintID)
	if err != nil {
		return nil, NewError("order_work_items", "failed to list dependencies", err)
	}

	g := graph.New[uuid.UUID]()
	for _, it := range items {
		g.AddNode(it.ID)
	}
	for _, e := range edges {
		if err := g.AddEdge(e.ItemID, e.DependsOnID); err != nil {
			return nil, NewError("order_work_items", "invalid dependency edge", err)
		}
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, NewError("order_work_items", "failed to order work items", err)
	}
	return order, nil
}

// DeriveUnitDependencies makes every non-platform unit depend on every
// platform unit and every quality unit depend on every feature unit.
func DeriveUnitDependencies(units []*domain.PlanningUnit) []domain.PlanningUnitDependency {
	var platform, feature []uuid.UUID
	for _, u := range units {
		switch u.Category {
		case domain.UnitCategoryPlatform:
			platform = append(platform, u.ID)
		case domain.UnitCategoryFeature:
			feature = append(feature, u.ID)
		}
	}

	deps := make([]domain.PlanningUnitDependency, 0)
	for _, u := range units {
		if u.Category != domain.UnitCategoryPlatform {
			for _, p := range platform {
				deps = append(deps, domain.PlanningUnitDependency{UnitID: u.ID, DependsOnID: p})
			}
		}
		if u.Category == domain.UnitCategoryQuality {
			for _, f := range feature {
				deps = append(deps, domain.PlanningUnitDependency{UnitID: u.ID, DependsOnID: f})
			}
		}
	}
	return deps
}
