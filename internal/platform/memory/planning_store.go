package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

type planningStore struct {
	s *Store
}

func (ps *planningStore) CreateProject(ctx context.Context, p *domain.Project) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()

	if _, exists := ps.s.state.projects[p.ID]; exists {
		return fmt.Errorf("%w: project %s", store.ErrDuplicate, p.ID)
	}
	cp := *p
	ps.s.state.projects[p.ID] = &cp
	return nil
}

func (ps *planningStore) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()

	p, ok := ps.s.state.projects[id]
	if !ok {
		return nil, store.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (ps *planningStore) CreateSprint(ctx context.Context, sp *domain.Sprint) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()

	st := ps.s.state
	if _, ok := st.projects[sp.ProjectID]; !ok {
		return fmt.Errorf("%w: unknown project %s", store.ErrInvalidEntity, sp.ProjectID)
	}
	if _, exists := st.sprints[sp.ID]; exists {
		return fmt.Errorf("%w: sprint %s", store.ErrDuplicate, sp.ID)
	}
	st.sprints[sp.ID] = cloneSprint(sp)
	return nil
}

func (ps *planningStore) GetSprint(ctx context.Context, id uuid.UUID) (*domain.Sprint, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()

	sp, ok := ps.s.state.sprints[id]
	if !ok {
		return nil, store.ErrSprintNotFound
	}
	return cloneSprint(sp), nil
}

func (ps *planningStore) CreatePlanningUnit(ctx context.Context, u *domain.PlanningUnit) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()

	st := ps.s.state
	if _, ok := st.projects[u.ProjectID]; !ok {
		return fmt.Errorf("%w: unknown project %s", store.ErrInvalidEntity, u.ProjectID)
	}
	if _, exists := st.units[u.ID]; exists {
		return fmt.Errorf("%w: planning unit %s", store.ErrDuplicate, u.ID)
	}
	cu := *u
	st.units[u.ID] = &cu
	st.unitOrder = append(st.unitOrder, u.ID)
	return nil
}

func (ps *planningStore) ListSprintUnits(ctx context.Context, sprintID uuid.UUID) ([]*domain.PlanningUnit, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()

	st := ps.s.state
	sp, ok := st.sprints[sprintID]
	if !ok {
		return nil, store.ErrSprintNotFound
	}
	units := make([]*domain.PlanningUnit, 0, len(sp.PlanningUnitIDs))
	for _, id := range sp.PlanningUnitIDs {
		if u, ok := st.units[id]; ok {
			cu := *u
			units = append(units, &cu)
		}
	}
	return units, nil
}

func (ps *planningStore) ListProjectUnits(ctx context.Context, projectID uuid.UUID) ([]*domain.PlanningUnit, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()

	units := make([]*domain.PlanningUnit, 0)
	for _, id := range ps.s.state.unitOrder {
		u := ps.s.state.units[id]
		if u.ProjectID == projectID {
			cu := *u
			units = append(units, &cu)
		}
	}
	return units, nil
}

func (ps *planningStore) ListUnitDependencies(ctx context.Context, projectID uuid.UUID) ([]domain.PlanningUnitDependency, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()

	return append([]domain.PlanningUnitDependency{}, ps.s.state.unitDeps[projectID]...), nil
}

func (ps *planningStore) ReplaceUnitDependencies(ctx context.Context, projectID uuid.UUID, deps []domain.PlanningUnitDependency) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()

	st := ps.s.state
	for _, d := range deps {
		for _, id := range []uuid.UUID{d.UnitID, d.DependsOnID} {
			u, ok := st.units[id]
			if !ok || u.ProjectID != projectID {
				return fmt.Errorf("%w: planning unit %s not in project %s", store.ErrInvalidEntity, id, projectID)
			}
		}
	}
	st.unitDeps[projectID] = append([]domain.PlanningUnitDependency(nil), deps...)
	return nil
}

func (ps *planningStore) CreateQualityConstraint(ctx context.Context, q *domain.QualityConstraint) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()

	cq := *q
	ps.s.state.quality = append(ps.s.state.quality, &cq)
	return nil
}

func (ps *planningStore) ListQualityConstraints(ctx context.Context, projectID uuid.UUID) ([]*domain.QualityConstraint, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()

	out := make([]*domain.QualityConstraint, 0)
	for _, q := range ps.s.state.quality {
		if q.ProjectID == projectID {
			cq := *q
			out = append(out, &cq)
		}
	}
	return out, nil
}

type usageStore struct {
	s *Store
}

func (us *usageStore) IncrementIfBelow(ctx context.Context, projectID uuid.UUID, day time.Time, max int) (int, error) {
	us.s.mu.Lock()
	defer us.s.mu.Unlock()

	key := usageKey{projectID: projectID, day: domain.UsageDay(day)}
	count := us.s.state.usage[key]
	if count >= max {
		return count, store.ErrLimitReached
	}
	count++
	us.s.state.usage[key] = count
	return count, nil
}

func (us *usageStore) GetUsage(ctx context.Context, projectID uuid.UUID, day time.Time) (int, error) {
	us.s.mu.RLock()
	defer us.s.mu.RUnlock()

	return us.s.state.usage[usageKey{projectID: projectID, day: domain.UsageDay(day)}], nil
}

type callLogStore struct {
	s *Store
}

func (cs *callLogStore) Create(ctx context.Context, entry *domain.CallLog) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	cp := *entry
	cs.s.state.callLogs = append(cs.s.state.callLogs, &cp)
	return nil
}

func (cs *callLogStore) ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*domain.CallLog, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()

	out := make([]*domain.CallLog, 0)
	logs := cs.s.state.callLogs
	for i := len(logs) - 1; i >= 0; i-- {
		if l := logs[i]; l.ProjectID == projectID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return paginate(out, limit, 0), nil
}
