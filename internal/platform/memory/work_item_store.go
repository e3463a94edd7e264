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

type workItemStore struct {
	s *Store
}

func (ws *workItemStore) CreateBatch(ctx context.Context, items []*domain.WorkItem) error {
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	ws.s.mu.Lock()
	defer ws.s.mu.Unlock()

	st := ws.s.state
	for _, it := range items {
		if _, exists := st.items[it.ID]; exists {
			return fmt.Errorf("%w: work item %s", store.ErrDuplicate, it.ID)
		}
	}
	for _, it := range items {
		st.items[it.ID] = cloneItem(it)
	}
	return nil
}

func (ws *workItemStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkItem, error) {
	ws.s.mu.RLock()
	defer ws.s.mu.RUnlock()

	it, ok := ws.s.state.items[id]
	if !ok || it.IsDeleted() {
		return nil, store.ErrWorkItemNotFound
	}
	return cloneItem(it), nil
}

func (ws *workItemStore) Update(ctx context.Context, item *domain.WorkItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	ws.s.mu.Lock()
	defer ws.s.mu.Unlock()

	current, ok := ws.s.state.items[item.ID]
	if !ok || current.IsDeleted() {
		return store.ErrWorkItemNotFound
	}
	updated := cloneItem(item)
	updated.DeletedAt = nil
	updated.CreatedAt = current.CreatedAt
	ws.s.state.items[item.ID] = updated
	return nil
}

func (ws *workItemStore) ListBySprint(ctx context.Context, sprintID uuid.UUID, filter store.WorkItemFilter) ([]*domain.WorkItem, error) {
	ws.s.mu.RLock()
	defer ws.s.mu.RUnlock()

	items := make([]*domain.WorkItem, 0)
	for _, it := range ws.s.state.items {
		if it.SprintID != sprintID || it.IsDeleted() {
			continue
		}
		if filter.Granularity != "" && it.Granularity != filter.Granularity {
			continue
		}
		if filter.Status != "" && it.Status != filter.Status {
			continue
		}
		items = append(items, cloneItem(it))
	}
	sort.Slice(items, func(a, b int) bool {
		if items[a].OrderIndex != items[b].OrderIndex {
			return items[a].OrderIndex < items[b].OrderIndex
		}
		return items[a].CreatedAt.Before(items[b].CreatedAt)
	})
	return paginate(items, filter.Limit, filter.Offset), nil
}

func (ws *workItemStore) MaxOrderIndex(ctx context.Context, sprintID uuid.UUID) (int, error) {
	ws.s.mu.RLock()
	defer ws.s.mu.RUnlock()

	maxIndex := -1
	for _, it := range ws.s.state.items {
		if it.SprintID == sprintID && it.OrderIndex > maxIndex {
			maxIndex = it.OrderIndex
		}
	}
	return maxIndex, nil
}

func (ws *workItemStore) SupersedeByGranularity(ctx context.Context, sprintID uuid.UUID, g domain.Granularity, t time.Time) (int, error) {
	ws.s.mu.Lock()
	defer ws.s.mu.Unlock()

	st := ws.s.state
	superseded := make(map[uuid.UUID]struct{})
	for id, it := range st.items {
		if it.SprintID != sprintID || it.Granularity != g || it.IsDeleted() {
			continue
		}
		at := t
		it.DeletedAt = &at
		superseded[id] = struct{}{}
	}
	for e := range st.edges {
		_, fromGone := superseded[e.ItemID]
		_, toGone := superseded[e.DependsOnID]
		if fromGone || toGone {
			delete(st.edges, e)
		}
	}
	return len(superseded), nil
}

func (ws *workItemStore) ReplaceDependencies(ctx context.Context, itemIDs []uuid.UUID, edges []domain.DependencyEdge) error {
	for _, e := range edges {
		if e.ItemID == e.DependsOnID {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrSelfDependency)
		}
	}

	ws.s.mu.Lock()
	defer ws.s.mu.Unlock()

	st := ws.s.state
	for _, e := range edges {
		if _, ok := st.items[e.ItemID]; !ok {
			return fmt.Errorf("%w: unknown work item %s", store.ErrInvalidEntity, e.ItemID)
		}
		if _, ok := st.items[e.DependsOnID]; !ok {
			return fmt.Errorf("%w: unknown work item %s", store.ErrInvalidEntity, e.DependsOnID)
		}
	}

	cleared := make(map[uuid.UUID]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		cleared[id] = struct{}{}
	}
	for e := range st.edges {
		if _, ok := cleared[e.ItemID]; ok {
			delete(st.edges, e)
		}
	}
	for _, e := range edges {
		st.edges[e] = struct{}{}
	}
	return nil
}

func (ws *workItemStore) ListDependencies(ctx context.Context, sprintID uuid.UUID) ([]domain.DependencyEdge, error) {
	ws.s.mu.RLock()
	defer ws.s.mu.RUnlock()

	st := ws.s.state
	live := func(id uuid.UUID) bool {
		it, ok := st.items[id]
		return ok && !it.IsDeleted() && it.SprintID == sprintID
	}

	edges := make([]domain.DependencyEdge, 0)
	for e := range st.edges {
		if live(e.ItemID) && live(e.DependsOnID) {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(a, b int) bool {
		ia, ib := st.items[edges[a].ItemID], st.items[edges[b].ItemID]
		if ia.OrderIndex != ib.OrderIndex {
			return ia.OrderIndex < ib.OrderIndex
		}
		return st.items[edges[a].DependsOnID].OrderIndex < st.items[edges[b].DependsOnID].OrderIndex
	})
	return edges, nil
}
