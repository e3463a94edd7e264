// Package memory implements the store interfaces in process memory. It backs
// the "memory" database driver for local runs and the engine, pipeline and
// service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// Store is a mutex-guarded in-memory store.Provider. Values are copied on the
// way in and out so callers never share state with the store.
//
// Transactions are serialized and roll back by restoring a snapshot, so a
// write made outside InTx while a transaction is open is lost if that
// transaction fails.
type Store struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *state
}

type usageKey struct {
	projectID uuid.UUID
	day       time.Time
}

type state struct {
	jobs     map[uuid.UUID]*domain.Job
	jobSeq   int64
	items    map[uuid.UUID]*domain.WorkItem
	edges    map[domain.DependencyEdge]struct{}
	projects map[uuid.UUID]*domain.Project
	sprints  map[uuid.UUID]*domain.Sprint
	units    map[uuid.UUID]*domain.PlanningUnit
	// unitOrder keeps planning units in creation order.
	unitOrder []uuid.UUID
	unitDeps  map[uuid.UUID][]domain.PlanningUnitDependency
	quality   []*domain.QualityConstraint
	usage     map[usageKey]int
	callLogs  []*domain.CallLog
}

var _ store.Provider = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{state: newState()}
}

func newState() *state {
	return &state{
		jobs:     make(map[uuid.UUID]*domain.Job),
		items:    make(map[uuid.UUID]*domain.WorkItem),
		edges:    make(map[domain.DependencyEdge]struct{}),
		projects: make(map[uuid.UUID]*domain.Project),
		sprints:  make(map[uuid.UUID]*domain.Sprint),
		units:    make(map[uuid.UUID]*domain.PlanningUnit),
		unitDeps: make(map[uuid.UUID][]domain.PlanningUnitDependency),
		usage:    make(map[usageKey]int),
	}
}

// Jobs returns the job store.
func (s *Store) Jobs() store.JobStore { return &jobStore{s: s} }

// WorkItems returns the work item store.
func (s *Store) WorkItems() store.WorkItemStore { return &workItemStore{s: s} }

// Planning returns the planning store.
func (s *Store) Planning() store.PlanningStore { return &planningStore{s: s} }

// Usage returns the usage store.
func (s *Store) Usage() store.UsageStore { return &usageStore{s: s} }

// CallLogs returns the call log store.
func (s *Store) CallLogs() store.CallLogStore { return &callLogStore{s: s} }

// InTx runs fn against a snapshot-protected view of the store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Provider) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
	}()

	if err = fn(ctx, &txStore{Store: s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

func (s *Store) restore(snapshot *state) {
	s.mu.Lock()
	s.state = snapshot
	s.mu.Unlock()
}

// txStore is the view handed to InTx callbacks; nested InTx calls join it.
type txStore struct {
	*Store
}

func (t *txStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Provider) error) error {
	return fn(ctx, t)
}

func (st *state) clone() *state {
	c := newState()
	for id, j := range st.jobs {
		c.jobs[id] = cloneJob(j)
	}
	c.jobSeq = st.jobSeq
	for id, it := range st.items {
		c.items[id] = cloneItem(it)
	}
	for e := range st.edges {
		c.edges[e] = struct{}{}
	}
	for id, p := range st.projects {
		cp := *p
		c.projects[id] = &cp
	}
	for id, sp := range st.sprints {
		c.sprints[id] = cloneSprint(sp)
	}
	for id, u := range st.units {
		cu := *u
		c.units[id] = &cu
	}
	c.unitOrder = append([]uuid.UUID(nil), st.unitOrder...)
	for id, deps := range st.unitDeps {
		c.unitDeps[id] = append([]domain.PlanningUnitDependency(nil), deps...)
	}
	for _, q := range st.quality {
		cq := *q
		c.quality = append(c.quality, &cq)
	}
	for k, v := range st.usage {
		c.usage[k] = v
	}
	for _, l := range st.callLogs {
		cl := *l
		c.callLogs = append(c.callLogs, &cl)
	}
	return c
}

func cloneJob(j *domain.Job) *domain.Job {
	c := *j
	c.SprintID = cloneUUIDPtr(j.SprintID)
	c.Payload = append([]byte(nil), j.Payload...)
	c.Result = append([]byte(nil), j.Result...)
	if len(j.Payload) == 0 {
		c.Payload = nil
	}
	if len(j.Result) == 0 {
		c.Result = nil
	}
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		c.ErrorMessage = &msg
	}
	c.ClaimedAt = cloneTimePtr(j.ClaimedAt)
	c.StartedAt = cloneTimePtr(j.StartedAt)
	c.FinishedAt = cloneTimePtr(j.FinishedAt)
	return &c
}

func cloneItem(w *domain.WorkItem) *domain.WorkItem {
	c := *w
	c.PlanningUnitID = cloneUUIDPtr(w.PlanningUnitID)
	c.ParentID = cloneUUIDPtr(w.ParentID)
	c.AcceptanceCriteria = append([]string(nil), w.AcceptanceCriteria...)
	c.Tags = append([]string(nil), w.Tags...)
	c.NFRFocus = append([]string(nil), w.NFRFocus...)
	if w.EstimatePoints != nil {
		v := *w.EstimatePoints
		c.EstimatePoints = &v
	}
	if w.DoDFocus != nil {
		v := *w.DoDFocus
		c.DoDFocus = &v
	}
	c.DeletedAt = cloneTimePtr(w.DeletedAt)
	return &c
}

func cloneSprint(sp *domain.Sprint) *domain.Sprint {
	c := *sp
	c.Goals = append([]string(nil), sp.Goals...)
	c.PlanningUnitIDs = append([]uuid.UUID(nil), sp.PlanningUnitIDs...)
	return &c
}

func cloneUUIDPtr(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
