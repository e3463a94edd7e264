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

type jobStore struct {
	s *Store
}

func (js *jobStore) Create(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	js.s.mu.Lock()
	defer js.s.mu.Unlock()

	st := js.s.state
	if _, exists := st.jobs[job.ID]; exists {
		return fmt.Errorf("%w: job %s", store.ErrDuplicate, job.ID)
	}
	st.jobSeq++
	job.Seq = st.jobSeq
	st.jobs[job.ID] = cloneJob(job)
	return nil
}

func (js *jobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	js.s.mu.RLock()
	defer js.s.mu.RUnlock()

	j, ok := js.s.state.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return cloneJob(j), nil
}

func (js *jobStore) Update(ctx context.Context, job *domain.Job, from domain.JobStatus) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	js.s.mu.Lock()
	defer js.s.mu.Unlock()

	current, ok := js.s.state.jobs[job.ID]
	if !ok {
		return store.ErrJobNotFound
	}
	if current.Status != from {
		return fmt.Errorf("%w: job %s is %s, expected %s", store.ErrStaleStatus, job.ID, current.Status, from)
	}

	updated := cloneJob(job)
	updated.Seq = current.Seq
	updated.CancellationRequested = current.CancellationRequested
	js.s.state.jobs[job.ID] = updated
	return nil
}

func (js *jobStore) RequestCancellation(ctx context.Context, id uuid.UUID) error {
	js.s.mu.Lock()
	defer js.s.mu.Unlock()

	j, ok := js.s.state.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if j.Status != domain.JobStatusRunning {
		return fmt.Errorf("%w: job %s is %s", store.ErrStaleStatus, id, j.Status)
	}
	j.CancellationRequested = true
	return nil
}

func (js *jobStore) ClaimNextQueued(ctx context.Context, claimedAt time.Time) (*domain.Job, error) {
	js.s.mu.Lock()
	defer js.s.mu.Unlock()

	var next *domain.Job
	for _, j := range js.s.state.jobs {
		if j.Status != domain.JobStatusQueued {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) ||
			(j.CreatedAt.Equal(next.CreatedAt) && j.Seq < next.Seq) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}

	at := claimedAt
	next.ClaimedAt = &at
	return cloneJob(next), nil
}

func (js *jobStore) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*domain.Job, error) {
	js.s.mu.RLock()
	defer js.s.mu.RUnlock()

	jobs := make([]*domain.Job, 0)
	for _, j := range js.s.state.jobs {
		if j.ProjectID == projectID {
			jobs = append(jobs, cloneJob(j))
		}
	}
	sort.Slice(jobs, func(a, b int) bool {
		if !jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
		}
		return jobs[a].Seq > jobs[b].Seq
	})
	return paginate(jobs, limit, offset), nil
}

func (js *jobStore) ListRunningStartedBefore(ctx context.Context, t time.Time) ([]*domain.Job, error) {
	js.s.mu.RLock()
	defer js.s.mu.RUnlock()

	jobs := make([]*domain.Job, 0)
	for _, j := range js.s.state.jobs {
		if j.Status == domain.JobStatusRunning && j.StartedAt != nil && j.StartedAt.Before(t) {
			jobs = append(jobs, cloneJob(j))
		}
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].Seq < jobs[b].Seq })
	return jobs, nil
}
