package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStoreClaimOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()
	projectID := uuid.New()

	created := time.Now().UTC()
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		job, err := domain.NewJob(projectID, nil, domain.JobTypeTaskPipeline, nil)
		require.NoError(t, err)
		job.CreatedAt = created
		require.NoError(t, s.Jobs().Create(ctx, job))
		ids = append(ids, job.ID)
	}

	for _, want := range ids {
		job, err := s.Jobs().ClaimNextQueued(ctx, time.Now())
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, want, job.ID)
		require.NotNil(t, job.ClaimedAt)

		from := job.Status
		require.NoError(t, job.TransitionTo(domain.JobStatusRunning, time.Now()))
		require.NoError(t, s.Jobs().Update(ctx, job, from))
	}

	job, err := s.Jobs().ClaimNextQueued(ctx, time.Now())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestJobStoreUpdateChecksStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	job, err := domain.NewJob(uuid.New(), nil, domain.JobTypeTaskPipeline, nil)
	require.NoError(t, err)
	require.NoError(t, s.Jobs().Create(ctx, job))

	require.NoError(t, job.TransitionTo(domain.JobStatusRunning, time.Now()))
	err = s.Jobs().Update(ctx, job, domain.JobStatusRunning)
	assert.ErrorIs(t, err, store.ErrStaleStatus)

	require.NoError(t, s.Jobs().Update(ctx, job, domain.JobStatusQueued))
	require.NoError(t, s.Jobs().RequestCancellation(ctx, job.ID))

	// Update never clears a cancellation request.
	require.NoError(t, job.SetProgress(33, "refine"))
	require.NoError(t, s.Jobs().Update(ctx, job, domain.JobStatusRunning))
	stored, err := s.Jobs().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, stored.CancellationRequested)
	assert.Equal(t, 33, stored.ProgressPct)

	_, err = s.Jobs().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestInTxRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()
	sprintID := uuid.New()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context, tx store.Provider) error {
		item, err := domain.NewDraftWorkItem(uuid.New(), sprintID, nil, "t", "", 0, nil)
		require.NoError(t, err)
		require.NoError(t, tx.WorkItems().CreateBatch(ctx, []*domain.WorkItem{item}))

		return tx.InTx(ctx, func(ctx context.Context, nested store.Provider) error {
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	items, err := s.WorkItems().ListBySprint(ctx, sprintID, store.WorkItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSupersedeHidesItemsAndEdges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()
	sprintID := uuid.New()

	parent, err := domain.NewDraftWorkItem(uuid.New(), sprintID, nil, "parent", "", 0, nil)
	require.NoError(t, err)
	require.NoError(t, parent.Promote(domain.Refinement{Title: "parent"}))
	a, err := domain.NewFineWorkItem(parent, "a", "", nil, nil, 1)
	require.NoError(t, err)
	b, err := domain.NewFineWorkItem(parent, "b", "", nil, nil, 2)
	require.NoError(t, err)
	require.NoError(t, s.WorkItems().CreateBatch(ctx, []*domain.WorkItem{parent, a, b}))
	require.NoError(t, s.WorkItems().ReplaceDependencies(ctx, []uuid.UUID{b.ID},
		[]domain.DependencyEdge{{ItemID: b.ID, DependsOnID: a.ID}}))

	n, err := s.WorkItems().SupersedeByGranularity(ctx, sprintID, domain.GranularityFine, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	live, err := s.WorkItems().ListBySprint(ctx, sprintID, store.WorkItemFilter{})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, parent.ID, live[0].ID)

	_, err = s.WorkItems().GetByID(ctx, a.ID)
	assert.ErrorIs(t, err, store.ErrWorkItemNotFound)

	edges, err := s.WorkItems().ListDependencies(ctx, sprintID)
	require.NoError(t, err)
	assert.Empty(t, edges)

	maxIndex, err := s.WorkItems().MaxOrderIndex(ctx, sprintID)
	require.NoError(t, err)
	assert.Equal(t, 2, maxIndex)
}

func TestUsageIncrementIfBelow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()
	projectID := uuid.New()
	day := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	for want := 1; want <= 2; want++ {
		got, err := s.Usage().IncrementIfBelow(ctx, projectID, day, 2)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := s.Usage().IncrementIfBelow(ctx, projectID, day.Add(time.Hour), 2)
	assert.ErrorIs(t, err, store.ErrLimitReached)

	count, err := s.Usage().GetUsage(ctx, projectID, day)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	next, err := s.Usage().GetUsage(ctx, projectID, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, next)
}
