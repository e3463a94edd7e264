package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/budget"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/generation"
	"github.com/phrazzld/sprint-planner-api/internal/invoker"
	"github.com/phrazzld/sprint-planner-api/internal/job"
	"github.com/phrazzld/sprint-planner-api/internal/pipeline"
	"github.com/phrazzld/sprint-planner-api/internal/platform/memory"
	"github.com/phrazzld/sprint-planner-api/internal/prompt"
	"github.com/phrazzld/sprint-planner-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPipeline struct {
	DraftFn  func(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*pipeline.DraftResult, error)
	RefineFn func(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*pipeline.RefineResult, error)
	SplitFn  func(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*pipeline.SplitResult, error)

	mu     sync.Mutex
	stages []string
}

func (m *mockPipeline) record(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
}

func (m *mockPipeline) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.stages...)
}

func (m *mockPipeline) Draft(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*pipeline.DraftResult, error) {
	m.record("draft")
	if m.DraftFn != nil {
		return m.DraftFn(ctx, sprintID, jobID)
	}
	return &pipeline.DraftResult{Items: make([]*domain.WorkItem, 2)}, nil
}

func (m *mockPipeline) Refine(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*pipeline.RefineResult, error) {
	m.record("refine")
	if m.RefineFn != nil {
		return m.RefineFn(ctx, sprintID, jobID)
	}
	return &pipeline.RefineResult{Refined: make([]*domain.WorkItem, 2)}, nil
}

func (m *mockPipeline) Split(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*pipeline.SplitResult, error) {
	m.record("split")
	if m.SplitFn != nil {
		return m.SplitFn(ctx, sprintID, jobID)
	}
	return &pipeline.SplitResult{Created: make([]*domain.WorkItem, 4)}, nil
}

type mockRecorder struct {
	mu       sync.Mutex
	started  int
	stopped  int
	finished map[string]int
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{finished: make(map[string]int)}
}

func (r *mockRecorder) JobStarted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *mockRecorder) JobStopped(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

func (r *mockRecorder) JobFinished(_, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[status]++
}

type mockReleaser struct {
	mu       sync.Mutex
	released []uuid.UUID
}

func (r *mockReleaser) Release(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, id)
}

func createJob(t *testing.T, st *memory.Store, jobType domain.JobType, created time.Time) *domain.Job {
	t.Helper()
	sprintID := uuid.New()
	j, err := domain.NewJob(uuid.New(), &sprintID, jobType, nil)
	require.NoError(t, err)
	j.CreatedAt = created
	require.NoError(t, st.Jobs().Create(context.Background(), j))
	return j
}

func reload(t *testing.T, st *memory.Store, id uuid.UUID) *domain.Job {
	t.Helper()
	j, err := st.Jobs().GetByID(context.Background(), id)
	require.NoError(t, err)
	return j
}

func TestEngineCompletesSprintPipeline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.NewStore()
	p := &mockPipeline{}
	rec := newMockRecorder()
	rel := &mockReleaser{}
	engine := job.NewEngine(st, p, nil, job.WithRecorder(rec), job.WithBudget(rel))

	queued := createJob(t, st, domain.JobTypeTaskPipeline, time.Now())
	finished, err := engine.Start(ctx, queued)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, finished.Status)
	assert.Equal(t, []string{"draft", "refine", "split"}, p.calls())

	stored := reload(t, st, queued.ID)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.ProgressPct)
	assert.Equal(t, "split", stored.CurrentStep)
	require.NotNil(t, stored.StartedAt)
	require.NotNil(t, stored.FinishedAt)
	assert.Nil(t, stored.ErrorMessage)
	assert.JSONEq(t, `{"draft_items":2,"refined_items":2,"fine_items":4,"ready_for_dev_items":0}`, string(stored.Result))

	assert.Equal(t, 1, rec.started)
	assert.Equal(t, 1, rec.stopped)
	assert.Equal(t, map[string]int{"completed": 1}, rec.finished)
	assert.Equal(t, []uuid.UUID{queued.ID}, rel.released)
}

func TestEngineCancelledBeforeStart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.NewStore()
	p := &mockPipeline{}
	rec := newMockRecorder()
	engine := job.NewEngine(st, p, nil, job.WithRecorder(rec))

	sprintID := uuid.New()
	queued, err := domain.NewJob(uuid.New(), &sprintID, domain.JobTypeTaskPipeline, nil)
	require.NoError(t, err)
	queued.CancellationRequested = true
	require.NoError(t, st.Jobs().Create(ctx, queued))

	finished, err := engine.Start(ctx, queued)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, finished.Status)
	assert.Empty(t, p.calls())

	stored := reload(t, st, queued.ID)
	assert.Equal(t, domain.JobStatusCancelled, stored.Status)
	assert.Nil(t, stored.StartedAt)
	assert.NotNil(t, stored.FinishedAt)
	assert.Zero(t, rec.started)
	assert.Zero(t, rec.stopped)
	assert.Equal(t, map[string]int{"cancelled": 1}, rec.finished)
}

func TestEngineObservesCancellationBetweenStages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.NewStore()
	p := &mockPipeline{}
	p.DraftFn = func(ctx context.Context, _ uuid.UUID, jobID *uuid.UUID) (*pipeline.DraftResult, error) {
		require.NoError(t, st.Jobs().RequestCancellation(ctx, *jobID))
		return &pipeline.DraftResult{}, nil
	}
	engine := job.NewEngine(st, p, nil)

	queued := createJob(t, st, domain.JobTypeTaskPipeline, time.Now())
	_, err := engine.Start(ctx, queued)
	require.NoError(t, err)

	assert.Equal(t, []string{"draft"}, p.calls())
	stored := reload(t, st, queued.ID)
	assert.Equal(t, domain.JobStatusCancelled, stored.Status)
	assert.Equal(t, "draft", stored.CurrentStep)
	assert.Nil(t, stored.ErrorMessage)
	assert.NotNil(t, stored.FinishedAt)
}

func TestEngineProgressIsMonotonic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.NewStore()

	var seen []int
	var queued *domain.Job
	observe := func() {
		seen = append(seen, reload(t, st, queued.ID).ProgressPct)
	}
	p := &mockPipeline{
		DraftFn: func(context.Context, uuid.UUID, *uuid.UUID) (*pipeline.DraftResult, error) {
			observe()
			return &pipeline.DraftResult{}, nil
		},
		RefineFn: func(context.Context, uuid.UUID, *uuid.UUID) (*pipeline.RefineResult, error) {
			observe()
			return &pipeline.RefineResult{}, nil
		},
		SplitFn: func(context.Context, uuid.UUID, *uuid.UUID) (*pipeline.SplitResult, error) {
			observe()
			return &pipeline.SplitResult{}, nil
		},
	}
	engine := job.NewEngine(st, p, nil)

	queued = createJob(t, st, domain.JobTypeTaskPipeline, time.Now())
	_, err := engine.Start(ctx, queued)
	require.NoError(t, err)

	seen = append(seen, reload(t, st, queued.ID).ProgressPct)
	assert.Equal(t, []int{0, 33, 66, 100}, seen)
}

func TestEngineFailures(t *testing.T) {
	t.Parallel()

	invErr := &invoker.InvocationError{Intent: "task_refine", Attempts: 3, Err: invoker.ErrMalformedJSON}

	tests := []struct {
		name        string
		jobType     domain.JobType
		pipeline    *mockPipeline
		wantMessage string
		wantStages  []string
	}{
		{
			name:        "unsupported job type",
			jobType:     "spec_generation",
			pipeline:    &mockPipeline{},
			wantMessage: `unsupported job type: "spec_generation"`,
			wantStages:  nil,
		},
		{
			name:    "invocation failure",
			jobType: domain.JobTypeTaskPipeline,
			pipeline: &mockPipeline{
				RefineFn: func(context.Context, uuid.UUID, *uuid.UUID) (*pipeline.RefineResult, error) {
					return nil, invErr
				},
			},
			wantMessage: "refine stage failed: " + invErr.Error(),
			wantStages:  []string{"draft", "refine"},
		},
		{
			name:    "job budget exhausted",
			jobType: domain.JobTypeTaskPipeline,
			pipeline: &mockPipeline{
				SplitFn: func(context.Context, uuid.UUID, *uuid.UUID) (*pipeline.SplitResult, error) {
					return nil, fmt.Errorf("%w: job 42", budget.ErrBudgetExceeded)
				},
			},
			wantMessage: "job generation call budget exceeded: job 42",
			wantStages:  []string{"draft", "refine", "split"},
		},
		{
			name:    "panic in stage",
			jobType: domain.JobTypeTaskPipeline,
			pipeline: &mockPipeline{
				DraftFn: func(context.Context, uuid.UUID, *uuid.UUID) (*pipeline.DraftResult, error) {
					panic("boom")
				},
			},
			wantMessage: "panic: boom",
			wantStages:  []string{"draft"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st := memory.NewStore()
			rec := newMockRecorder()
			engine := job.NewEngine(st, tc.pipeline, nil, job.WithRecorder(rec))

			queued := createJob(t, st, tc.jobType, time.Now())
			_, err := engine.Start(context.Background(), queued)
			require.NoError(t, err)

			stored := reload(t, st, queued.ID)
			assert.Equal(t, domain.JobStatusFailed, stored.Status)
			require.NotNil(t, stored.ErrorMessage)
			assert.Equal(t, tc.wantMessage, *stored.ErrorMessage)
			assert.NotNil(t, stored.FinishedAt)
			assert.Equal(t, tc.wantStages, tc.pipeline.calls())
			assert.Equal(t, 1, rec.stopped)
			assert.Equal(t, map[string]int{"failed": 1}, rec.finished)
		})
	}
}

func TestEngineRecordsQuotaMessageVerbatim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.NewStore()

	project := &domain.Project{ID: uuid.New(), Name: "Planner", DetailLevel: domain.DetailLevelNormal, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.Planning().CreateProject(ctx, project))
	unit := &domain.PlanningUnit{ID: uuid.New(), ProjectID: project.ID, Name: "Auth", Category: domain.UnitCategoryFeature}
	require.NoError(t, st.Planning().CreatePlanningUnit(ctx, unit))
	sprint := &domain.Sprint{ID: uuid.New(), ProjectID: project.ID, Index: 1, Name: "Sprint 1", PlanningUnitIDs: []uuid.UUID{unit.ID}}
	require.NoError(t, st.Planning().CreateSprint(ctx, sprint))

	prompts, err := prompt.NewTemplateBuilder(prompt.Templates{})
	require.NoError(t, err)
	calls := budget.New(st.Usage(), budget.Limits{ProjectDailyMaxCalls: 1, JobMaxCalls: 10}, nil)
	inv := invoker.New(generation.NewDummyGenerator(), calls, st.CallLogs(), invoker.Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, nil)
	engine := job.NewEngine(st, pipeline.New(st, inv, prompts, nil), nil, job.WithBudget(calls))

	queued, err := domain.NewJob(project.ID, &sprint.ID, domain.JobTypeTaskPipeline, nil)
	require.NoError(t, err)
	require.NoError(t, st.Jobs().Create(ctx, queued))

	_, err = engine.Start(ctx, queued)
	require.NoError(t, err)

	stored := reload(t, st, queued.ID)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Equal(t, "refine", stored.CurrentStep)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, fmt.Sprintf("%s: project %s", budget.ErrQuotaExceeded, project.ID), *stored.ErrorMessage)
	assert.Zero(t, calls.JobCalls(queued.ID))

	drafted, err := st.WorkItems().ListBySprint(ctx, sprint.ID, store.WorkItemFilter{})
	require.NoError(t, err)
	assert.Len(t, drafted, 2, "draft output is kept after a later stage fails")
}

func TestEngineRejectsJobsNotQueued(t *testing.T) {
	t.Parallel()
	st := memory.NewStore()
	engine := job.NewEngine(st, &mockPipeline{}, nil)

	queued := createJob(t, st, domain.JobTypeTaskPipeline, time.Now())
	require.NoError(t, queued.TransitionTo(domain.JobStatusRunning, time.Now()))

	_, err := engine.Start(context.Background(), queued)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestEngineLosesRaceToCancellation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.NewStore()
	p := &mockPipeline{}
	engine := job.NewEngine(st, p, nil)

	queued := createJob(t, st, domain.JobTypeTaskPipeline, time.Now())
	cancelled := reload(t, st, queued.ID)
	require.NoError(t, cancelled.TransitionTo(domain.JobStatusCancelled, time.Now()))
	require.NoError(t, st.Jobs().Update(ctx, cancelled, domain.JobStatusQueued))

	got, err := engine.Start(ctx, queued)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
	assert.Empty(t, p.calls())
}

func TestEngineFailInterrupted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.NewStore()
	rel := &mockReleaser{}
	engine := job.NewEngine(st, &mockPipeline{}, nil, job.WithBudget(rel))

	old := createJob(t, st, domain.JobTypeTaskPipeline, time.Now())
	require.NoError(t, old.TransitionTo(domain.JobStatusRunning, time.Now().Add(-time.Hour)))
	require.NoError(t, st.Jobs().Update(ctx, old, domain.JobStatusQueued))

	recent := createJob(t, st, domain.JobTypeTaskPipeline, time.Now())
	require.NoError(t, recent.TransitionTo(domain.JobStatusRunning, time.Now()))
	require.NoError(t, st.Jobs().Update(ctx, recent, domain.JobStatusQueued))

	n, err := engine.FailInterrupted(ctx, time.Now().Add(-time.Minute), job.StuckMessage)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored := reload(t, st, old.ID)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, job.StuckMessage, *stored.ErrorMessage)
	assert.Equal(t, domain.JobStatusRunning, reload(t, st, recent.ID).Status)
	assert.Equal(t, []uuid.UUID{old.ID}, rel.released)
}

func TestEngineFailInterruptedSkipsOwnedJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.NewStore()
	rel := &mockReleaser{}

	started := make(chan struct{})
	release := make(chan struct{})
	p := &mockPipeline{
		DraftFn: func(context.Context, uuid.UUID, *uuid.UUID) (*pipeline.DraftResult, error) {
			close(started)
			<-release
			return &pipeline.DraftResult{}, nil
		},
	}
	engine := job.NewEngine(st, p, nil, job.WithBudget(rel),
		job.WithClock(func() time.Time { return time.Now().UTC().Add(-time.Hour) }))

	queued := createJob(t, st, domain.JobTypeTaskPipeline, time.Now())
	done := make(chan *domain.Job, 1)
	go func() {
		got, err := engine.Start(ctx, queued)
		assert.NoError(t, err)
		done <- got
	}()
	<-started
	assert.True(t, engine.Owns(queued.ID))

	n, err := engine.FailInterrupted(ctx, time.Now().Add(-time.Minute), job.StuckMessage)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.JobStatusRunning, reload(t, st, queued.ID).Status)
	assert.Empty(t, rel.released)

	close(release)
	got := <-done
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.False(t, engine.Owns(queued.ID))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want job.Outcome
	}{
		{err: nil, want: job.OutcomeCompleted},
		{err: fmt.Errorf("stage: %w", job.ErrCancelled), want: job.OutcomeCancelled},
		{err: fmt.Errorf("stage: %w", budget.ErrQuotaExceeded), want: job.OutcomeQuotaExceeded},
		{err: fmt.Errorf("stage: %w", budget.ErrBudgetExceeded), want: job.OutcomeBudgetExceeded},
		{err: fmt.Errorf("stage: %w", &invoker.InvocationError{Err: invoker.ErrEmptyResponse}), want: job.OutcomeInvocationFailed},
		{err: job.ErrUnsupportedJobType, want: job.OutcomeUnsupported},
		{err: errors.New("disk full"), want: job.OutcomeOther},
	}

	for _, tc := range tests {
		t.Run(tc.want.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, job.Classify(tc.err))
		})
	}
}

func TestPipelineResultJSON(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(job.PipelineResult{DraftItems: 1, ReadyForDevItems: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"draft_items":1,"refined_items":0,"fine_items":0,"ready_for_dev_items":3}`, string(data))
}
