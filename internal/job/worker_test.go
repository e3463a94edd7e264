package job_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/events"
	"github.com/phrazzld/sprint-planner-api/internal/job"
	"github.com/phrazzld/sprint-planner-api/internal/pipeline"
	"github.com/phrazzld/sprint-planner-api/internal/platform/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPollEmptyQueue(t *testing.T) {
	t.Parallel()
	st := memory.NewStore()
	w := job.NewWorker(st.Jobs(), job.NewEngine(st, &mockPipeline{}, nil), nil)

	got, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWorkerRunLoopClaimsOldestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.NewStore()

	var order []uuid.UUID
	p := &mockPipeline{
		DraftFn: func(_ context.Context, _ uuid.UUID, jobID *uuid.UUID) (*pipeline.DraftResult, error) {
			order = append(order, *jobID)
			return &pipeline.DraftResult{}, nil
		},
	}
	w := job.NewWorker(st.Jobs(), job.NewEngine(st, p, nil), nil)

	base := time.Now().Add(-time.Hour)
	third := createJob(t, st, domain.JobTypeTaskPipeline, base.Add(2*time.Minute))
	first := createJob(t, st, domain.JobTypeTaskPipeline, base)
	second := createJob(t, st, domain.JobTypeTaskPipeline, base.Add(time.Minute))

	n, err := w.RunLoop(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, order)
	assert.Equal(t, domain.JobStatusQueued, reload(t, st, third.ID).Status)

	n, err = w.RunLoop(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.JobStatusCompleted, reload(t, st, third.ID).Status)

	n, err = w.RunLoop(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorkerPollRunsOneJobAtATime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.NewStore()

	var running, peak atomic.Int32
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	p := &mockPipeline{
		DraftFn: func(context.Context, uuid.UUID, *uuid.UUID) (*pipeline.DraftResult, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			entered <- struct{}{}
			<-release
			running.Add(-1)
			return &pipeline.DraftResult{}, nil
		},
	}
	w := job.NewWorker(st.Jobs(), job.NewEngine(st, p, nil), nil)

	first := createJob(t, st, domain.JobTypeTaskPipeline, time.Now().Add(-time.Minute))
	second := createJob(t, st, domain.JobTypeTaskPipeline, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Poll(ctx)
			assert.NoError(t, err)
		}()
	}

	<-entered
	select {
	case <-entered:
		t.Fatal("second job started while the first was running")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, domain.JobStatusQueued, reload(t, st, second.ID).Status)

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, domain.JobStatusCompleted, reload(t, st, first.ID).Status)
	assert.Equal(t, domain.JobStatusCompleted, reload(t, st, second.ID).Status)
}

func TestWorkerRunLoopStopsOnCancelledContext(t *testing.T) {
	t.Parallel()
	st := memory.NewStore()
	w := job.NewWorker(st.Jobs(), job.NewEngine(st, &mockPipeline{}, nil), nil)
	queued := createJob(t, st, domain.JobTypeTaskPipeline, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := w.RunLoop(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.Equal(t, domain.JobStatusQueued, reload(t, st, queued.ID).Status)
}

func TestRunnerRecoversAndWakesOnJobCreated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.NewStore()
	engine := job.NewEngine(st, &mockPipeline{}, nil)
	w := job.NewWorker(st.Jobs(), engine, nil)

	orphan := createJob(t, st, domain.JobTypeTaskPipeline, time.Now())
	require.NoError(t, orphan.TransitionTo(domain.JobStatusRunning, time.Now().Add(-time.Minute)))
	require.NoError(t, st.Jobs().Update(ctx, orphan, domain.JobStatusQueued))
	waiting := createJob(t, st, domain.JobTypeTaskPipeline, time.Now())

	runner := job.NewRunner(w, engine, job.RunnerConfig{
		PollInterval:          time.Hour,
		StuckJobCheckInterval: time.Hour,
	}, nil)
	emitter := events.NewInMemoryEventEmitter(nil)
	emitter.RegisterHandler(runner)

	require.NoError(t, runner.Start())
	t.Cleanup(runner.Stop)

	recovered := reload(t, st, orphan.ID)
	assert.Equal(t, domain.JobStatusFailed, recovered.Status)
	require.NotNil(t, recovered.ErrorMessage)
	assert.Equal(t, job.InterruptedMessage, *recovered.ErrorMessage)

	require.Eventually(t, func() bool {
		return reload(t, st, waiting.ID).Status == domain.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	created := createJob(t, st, domain.JobTypeTaskPipeline, time.Now())
	require.NoError(t, emitter.EmitEvent(ctx, events.NewJobEvent(events.TypeJobCreated, created.ID, created.ProjectID)))

	require.Eventually(t, func() bool {
		return reload(t, st, created.ID).Status == domain.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunnerIgnoresOtherEvents(t *testing.T) {
	t.Parallel()
	st := memory.NewStore()
	engine := job.NewEngine(st, &mockPipeline{}, nil)
	runner := job.NewRunner(job.NewWorker(st.Jobs(), engine, nil), engine, job.RunnerConfig{}, nil)

	err := runner.HandleEvent(context.Background(),
		events.NewJobEvent(events.TypeJobCancelRequested, uuid.New(), uuid.New()))
	assert.NoError(t, err)
	assert.NoError(t, runner.HandleEvent(context.Background(), nil))
}
