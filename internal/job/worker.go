package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// Worker claims queued jobs in creation order and runs them one at a time.
// Concurrent Poll calls are serialized.
type Worker struct {
	mu     sync.Mutex
	jobs   store.JobStore
	engine *Engine
	logger *slog.Logger
	now    func() time.Time
}

// NewWorker creates a Worker.
func NewWorker(jobs store.JobStore, engine *Engine, log *slog.Logger) *Worker {
	if jobs == nil || engine == nil {
		panic("worker dependencies cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		jobs:   jobs,
		engine: engine,
		logger: log.With(slog.String("component", "job_worker")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Poll claims the oldest queued job and runs it. It returns nil with no
// error when the queue is empty.
func (w *Worker) Poll(ctx context.Context) (*domain.Job, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	claimed, err := w.jobs.ClaimNextQueued(ctx, w.now())
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if claimed == nil {
		return nil, nil
	}

	w.logger.DebugContext(ctx, "claimed job", "job_id", claimed.ID, "job_type", claimed.Type)
	return w.engine.Start(ctx, claimed)
}

// RunLoop polls until the queue is empty, ctx is done, or maxJobs jobs have
// run. maxJobs <= 0 means no limit. It returns the number of jobs run.
func (w *Worker) RunLoop(ctx context.Context, maxJobs int) (int, error) {
	processed := 0
	for maxJobs <= 0 || processed < maxJobs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		job, err := w.Poll(ctx)
		if err != nil {
			return processed, err
		}
		if job == nil {
			break
		}
		processed++
	}
	return processed, nil
}
