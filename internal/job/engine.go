package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/budget"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/pipeline"
	"github.com/phrazzld/sprint-planner-api/internal/platform/logger"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// Messages recorded on running jobs failed by Engine.FailInterrupted.
const (
	InterruptedMessage = "interrupted: worker restarted"
	StuckMessage       = "interrupted: exceeded maximum running time"
)

// Pipeline runs the generation passes of a sprint.
type Pipeline interface {
	Draft(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*pipeline.DraftResult, error)
	Refine(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*pipeline.RefineResult, error)
	Split(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*pipeline.SplitResult, error)
}

// BudgetReleaser forgets the call budget of a finished job.
type BudgetReleaser interface {
	Release(jobID uuid.UUID)
}

// Recorder receives job metrics.
type Recorder interface {
	JobStarted(jobType string)
	JobStopped(jobType string)
	JobFinished(jobType, status string)
}

// PipelineResult is stored as the result of a completed sprint pipeline job.
type PipelineResult struct {
	DraftItems       int `json:"draft_items"`
	RefinedItems     int `json:"refined_items"`
	FineItems        int `json:"fine_items"`
	ReadyForDevItems int `json:"ready_for_dev_items"`
}

// Engine runs jobs through their stages.
type Engine struct {
	provider store.Provider
	pipeline Pipeline
	budget   BudgetReleaser
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithBudget sets the job budget released at finalization.
func WithBudget(b BudgetReleaser) EngineOption {
	return func(e *Engine) { e.budget = b }
}

// WithClock sets the clock used for job timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(provider store.Provider, p Pipeline, log *slog.Logger, opts ...EngineOption) *Engine {
	if provider == nil || p == nil {
		panic("engine dependencies cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		provider: provider,
		pipeline: p,
		logger:   log.With(slog.String("component", "job_engine")),
		now:      func() time.Time { return time.Now().UTC() },
		active:   make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start runs a queued job to a terminal status and returns it. Stage failures
// are recorded on the job, not returned; the error is non-nil only when the
// job could not be started or its final state could not be saved.
func (e *Engine) Start(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if job.Status != domain.JobStatusQueued {
		return job, fmt.Errorf("%w: job %s is %s, not queued", domain.ErrInvalidTransition, job.ID, job.Status)
	}

	log := logger.FromContextOrDefault(ctx, e.logger).With(
		"job_id", job.ID,
		"project_id", job.ProjectID,
		"job_type", job.Type)
	ctx = logger.WithLogger(ctx, log)
	jobs := e.provider.Jobs()

	if job.CancellationRequested {
		if err := job.TransitionTo(domain.JobStatusCancelled, e.now()); err != nil {
			return job, err
		}
		if err := jobs.Update(ctx, job, domain.JobStatusQueued); err != nil {
			return e.reload(ctx, job, err)
		}
		e.finished(job)
		log.InfoContext(ctx, "job cancelled before start")
		return job, nil
	}

	if err := job.TransitionTo(domain.JobStatusRunning, e.now()); err != nil {
		return job, err
	}
	if err := jobs.Update(ctx, job, domain.JobStatusQueued); err != nil {
		return e.reload(ctx, job, err)
	}
	if e.recorder != nil {
		e.recorder.JobStarted(string(job.Type))
	}
	log.InfoContext(ctx, "job started")

	e.own(job.ID)
	defer e.disown(job.ID)
	e.execute(ctx, job)
	return job, nil
}

func (e *Engine) own(id uuid.UUID) {
	e.mu.Lock()
	e.active[id] = struct{}{}
	e.mu.Unlock()
}

func (e *Engine) disown(id uuid.UUID) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}

// Owns reports whether this engine is currently running the job.
func (e *Engine) Owns(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[id]
	return ok
}

// execute runs the job's stages and always finalizes it, even on panic.
func (e *Engine) execute(ctx context.Context, job *domain.Job) {
	var runErr error
	defer func() {
		if p := recover(); p != nil {
			runErr = fmt.Errorf("panic: %v", p)
			logger.FromContextOrDefault(ctx, e.logger).ErrorContext(ctx, "job panicked", "panic", p)
		}
		e.finalize(ctx, job, runErr)
	}()

	runErr = e.run(ctx, job)
}

// reload returns the stored job after a conditional update lost a race.
func (e *Engine) reload(ctx context.Context, job *domain.Job, cause error) (*domain.Job, error) {
	if !errors.Is(cause, store.ErrStaleStatus) {
		return job, fmt.Errorf("failed to update job %s: %w", job.ID, cause)
	}
	current, err := e.provider.Jobs().GetByID(ctx, job.ID)
	if err != nil {
		return job, fmt.Errorf("failed to reload job %s: %w", job.ID, err)
	}
	logger.FromContextOrDefault(ctx, e.logger).InfoContext(ctx, "job changed before it could start",
		"status", current.Status)
	return current, nil
}

func (e *Engine) run(ctx context.Context, job *domain.Job) error {
	switch job.Type {
	case domain.JobTypeTaskPipeline:
		return e.runSprintPipeline(ctx, job)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedJobType, job.Type)
	}
}

type stage struct {
	step  string
	start int
	end   int
	run   func(ctx context.Context) error
}

func (e *Engine) runSprintPipeline(ctx context.Context, job *domain.Job) error {
	if job.SprintID == nil {
		return ErrMissingSprint
	}
	sprintID, jobID := *job.SprintID, job.ID
	var result PipelineResult

	stages := []stage{
		{step: "draft", start: 0, end: 33, run: func(ctx context.Context) error {
			r, err := e.pipeline.Draft(ctx, sprintID, &jobID)
			if r != nil {
				result.DraftItems = len(r.Items)
			}
			return err
		}},
		{step: "refine", start: 33, end: 66, run: func(ctx context.Context) error {
			r, err := e.pipeline.Refine(ctx, sprintID, &jobID)
			if r != nil {
				result.RefinedItems = len(r.Refined)
			}
			return err
		}},
		{step: "split", start: 66, end: 100, run: func(ctx context.Context) error {
			r, err := e.pipeline.Split(ctx, sprintID, &jobID)
			if r != nil {
				result.FineItems = len(r.Created)
			}
			return err
		}},
	}

	for _, s := range stages {
		if err := e.checkCancellation(ctx, job); err != nil {
			return err
		}
		if err := e.progress(ctx, job, s.start, s.step); err != nil {
			return err
		}
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("%s stage failed: %w", s.step, err)
		}
	}

	ready, err := e.provider.WorkItems().ListBySprint(ctx, sprintID,
		store.WorkItemFilter{Status: domain.WorkItemStatusReadyForDev})
	if err != nil {
		return fmt.Errorf("failed to count ready items: %w", err)
	}
	result.ReadyForDevItems = len(ready)

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode job result: %w", err)
	}
	job.Result = data
	return nil
}

// checkCancellation re-reads the cancellation flag from the store.
func (e *Engine) checkCancellation(ctx context.Context, job *domain.Job) error {
	current, err := e.provider.Jobs().GetByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to read cancellation flag: %w", err)
	}
	if current.CancellationRequested {
		job.CancellationRequested = true
		return ErrCancelled
	}
	return nil
}

func (e *Engine) progress(ctx context.Context, job *domain.Job, pct int, step string) error {
	if err := job.SetProgress(pct, step); err != nil {
		return err
	}
	if err := e.provider.Jobs().Update(ctx, job, domain.JobStatusRunning); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// finalize moves a running job to its terminal status exactly once.
func (e *Engine) finalize(ctx context.Context, job *domain.Job, runErr error) {
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContextOrDefault(ctx, e.logger)
	now := e.now()
	outcome := Classify(runErr)

	var err error
	switch outcome {
	case OutcomeCompleted:
		err = job.TransitionTo(domain.JobStatusCompleted, now)
	case OutcomeCancelled:
		err = job.TransitionTo(domain.JobStatusCancelled, now)
	case OutcomeQuotaExceeded, OutcomeBudgetExceeded:
		err = job.Fail(policyMessage(runErr), now)
	case OutcomeInvocationFailed, OutcomeUnsupported, OutcomeOther:
		err = job.Fail(runErr.Error(), now)
	default:
		err = job.Fail(fmt.Sprintf("unclassified outcome %d: %v", outcome, runErr), now)
	}
	if err != nil {
		log.ErrorContext(ctx, "failed to apply final status", "outcome", outcome.String(), "error", err)
	}

	if e.budget != nil {
		e.budget.Release(job.ID)
	}
	if e.recorder != nil {
		e.recorder.JobStopped(string(job.Type))
	}

	if err := e.provider.Jobs().Update(ctx, job, domain.JobStatusRunning); err != nil {
		log.ErrorContext(ctx, "failed to save final job status",
			"status", job.Status,
			"outcome", outcome.String(),
			"error", err)
		return
	}
	e.finished(job)

	attrs := []any{"status", job.Status, "outcome", outcome.String(), "progress", job.ProgressPct}
	if runErr != nil && outcome != OutcomeCancelled {
		log.WarnContext(ctx, "job failed", append(attrs, "error", runErr)...)
		return
	}
	log.InfoContext(ctx, "job finished", attrs...)
}

func (e *Engine) finished(job *domain.Job) {
	if e.recorder != nil {
		e.recorder.JobFinished(string(job.Type), string(job.Status))
	}
}

// policyMessage returns the budget error as the budget reported it, without
// the stage context wrapped around it.
func policyMessage(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if isPolicySentinel(e) || isPolicySentinel(errors.Unwrap(e)) {
			return e.Error()
		}
	}
	return err.Error()
}

func isPolicySentinel(err error) bool {
	return err == budget.ErrQuotaExceeded || err == budget.ErrBudgetExceeded
}

// FailInterrupted fails every running job whose StartedAt precedes before,
// recording msg. Jobs this engine is still running are left alone. It
// returns the number of jobs failed.
func (e *Engine) FailInterrupted(ctx context.Context, before time.Time, msg string) (int, error) {
	jobs, err := e.provider.Jobs().ListRunningStartedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to list running jobs: %w", err)
	}

	failed := 0
	for _, job := range jobs {
		if e.Owns(job.ID) {
			e.logger.DebugContext(ctx, "skipping job owned by this process", "job_id", job.ID)
			continue
		}
		if err := job.Fail(msg, e.now()); err != nil {
			continue
		}
		if err := e.provider.Jobs().Update(ctx, job, domain.JobStatusRunning); err != nil {
			if !errors.Is(err, store.ErrStaleStatus) {
				e.logger.ErrorContext(ctx, "failed to fail interrupted job", "job_id", job.ID, "error", err)
			}
			continue
		}
		if e.budget != nil {
			e.budget.Release(job.ID)
		}
		e.finished(job)
		failed++
		e.logger.WarnContext(ctx, "failed interrupted job", "job_id", job.ID, "started_at", job.StartedAt)
	}
	return failed, nil
}
