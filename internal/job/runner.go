package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/sprint-planner-api/internal/events"
)

// RunnerConfig holds configuration for the background runner.
type RunnerConfig struct {
	// PollInterval is how often the queue is checked without a wake-up.
	PollInterval time.Duration

	// StuckJobAge is how long a job may stay running before it is failed.
	StuckJobAge time.Duration

	// StuckJobCheckInterval is how often to look for stuck jobs.
	// If zero, defaults to 5 minutes.
	StuckJobCheckInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		PollInterval:          5 * time.Second,
		StuckJobAge:           30 * time.Minute,
		StuckJobCheckInterval: 5 * time.Minute,
	}
}

// Runner drives a Worker in the background.
type Runner struct {
	worker     *Worker
	engine     *Engine
	config     RunnerConfig
	logger     *slog.Logger
	wake       chan struct{}
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

var _ events.EventHandler = (*Runner)(nil)

// NewRunner creates a Runner.
func NewRunner(worker *Worker, engine *Engine, config RunnerConfig, log *slog.Logger) *Runner {
	if worker == nil || engine == nil {
		panic("runner dependencies cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	defaults := DefaultRunnerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.StuckJobAge <= 0 {
		config.StuckJobAge = defaults.StuckJobAge
	}
	if config.StuckJobCheckInterval <= 0 {
		config.StuckJobCheckInterval = defaults.StuckJobCheckInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		worker:     worker,
		engine:     engine,
		config:     config,
		logger:     log.With(slog.String("component", "job_runner")),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start fails jobs interrupted by a previous process, then begins polling
// and monitoring for stuck jobs.
func (r *Runner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	r.wg.Add(2)
	go r.poll()
	go r.stuckJobMonitor()
	return nil
}

// Stop cancels the background loops and waits for them. A job in flight
// observes the cancelled context at its next generation call.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
}

// Recover fails every job left running. Only one runner works a queue, so
// any running job at startup belongs to a dead process.
func (r *Runner) Recover() error {
	n, err := r.engine.FailInterrupted(r.ctx, r.engine.now().Add(time.Second), InterruptedMessage)
	if err != nil {
		return err
	}
	r.logger.Info("recovered interrupted jobs", "failed_count", n)
	return nil
}

// Notify wakes the poll loop without blocking.
func (r *Runner) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// HandleEvent wakes the runner when a job is created.
func (r *Runner) HandleEvent(_ context.Context, event *events.JobEvent) error {
	if event != nil && event.Type == events.TypeJobCreated {
		r.Notify()
	}
	return nil
}

func (r *Runner) poll() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.drain()
	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping poll loop")
			return
		case <-ticker.C:
		case <-r.wake:
		}
		r.drain()
	}
}

func (r *Runner) drain() {
	n, err := r.worker.RunLoop(r.ctx, 0)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("job poll failed", "error", err)
	}
	if n > 0 {
		r.logger.Debug("drained job queue", "jobs_run", n)
	}
}

// stuckJobMonitor periodically fails jobs that have been running too long.
func (r *Runner) stuckJobMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckJobCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.failStuck()
		}
	}
}

func (r *Runner) failStuck() {
	n, err := r.engine.FailInterrupted(r.ctx, r.engine.now().Add(-r.config.StuckJobAge), StuckMessage)
	if err != nil {
		r.logger.Error("failed to check for stuck jobs", "error", err)
		return
	}
	if n > 0 {
		r.logger.Warn("failed stuck jobs", "count", n)
	}
}
