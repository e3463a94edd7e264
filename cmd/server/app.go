package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/sprint-planner-api/internal/api"
	"github.com/phrazzld/sprint-planner-api/internal/budget"
	"github.com/phrazzld/sprint-planner-api/internal/config"
	"github.com/phrazzld/sprint-planner-api/internal/events"
	"github.com/phrazzld/sprint-planner-api/internal/invoker"
	"github.com/phrazzld/sprint-planner-api/internal/job"
	"github.com/phrazzld/sprint-planner-api/internal/metrics"
	"github.com/phrazzld/sprint-planner-api/internal/pipeline"
	"github.com/phrazzld/sprint-planner-api/internal/prompt"
	"github.com/phrazzld/sprint-planner-api/internal/service"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// application holds the shared dependencies of every command so they can be
// built once and released together.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	provider store.Provider
	metrics  *metrics.Metrics
	budget   *budget.CallBudget

	engine  *job.Engine
	worker  *job.Worker
	runner  *job.Runner
	emitter *events.InMemoryEventEmitter

	jobService      service.JobService
	planningService service.PlanningService

	jobHandler      *api.JobHandler
	planningHandler *api.PlanningHandler
}

// newApplication builds the store, generation stack, job engine, services
// and handlers described by cfg. It does not start the runner.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}

	var err error
	app.provider, app.db, err = setupProvider(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	generator, err := newGenerator(ctx, cfg.LLM, logger)
	if err != nil {
		app.cleanup()
		return nil, err
	}
	logger.Info("generation provider initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	prompts, err := newPromptBuilder(cfg.LLM)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	app.budget = budget.New(app.provider.Usage(), budget.Limits{
		ProjectDailyMaxCalls: cfg.LLM.ProjectDailyMaxCalls,
		JobMaxCalls:          cfg.LLM.JobMaxCalls,
	}, logger)

	inv := invoker.New(generator, app.budget, app.provider.CallLogs(), invoker.Config{
		MaxRetries:     cfg.LLM.MaxRetries,
		InitialBackoff: cfg.LLM.InitialBackoff,
		MaxBackoff:     cfg.LLM.MaxBackoff,
	}, logger, invoker.WithRecorder(app.metrics))

	stages := pipeline.New(app.provider, inv, prompts, logger)

	app.engine = job.NewEngine(app.provider, stages, logger,
		job.WithBudget(app.budget),
		job.WithRecorder(app.metrics))
	app.worker = job.NewWorker(app.provider.Jobs(), app.engine, logger)
	app.runner = job.NewRunner(app.worker, app.engine, job.RunnerConfig{
		PollInterval:          cfg.Worker.PollInterval,
		StuckJobAge:           cfg.Worker.StuckJobAge,
		StuckJobCheckInterval: cfg.Worker.StuckJobCheckInterval,
	}, logger)

	app.emitter = events.NewInMemoryEventEmitter(logger)
	if cfg.Worker.Enabled {
		app.emitter.RegisterHandler(app.runner)
	}

	app.jobService, err = service.NewJobService(app.provider, app.worker, app.emitter, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create job service: %w", err)
	}
	app.planningService, err = service.NewPlanningService(app.provider, stages, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create planning service: %w", err)
	}

	app.jobHandler = api.NewJobHandler(app.jobService, logger)
	app.planningHandler = api.NewPlanningHandler(app.planningService, logger)

	logger.Info("application initialized")
	return app, nil
}

// newPromptBuilder loads prompt overrides from the configured file. An
// unset path yields the built-in templates.
func newPromptBuilder(cfg config.LLMConfig) (prompt.Builder, error) {
	b, err := prompt.LoadFile(cfg.PromptsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	return b, nil
}

// Run serves HTTP until ctx is done, running queued jobs in the background
// when the worker is enabled.
func (app *application) Run(ctx context.Context) error {
	if app.config.Worker.Enabled {
		if err := app.runner.Start(); err != nil {
			app.cleanup()
			return fmt.Errorf("failed to start job runner: %w", err)
		}
		app.logger.Info("job runner started", "poll_interval", app.config.Worker.PollInterval)
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup stops the runner and closes the database.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
}
