package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/phrazzld/sprint-planner-api/internal/config"
	"github.com/phrazzld/sprint-planner-api/internal/platform/logger"
	"github.com/phrazzld/sprint-planner-api/internal/platform/postgres"
	"github.com/spf13/cobra"
)

// errMemoryDriver is returned by commands that need a shared database.
var errMemoryDriver = errors.New("command requires the postgres database driver")

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "sprint-planner",
		Short:        "AI-assisted sprint planning API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"path to a config file (defaults to ./config.yaml when present)")

	root.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newMigrateCmd(opts),
		newSeedCmd(opts),
	)
	return root
}

// bootstrap loads configuration and installs the default logger.
func bootstrap(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(opts.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"llm_provider", cfg.LLM.Provider)
	return cfg, log, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var seedFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run queued jobs in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(opts)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := newApplication(ctx, cfg, log)
			if err != nil {
				return err
			}
			if seedFile != "" {
				if _, err := app.seedFromFile(ctx, seedFile); err != nil {
					app.cleanup()
					return err
				}
			}
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed", "", "seed file to load before serving")
	return cmd
}

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	var (
		maxJobs int
		once    bool
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run queued jobs without serving HTTP",
		Long: "Run queued jobs without serving HTTP. With --once the worker drains " +
			"the queue, up to --max-jobs jobs, and exits; otherwise it polls until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(opts)
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return errMemoryDriver
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := newApplication(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.cleanup()

			if once {
				n, err := app.worker.RunLoop(ctx, maxJobs)
				log.Info("worker drained queue", "jobs_run", n)
				if err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("worker loop failed: %w", err)
				}
				return nil
			}

			if err := app.runner.Start(); err != nil {
				return fmt.Errorf("failed to start job runner: %w", err)
			}
			log.Info("worker started", "poll_interval", cfg.Worker.PollInterval)
			<-ctx.Done()
			app.runner.Stop()
			log.Info("worker stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "maximum number of jobs to run with --once (0 means no limit)")
	cmd.Flags().BoolVar(&once, "once", false, "drain the queue and exit")
	return cmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(opts)
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return errMemoryDriver
			}
			db, err := setupAppDatabase(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					log.Error("error closing database connection", "error", err)
				}
			}()
			return postgres.Migrate(cmd.Context(), db, args[0], log)
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Create a project with planning units, constraints and sprints from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(opts)
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return errMemoryDriver
			}
			app, err := newApplication(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer app.cleanup()

			result, err := app.seedFromFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
