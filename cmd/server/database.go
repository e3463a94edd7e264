package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/phrazzld/sprint-planner-api/internal/config"
	"github.com/phrazzld/sprint-planner-api/internal/platform/memory"
	"github.com/phrazzld/sprint-planner-api/internal/platform/postgres"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// setupAppDatabase opens a pgx connection pool and verifies it.
func setupAppDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns)
	return db, nil
}

// setupProvider returns the store for the configured driver. The *sql.DB is
// nil for the memory driver.
func setupProvider(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (store.Provider, *sql.DB, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on exit and not shared between processes")
		return memory.NewStore(), nil, nil
	case "postgres":
		db, err := setupAppDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewProvider(db, logger), db, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
