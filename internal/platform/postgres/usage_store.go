package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// PostgresUsageStore implements store.UsageStore with a conditional upsert,
// so concurrent callers can never push a counter past its limit.
type PostgresUsageStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.UsageStore = (*PostgresUsageStore)(nil)

// NewPostgresUsageStore creates a usage store over a connection or transaction.
func NewPostgresUsageStore(db store.DBTX, logger *slog.Logger) *PostgresUsageStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresUsageStore{
		db:     db,
		logger: logger.With(slog.String("component", "usage_store")),
	}
}

func (s *PostgresUsageStore) IncrementIfBelow(ctx context.Context, projectID uuid.UUID, day time.Time, max int) (int, error) {
	day = domain.UsageDay(day)
	if max <= 0 {
		current, err := s.GetUsage(ctx, projectID, day)
		if err != nil {
			return 0, err
		}
		return current, store.ErrLimitReached
	}

	query := `
		INSERT INTO llm_usage (project_id, usage_date, call_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (project_id, usage_date)
		DO UPDATE SET call_count = llm_usage.call_count + 1
		WHERE llm_usage.call_count < $3
		RETURNING call_count
	`
	var count int
	err := s.db.QueryRowContext(ctx, query, projectID, day, max).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := s.GetUsage(ctx, projectID, day)
		if getErr != nil {
			return 0, getErr
		}
		return current, store.ErrLimitReached
	}
	if err != nil {
		s.logger.Error("failed to increment usage", "project_id", projectID, "error", err)
		return 0, MapError(err)
	}
	return count, nil
}

func (s *PostgresUsageStore) GetUsage(ctx context.Context, projectID uuid.UUID, day time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT call_count FROM llm_usage WHERE project_id = $1 AND usage_date = $2`,
		projectID, domain.UsageDay(day)).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, MapError(err)
	}
	return count, nil
}

// PostgresCallLogStore implements store.CallLogStore.
type PostgresCallLogStore struct {
	db store.DBTX
}

var _ store.CallLogStore = (*PostgresCallLogStore)(nil)

// NewPostgresCallLogStore creates a call log store over a connection or transaction.
func NewPostgresCallLogStore(db store.DBTX) *PostgresCallLogStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &PostgresCallLogStore{db: db}
}

func (s *PostgresCallLogStore) Create(ctx context.Context, entry *domain.CallLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_call_logs (id, project_id, job_id, step_type, status, request, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.ProjectID, nullUUID(entry.JobID), entry.StepType, entry.Status,
		entry.Request, entry.Response, entry.CreatedAt)
	return MapError(err)
}

func (s *PostgresCallLogStore) ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*domain.CallLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, job_id, step_type, status, request, response, created_at
		FROM llm_call_logs
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, projectID, limitOrAll(limit))
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*domain.CallLog, 0)
	for rows.Next() {
		var (
			entry domain.CallLog
			jobID uuid.NullUUID
		)
		if err := rows.Scan(&entry.ID, &entry.ProjectID, &jobID, &entry.StepType, &entry.Status,
			&entry.Request, &entry.Response, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan call log row: %w", err)
		}
		if jobID.Valid {
			id := jobID.UUID
			entry.JobID = &id
		}
		out = append(out, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call log rows: %w", err)
	}
	return out, nil
}
