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
	"github.com/phrazzld/sprint-planner-api/internal/platform/logger"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

const jobColumns = `id, seq, project_id, sprint_id, type, status, payload, result,
	error_message, progress_pct, current_step, cancellation_requested,
	claimed_at, created_at, started_at, finished_at`

// PostgresJobStore implements store.JobStore.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.JobStore = (*PostgresJobStore)(nil)

// NewPostgresJobStore creates a job store over a connection or transaction.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Create inserts a queued job and writes the assigned sequence back to it.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO jobs (id, project_id, sprint_id, type, status, payload, result,
			error_message, progress_pct, current_step, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq
	`
	err := s.db.QueryRowContext(ctx, query,
		job.ID,
		job.ProjectID,
		nullUUID(job.SprintID),
		job.Type,
		job.Status,
		nullJSON(job.Payload),
		nullJSON(job.Result),
		job.ErrorMessage,
		job.ProgressPct,
		job.CurrentStep,
		job.CreatedAt,
	).Scan(&job.Seq)
	if err != nil {
		log.Error("failed to create job", "job_id", job.ID, "error", err)
		return MapError(err)
	}

	log.Debug("job created", "job_id", job.ID, "job_type", job.Type)
	return nil
}

func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(err)
	}
	return job, nil
}

// Update writes the job's mutable state guarded by its previous status.
func (s *PostgresJobStore) Update(ctx context.Context, job *domain.Job, from domain.JobStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE jobs
		SET status = $2, result = $3, error_message = $4, progress_pct = $5,
			current_step = $6, claimed_at = $7, started_at = $8, finished_at = $9
		WHERE id = $1 AND status = $10
	`
	result, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		nullJSON(job.Result),
		job.ErrorMessage,
		job.ProgressPct,
		job.CurrentStep,
		job.ClaimedAt,
		job.StartedAt,
		job.FinishedAt,
		from,
	)
	if err != nil {
		log.Error("failed to update job", "job_id", job.ID, "error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrStaleStatus); err != nil {
		return s.explainMiss(ctx, job.ID, from, err)
	}
	return nil
}

// RequestCancellation flags a running job.
func (s *PostgresJobStore) RequestCancellation(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET cancellation_requested = TRUE WHERE id = $1 AND status = $2`,
		id, domain.JobStatusRunning)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrStaleStatus); err != nil {
		return s.explainMiss(ctx, id, domain.JobStatusRunning, err)
	}
	return nil
}

// explainMiss turns a zero-row guarded update into ErrJobNotFound or a
// descriptive ErrStaleStatus.
func (s *PostgresJobStore) explainMiss(ctx context.Context, id uuid.UUID, want domain.JobStatus, missErr error) error {
	var current domain.JobStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrJobNotFound
	}
	if err != nil {
		return MapError(err)
	}
	return fmt.Errorf("%w: job %s is %s, expected %s", missErr, id, current, want)
}

// ClaimNextQueued stamps the oldest queued job. Concurrent claimers skip
// rows locked by each other.
func (s *PostgresJobStore) ClaimNextQueued(ctx context.Context, claimedAt time.Time) (*domain.Job, error) {
	query := `
		UPDATE jobs SET claimed_at = $1
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'queued'
			ORDER BY created_at ASC, seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, claimedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, MapError(err)
	}
	return job, nil
}

func (s *PostgresJobStore) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE project_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2 OFFSET $3`
	return s.queryJobs(ctx, query, projectID, limitOrAll(limit), offset)
}

func (s *PostgresJobStore) ListRunningStartedBefore(ctx context.Context, t time.Time) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'running' AND started_at < $1
		ORDER BY seq ASC`
	return s.queryJobs(ctx, query, t)
}

func (s *PostgresJobStore) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job          domain.Job
		sprintID     uuid.NullUUID
		payload      []byte
		result       []byte
		errorMessage sql.NullString
		claimedAt    sql.NullTime
		startedAt    sql.NullTime
		finishedAt   sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.Seq, &job.ProjectID, &sprintID, &job.Type, &job.Status,
		&payload, &result, &errorMessage, &job.ProgressPct, &job.CurrentStep,
		&job.CancellationRequested, &claimedAt, &job.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if sprintID.Valid {
		id := sprintID.UUID
		job.SprintID = &id
	}
	if len(payload) > 0 {
		job.Payload = payload
	}
	if len(result) > 0 {
		job.Result = result
	}
	if errorMessage.Valid {
		msg := errorMessage.String
		job.ErrorMessage = &msg
	}
	job.ClaimedAt = timePtr(claimedAt)
	job.StartedAt = timePtr(startedAt)
	job.FinishedAt = timePtr(finishedAt)
	return &job, nil
}
