package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// PostgresPlanningStore implements store.PlanningStore.
type PostgresPlanningStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.PlanningStore = (*PostgresPlanningStore)(nil)

// NewPostgresPlanningStore creates a planning store over a connection or transaction.
func NewPostgresPlanningStore(db store.DBTX, logger *slog.Logger) *PostgresPlanningStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPlanningStore{
		db:     db,
		logger: logger.With(slog.String("component", "planning_store")),
	}
}

func (s *PostgresPlanningStore) CreateProject(ctx context.Context, p *domain.Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, detail_level, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Name, p.DetailLevel, p.CreatedAt)
	return MapError(err)
}

func (s *PostgresPlanningStore) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	var p domain.Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, detail_level, created_at FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.DetailLevel, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrProjectNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}
	return &p, nil
}

// CreateSprint inserts the sprint and its unit assignments; run it inside InTx.
func (s *PostgresPlanningStore) CreateSprint(ctx context.Context, sp *domain.Sprint) error {
	goals, err := jsonList(sp.Goals)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sprints (id, project_id, idx, name, goals) VALUES ($1, $2, $3, $4, $5)`,
		sp.ID, sp.ProjectID, sp.Index, sp.Name, goals)
	if err != nil {
		return MapError(err)
	}

	for pos, unitID := range sp.PlanningUnitIDs {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sprint_planning_units (sprint_id, unit_id, position) VALUES ($1, $2, $3)`,
			sp.ID, unitID, pos)
		if err != nil {
			return MapError(err)
		}
	}
	return nil
}

func (s *PostgresPlanningStore) GetSprint(ctx context.Context, id uuid.UUID) (*domain.Sprint, error) {
	var (
		sp    domain.Sprint
		goals []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, idx, name, goals FROM sprints WHERE id = $1`, id).
		Scan(&sp.ID, &sp.ProjectID, &sp.Index, &sp.Name, &goals)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSprintNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}
	if len(goals) > 0 {
		if err := json.Unmarshal(goals, &sp.Goals); err != nil {
			return nil, fmt.Errorf("failed to decode sprint goals: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT unit_id FROM sprint_planning_units WHERE sprint_id = $1 ORDER BY position ASC`, id)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	sp.PlanningUnitIDs = make([]uuid.UUID, 0)
	for rows.Next() {
		var unitID uuid.UUID
		if err := rows.Scan(&unitID); err != nil {
			return nil, fmt.Errorf("failed to scan sprint unit row: %w", err)
		}
		sp.PlanningUnitIDs = append(sp.PlanningUnitIDs, unitID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sprint unit rows: %w", err)
	}
	return &sp, nil
}

func (s *PostgresPlanningStore) CreatePlanningUnit(ctx context.Context, u *domain.PlanningUnit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO planning_units (id, project_id, name, description, category) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.ProjectID, u.Name, u.Description, u.Category)
	return MapError(err)
}

func (s *PostgresPlanningStore) ListSprintUnits(ctx context.Context, sprintID uuid.UUID) ([]*domain.PlanningUnit, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sprints WHERE id = $1)`, sprintID).Scan(&exists); err != nil {
		return nil, MapError(err)
	}
	if !exists {
		return nil, store.ErrSprintNotFound
	}

	return s.queryUnits(ctx, `
		SELECT u.id, u.project_id, u.name, u.description, u.category
		FROM sprint_planning_units su
		JOIN planning_units u ON u.id = su.unit_id
		WHERE su.sprint_id = $1
		ORDER BY su.position ASC`, sprintID)
}

func (s *PostgresPlanningStore) ListProjectUnits(ctx context.Context, projectID uuid.UUID) ([]*domain.PlanningUnit, error) {
	return s.queryUnits(ctx, `
		SELECT id, project_id, name, description, category
		FROM planning_units
		WHERE project_id = $1
		ORDER BY seq ASC`, projectID)
}

func (s *PostgresPlanningStore) queryUnits(ctx context.Context, query string, args ...any) ([]*domain.PlanningUnit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	units := make([]*domain.PlanningUnit, 0)
	for rows.Next() {
		var u domain.PlanningUnit
		if err := rows.Scan(&u.ID, &u.ProjectID, &u.Name, &u.Description, &u.Category); err != nil {
			return nil, fmt.Errorf("failed to scan planning unit row: %w", err)
		}
		units = append(units, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating planning unit rows: %w", err)
	}
	return units, nil
}

func (s *PostgresPlanningStore) ListUnitDependencies(ctx context.Context, projectID uuid.UUID) ([]domain.PlanningUnitDependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.unit_id, d.depends_on_id
		FROM planning_unit_dependencies d
		JOIN planning_units u ON u.id = d.unit_id
		WHERE d.project_id = $1
		ORDER BY u.seq ASC`, projectID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	deps := make([]domain.PlanningUnitDependency, 0)
	for rows.Next() {
		var d domain.PlanningUnitDependency
		if err := rows.Scan(&d.UnitID, &d.DependsOnID); err != nil {
			return nil, fmt.Errorf("failed to scan unit dependency row: %w", err)
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unit dependency rows: %w", err)
	}
	return deps, nil
}

// ReplaceUnitDependencies must run inside InTx.
func (s *PostgresPlanningStore) ReplaceUnitDependencies(ctx context.Context, projectID uuid.UUID, deps []domain.PlanningUnitDependency) error {
	distinct := make(map[uuid.UUID]struct{})
	for _, d := range deps {
		distinct[d.UnitID] = struct{}{}
		distinct[d.DependsOnID] = struct{}{}
	}
	if len(distinct) > 0 {
		ids := make([]uuid.UUID, 0, len(distinct))
		for id := range distinct {
			ids = append(ids, id)
		}
		var found int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM planning_units WHERE project_id = $1 AND id = ANY($2::uuid[])`,
			projectID, uuidStrings(ids)).Scan(&found)
		if err != nil {
			return MapError(err)
		}
		if found != len(ids) {
			return fmt.Errorf("%w: dependency references a planning unit outside project %s",
				store.ErrInvalidEntity, projectID)
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM planning_unit_dependencies WHERE project_id = $1`, projectID); err != nil {
		return MapError(err)
	}
	for _, d := range deps {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO planning_unit_dependencies (project_id, unit_id, depends_on_id)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`,
			projectID, d.UnitID, d.DependsOnID)
		if err != nil {
			return MapError(err)
		}
	}
	return nil
}

func (s *PostgresPlanningStore) CreateQualityConstraint(ctx context.Context, q *domain.QualityConstraint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quality_constraints (id, project_id, kind, text) VALUES ($1, $2, $3, $4)`,
		q.ID, q.ProjectID, q.Kind, q.Text)
	return MapError(err)
}

func (s *PostgresPlanningStore) ListQualityConstraints(ctx context.Context, projectID uuid.UUID) ([]*domain.QualityConstraint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, kind, text
		FROM quality_constraints
		WHERE project_id = $1
		ORDER BY seq ASC`, projectID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*domain.QualityConstraint, 0)
	for rows.Next() {
		var q domain.QualityConstraint
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.Kind, &q.Text); err != nil {
			return nil, fmt.Errorf("failed to scan quality constraint row: %w", err)
		}
		out = append(out, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quality constraint rows: %w", err)
	}
	return out, nil
}
