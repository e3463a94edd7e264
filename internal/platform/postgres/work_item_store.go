package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/platform/logger"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

const workItemColumns = `id, project_id, sprint_id, planning_unit_id, title, description,
	status, granularity, refinement_round, order_index, acceptance_criteria, tags,
	estimate_points, dod_focus, nfr_focus, parent_id, deleted_at, created_at, updated_at`

// PostgresWorkItemStore implements store.WorkItemStore. Superseded rows keep
// their data and are filtered by deleted_at.
type PostgresWorkItemStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.WorkItemStore = (*PostgresWorkItemStore)(nil)

// NewPostgresWorkItemStore creates a work item store over a connection or transaction.
func NewPostgresWorkItemStore(db store.DBTX, logger *slog.Logger) *PostgresWorkItemStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresWorkItemStore{
		db:     db,
		logger: logger.With(slog.String("component", "work_item_store")),
	}
}

// CreateBatch inserts items one statement at a time; run it inside InTx to
// make the batch atomic.
func (s *PostgresWorkItemStore) CreateBatch(ctx context.Context, items []*domain.WorkItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for _, it := range items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	query := `
		INSERT INTO work_items (id, project_id, sprint_id, planning_unit_id, title, description,
			status, granularity, refinement_round, order_index, acceptance_criteria, tags,
			estimate_points, dod_focus, nfr_focus, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	for _, it := range items {
		lists, err := encodeItemLists(it)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, query,
			it.ID, it.ProjectID, it.SprintID, nullUUID(it.PlanningUnitID),
			it.Title, it.Description, it.Status, it.Granularity,
			it.RefinementRound, it.OrderIndex,
			lists[0], lists[1], it.EstimatePoints, it.DoDFocus, lists[2],
			nullUUID(it.ParentID), it.CreatedAt, it.UpdatedAt,
		)
		if err != nil {
			log.Error("failed to insert work item", "work_item_id", it.ID, "error", err)
			return MapError(err)
		}
	}

	log.Debug("work items created", "count", len(items))
	return nil
}

func (s *PostgresWorkItemStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE id = $1 AND deleted_at IS NULL`
	item, err := scanWorkItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrWorkItemNotFound
		}
		return nil, MapError(err)
	}
	return item, nil
}

func (s *PostgresWorkItemStore) Update(ctx context.Context, item *domain.WorkItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	lists, err := encodeItemLists(item)
	if err != nil {
		return err
	}

	query := `
		UPDATE work_items
		SET title = $2, description = $3, status = $4, granularity = $5,
			refinement_round = $6, order_index = $7, acceptance_criteria = $8,
			tags = $9, estimate_points = $10, dod_focus = $11, nfr_focus = $12,
			parent_id = $13, updated_at = $14
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query,
		item.ID, item.Title, item.Description, item.Status, item.Granularity,
		item.RefinementRound, item.OrderIndex, lists[0], lists[1],
		item.EstimatePoints, item.DoDFocus, lists[2], nullUUID(item.ParentID),
		item.UpdatedAt,
	)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrWorkItemNotFound)
}

func (s *PostgresWorkItemStore) ListBySprint(ctx context.Context, sprintID uuid.UUID, filter store.WorkItemFilter) ([]*domain.WorkItem, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + workItemColumns + ` FROM work_items WHERE sprint_id = $1 AND deleted_at IS NULL`)
	args := []any{sprintID}

	if filter.Granularity != "" {
		args = append(args, filter.Granularity)
		fmt.Fprintf(&b, " AND granularity = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		fmt.Fprintf(&b, " AND status = $%d", len(args))
	}
	args = append(args, limitOrAll(filter.Limit), filter.Offset)
	fmt.Fprintf(&b, " ORDER BY order_index ASC, created_at ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]*domain.WorkItem, 0)
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating work item rows: %w", err)
	}
	return items, nil
}

func (s *PostgresWorkItemStore) MaxOrderIndex(ctx context.Context, sprintID uuid.UUID) (int, error) {
	var maxIndex int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(order_index), -1) FROM work_items WHERE sprint_id = $1`,
		sprintID).Scan(&maxIndex)
	if err != nil {
		return 0, MapError(err)
	}
	return maxIndex, nil
}

// SupersedeByGranularity marks items and drops their edges in one statement.
func (s *PostgresWorkItemStore) SupersedeByGranularity(ctx context.Context, sprintID uuid.UUID, g domain.Granularity, t time.Time) (int, error) {
	query := `
		WITH superseded AS (
			UPDATE work_items SET deleted_at = $3, updated_at = $3
			WHERE sprint_id = $1 AND granularity = $2 AND deleted_at IS NULL
			RETURNING id
		), removed AS (
			DELETE FROM work_item_dependencies d
			USING superseded s
			WHERE d.item_id = s.id OR d.depends_on_id = s.id
		)
		SELECT COUNT(*) FROM superseded
	`
	var n int
	if err := s.db.QueryRowContext(ctx, query, sprintID, g, t).Scan(&n); err != nil {
		s.logger.Error("failed to supersede work items",
			"sprint_id", sprintID, "granularity", g, "error", err)
		return 0, MapError(err)
	}
	return n, nil
}

// ReplaceDependencies must run inside InTx for the delete and inserts to be atomic.
func (s *PostgresWorkItemStore) ReplaceDependencies(ctx context.Context, itemIDs []uuid.UUID, edges []domain.DependencyEdge) error {
	for _, e := range edges {
		if e.ItemID == e.DependsOnID {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrSelfDependency)
		}
	}

	if len(itemIDs) > 0 {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM work_item_dependencies WHERE item_id = ANY($1::uuid[])`,
			uuidStrings(itemIDs))
		if err != nil {
			return MapError(err)
		}
	}

	for _, e := range edges {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO work_item_dependencies (item_id, depends_on_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			e.ItemID, e.DependsOnID)
		if err != nil {
			return MapError(err)
		}
	}
	return nil
}

func (s *PostgresWorkItemStore) ListDependencies(ctx context.Context, sprintID uuid.UUID) ([]domain.DependencyEdge, error) {
	query := `
		SELECT d.item_id, d.depends_on_id
		FROM work_item_dependencies d
		JOIN work_items i ON i.id = d.item_id
		JOIN work_items p ON p.id = d.depends_on_id
		WHERE i.sprint_id = $1 AND p.sprint_id = $1
			AND i.deleted_at IS NULL AND p.deleted_at IS NULL
		ORDER BY i.order_index ASC, p.order_index ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sprintID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	edges := make([]domain.DependencyEdge, 0)
	for rows.Next() {
		var e domain.DependencyEdge
		if err := rows.Scan(&e.ItemID, &e.DependsOnID); err != nil {
			return nil, fmt.Errorf("failed to scan dependency row: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependency rows: %w", err)
	}
	return edges, nil
}

// encodeItemLists returns acceptance criteria, tags and NFR focus as JSON.
func encodeItemLists(it *domain.WorkItem) ([3]string, error) {
	var out [3]string
	for i, values := range [][]string{it.AcceptanceCriteria, it.Tags, it.NFRFocus} {
		encoded, err := jsonList(values)
		if err != nil {
			return out, fmt.Errorf("%w: work item %s: %v", store.ErrInvalidEntity, it.ID, err)
		}
		out[i] = encoded
	}
	return out, nil
}

func scanWorkItem(row rowScanner) (*domain.WorkItem, error) {
	var (
		item      domain.WorkItem
		unitID    uuid.NullUUID
		parentID  uuid.NullUUID
		criteria  []byte
		tags      []byte
		nfr       []byte
		estimate  sql.NullInt64
		dodFocus  sql.NullString
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.ProjectID, &item.SprintID, &unitID, &item.Title, &item.Description,
		&item.Status, &item.Granularity, &item.RefinementRound, &item.OrderIndex,
		&criteria, &tags, &estimate, &dodFocus, &nfr, &parentID, &deletedAt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if unitID.Valid {
		id := unitID.UUID
		item.PlanningUnitID = &id
	}
	if parentID.Valid {
		id := parentID.UUID
		item.ParentID = &id
	}
	if estimate.Valid {
		v := int(estimate.Int64)
		item.EstimatePoints = &v
	}
	if dodFocus.Valid {
		v := dodFocus.String
		item.DoDFocus = &v
	}
	item.DeletedAt = timePtr(deletedAt)

	if item.AcceptanceCriteria, err = decodeList(criteria); err != nil {
		return nil, err
	}
	if item.AcceptanceCriteria == nil {
		item.AcceptanceCriteria = []string{}
	}
	if item.Tags, err = decodeList(tags); err != nil {
		return nil, err
	}
	if item.NFRFocus, err = decodeList(nfr); err != nil {
		return nil, err
	}
	return &item, nil
}
