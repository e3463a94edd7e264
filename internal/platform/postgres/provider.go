package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// Provider implements store.Provider on a *sql.DB. Stores obtained from a
// transactional Provider share its *sql.Tx.
type Provider struct {
	db     *sql.DB
	q      store.DBTX
	inTx   bool
	logger *slog.Logger
}

var _ store.Provider = (*Provider)(nil)

// NewProvider creates a Provider whose stores run on db.
func NewProvider(db *sql.DB, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{db: db, q: db, logger: logger}
}

// NewTxProvider binds a Provider to an open transaction owned by the caller.
// InTx on it joins tx and never commits.
func NewTxProvider(tx *sql.Tx, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{q: tx, inTx: true, logger: logger}
}

func (p *Provider) Jobs() store.JobStore { return NewPostgresJobStore(p.q, p.logger) }

func (p *Provider) WorkItems() store.WorkItemStore { return NewPostgresWorkItemStore(p.q, p.logger) }

func (p *Provider) Planning() store.PlanningStore { return NewPostgresPlanningStore(p.q, p.logger) }

func (p *Provider) Usage() store.UsageStore { return NewPostgresUsageStore(p.q, p.logger) }

func (p *Provider) CallLogs() store.CallLogStore { return NewPostgresCallLogStore(p.q) }

// InTx runs fn in a new transaction, or in the current one when p is already transactional.
func (p *Provider) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Provider) error) error {
	if p.inTx {
		return fn(ctx, p)
	}
	return store.RunInTransaction(ctx, p.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &Provider{q: tx, inTx: true, logger: p.logger})
	})
}
