package store

import "context"

// Provider groups the stores of one backend.
type Provider interface {
	Jobs() JobStore
	WorkItems() WorkItemStore
	Planning() PlanningStore
	Usage() UsageStore
	CallLogs() CallLogStore

	// InTx runs fn with a Provider whose stores share one transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	// Calling InTx on a transactional Provider joins the open transaction.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Provider) error) error
}
