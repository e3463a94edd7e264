package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/sprint-planner-api/internal/budget"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/graph"
	"github.com/phrazzld/sprint-planner-api/internal/invoker"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// Common service errors. Callers check them with errors.Is.
var (
	// ErrNotFound indicates the requested job, project, sprint or work item
	// does not exist. API layer maps this to 404.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict indicates the request cannot be applied in the resource's
	// current state, such as cancelling a finished job. API layer maps this to 409.
	ErrConflict = errors.New("conflict with current state")
)

// Error wraps an unexpected failure with the operation that hit it.
type Error struct {
	// Operation is the service operation that failed, e.g. "create_job".
	Operation string
	// Message describes the failure.
	Message string
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError classifies err for callers. Not-found store errors become
// ErrNotFound, expected domain, policy and generation errors pass through unchanged, and
// anything else is wrapped in *Error.
func NewError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	var invErr *invoker.InvocationError
	switch {
	case errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, ErrConflict),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, graph.ErrCycleDetected),
		errors.Is(err, budget.ErrQuotaExceeded),
		errors.Is(err, budget.ErrBudgetExceeded),
		errors.As(err, &invErr):
		return err
	}

	return &Error{Operation: operation, Message: message, Err: err}
}
