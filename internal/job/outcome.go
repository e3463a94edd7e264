package job

import (
	"errors"

	"github.com/phrazzld/sprint-planner-api/internal/budget"
	"github.com/phrazzld/sprint-planner-api/internal/invoker"
)

var (
	// ErrCancelled signals that a running job observed its cancellation flag.
	ErrCancelled = errors.New("job cancelled")

	// ErrUnsupportedJobType is returned for a job type with no stage sequence.
	ErrUnsupportedJobType = errors.New("unsupported job type")

	// ErrMissingSprint is returned when a sprint pipeline job has no sprint.
	ErrMissingSprint = errors.New("job has no sprint")
)

// Outcome classifies how a job run ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCancelled
	OutcomeQuotaExceeded
	OutcomeBudgetExceeded
	OutcomeInvocationFailed
	OutcomeUnsupported
	OutcomeOther
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeQuotaExceeded:
		return "quota_exceeded"
	case OutcomeBudgetExceeded:
		return "budget_exceeded"
	case OutcomeInvocationFailed:
		return "invocation_failed"
	case OutcomeUnsupported:
		return "unsupported"
	case OutcomeOther:
		return "other"
	default:
		return "unknown"
	}
}

// Classify maps the error a run ended with to its Outcome.
func Classify(err error) Outcome {
	var invErr *invoker.InvocationError
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	case errors.Is(err, budget.ErrQuotaExceeded):
		return OutcomeQuotaExceeded
	case errors.Is(err, budget.ErrBudgetExceeded):
		return OutcomeBudgetExceeded
	case errors.As(err, &invErr):
		return OutcomeInvocationFailed
	case errors.Is(err, ErrUnsupportedJobType):
		return OutcomeUnsupported
	default:
		return OutcomeOther
	}
}
