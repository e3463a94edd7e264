package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/sprint-planner-api/internal/api/shared"
	"github.com/phrazzld/sprint-planner-api/internal/budget"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/graph"
	"github.com/phrazzld/sprint-planner-api/internal/invoker"
	"github.com/phrazzld/sprint-planner-api/internal/service"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// MapErrorToStatusCode maps service and domain errors to HTTP status codes
// without exposing internal error types to clients.
func MapErrorToStatusCode(err error) int {
	var invErr *invoker.InvocationError
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrConflict),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, graph.ErrCycleDetected):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, budget.ErrQuotaExceeded),
		errors.Is(err, budget.ErrBudgetExceeded):
		return http.StatusTooManyRequests

	case errors.As(err, &invErr):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err that carries
// no internal detail.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var invErr *invoker.InvocationError
	switch {
	case errors.Is(err, store.ErrJobNotFound):
		return "Job not found"
	case errors.Is(err, store.ErrWorkItemNotFound):
		return "Work item not found"
	case errors.Is(err, store.ErrProjectNotFound):
		return "Project not found"
	case errors.Is(err, store.ErrSprintNotFound):
		return "Sprint not found"
	case errors.Is(err, service.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, service.ErrConflict):
		return "Request conflicts with the current state of the resource"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Status transition not allowed"
	case errors.Is(err, graph.ErrCycleDetected):
		return "Dependencies contain a cycle"

	case errors.Is(err, domain.ErrValidation), errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	case errors.Is(err, budget.ErrQuotaExceeded):
		return "Daily generation quota exceeded"
	case errors.Is(err, budget.ErrBudgetExceeded):
		return "Generation call budget exceeded"
	case errors.As(err, &invErr):
		return "Generation failed"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError maps err to a status code and writes a sanitized error
// response. A non-empty message replaces the default message for err.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), message, err)
}

// HandleValidationError writes a 400 response naming the first invalid field.
func HandleValidationError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
}

// SanitizeValidationError turns a validator error into a message naming the
// field and the rule it broke.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Invalid %s: required field", field)
	case "oneof":
		return fmt.Sprintf("Invalid %s: must be one of %s", field, fe.Param())
	case "uuid", "uuid4":
		return fmt.Sprintf("Invalid %s: must be a UUID", field)
	default:
		return fmt.Sprintf("Invalid %s: validation failed", field)
	}
}
