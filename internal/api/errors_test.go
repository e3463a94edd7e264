package api_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/phrazzld/sprint-planner-api/internal/api"
	"github.com/phrazzld/sprint-planner-api/internal/api/shared"
	"github.com/phrazzld/sprint-planner-api/internal/budget"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/graph"
	"github.com/phrazzld/sprint-planner-api/internal/invoker"
	"github.com/phrazzld/sprint-planner-api/internal/service"
	"github.com/phrazzld/sprint-planner-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"job not found", fmt.Errorf("%w: %w", service.ErrNotFound, store.ErrJobNotFound), http.StatusNotFound, "Job not found"},
		{"sprint not found", store.ErrSprintNotFound, http.StatusNotFound, "Sprint not found"},
		{"conflict", fmt.Errorf("%w: job is completed", service.ErrConflict), http.StatusConflict, "Request conflicts with the current state of the resource"},
		{"invalid transition", domain.ErrInvalidTransition, http.StatusConflict, "Status transition not allowed"},
		{"cycle", graph.ErrCycleDetected, http.StatusConflict, "Dependencies contain a cycle"},
		{"validation", fmt.Errorf("%w: bad sprint", domain.ErrValidation), http.StatusBadRequest, "Invalid request data"},
		{"quota", fmt.Errorf("%w: project x", budget.ErrQuotaExceeded), http.StatusTooManyRequests, "Daily generation quota exceeded"},
		{"budget", budget.ErrBudgetExceeded, http.StatusTooManyRequests, "Generation call budget exceeded"},
		{"generation", &invoker.InvocationError{Intent: "task_draft", Attempts: 3, Err: invoker.ErrMalformedJSON}, http.StatusBadGateway, "Generation failed"},
		{"unknown", errors.New("password=hunter22 leaked"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.status, api.MapErrorToStatusCode(tc.err))
			assert.Equal(t, tc.message, api.GetSafeErrorMessage(tc.err))
		})
	}

	assert.Equal(t, "An unexpected error occurred", api.GetSafeErrorMessage(nil))
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := shared.ValidateRequest(api.ChangeStatusRequest{Status: "archived"})
	assert.Equal(t, "Invalid status: must be one of todo in_progress done blocked ready_for_dev stale",
		api.SanitizeValidationError(err))

	err = shared.ValidateRequest(api.CreateJobRequest{SprintID: "not-a-uuid"})
	assert.Equal(t, "Invalid project_id: required field", api.SanitizeValidationError(err))

	assert.Equal(t, "Validation error", api.SanitizeValidationError(errors.New("other")))
}
