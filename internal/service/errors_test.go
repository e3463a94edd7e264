package service_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/sprint-planner-api/internal/budget"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/graph"
	"github.com/phrazzld/sprint-planner-api/internal/invoker"
	"github.com/phrazzld/sprint-planner-api/internal/service"
	"github.com/phrazzld/sprint-planner-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, service.NewError("op", "msg", nil))

	passThrough := []error{
		service.ErrConflict,
		fmt.Errorf("%w: bad", domain.ErrValidation),
		fmt.Errorf("%w: todo to done", domain.ErrInvalidTransition),
		fmt.Errorf("%w: 2 of 3", graph.ErrCycleDetected),
		fmt.Errorf("%w: project x", budget.ErrQuotaExceeded),
		&invoker.InvocationError{Intent: "task_draft", Attempts: 3, Err: invoker.ErrEmptyResponse},
	}
	for _, err := range passThrough {
		assert.Same(t, err, service.NewError("op", "msg", err))
	}

	notFound := service.NewError("get_job", "failed to load job", store.ErrJobNotFound)
	assert.ErrorIs(t, notFound, service.ErrNotFound)
	assert.ErrorIs(t, notFound, store.ErrJobNotFound)
	assert.Contains(t, notFound.Error(), "job")

	cause := errors.New("connection refused")
	wrapped := service.NewError("list_jobs", "failed to list jobs", cause)
	var svcErr *service.Error
	require.ErrorAs(t, wrapped, &svcErr)
	assert.Equal(t, "list_jobs", svcErr.Operation)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "list_jobs failed: failed to list jobs: connection refused", wrapped.Error())
}
