package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/events"
	"github.com/phrazzld/sprint-planner-api/internal/platform/memory"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEventEmitter is a mock implementation of events.EventEmitter.
type MockEventEmitter struct {
	mock.Mock
}

func (m *MockEventEmitter) EmitEvent(ctx context.Context, event *events.JobEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// mockPoller implements service.JobPoller.
type mockPoller struct {
	PollFn func(ctx context.Context) (*domain.Job, error)
}

func (m *mockPoller) Poll(ctx context.Context) (*domain.Job, error) {
	if m.PollFn != nil {
		return m.PollFn(ctx)
	}
	return nil, nil
}

var errEmitFailed = errors.New("emit failed")

type planningFixture struct {
	store   *memory.Store
	project *domain.Project
	sprint  *domain.Sprint
	units   []*domain.PlanningUnit
}

// newPlanningFixture seeds a project with one unit per category and a sprint
// holding all of them.
func newPlanningFixture(t *testing.T) *planningFixture {
	t.Helper()
	ctx := context.Background()
	st := memory.NewStore()

	project := &domain.Project{ID: uuid.New(), Name: "Planner", DetailLevel: domain.DetailLevelNormal, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.Planning().CreateProject(ctx, project))

	f := &planningFixture{store: st, project: project}
	for _, u := range []struct {
		name     string
		category domain.UnitCategory
	}{
		{"Quality gates", domain.UnitCategoryQuality},
		{"Checkout", domain.UnitCategoryFeature},
		{"Platform", domain.UnitCategoryPlatform},
	} {
		unit := &domain.PlanningUnit{ID: uuid.New(), ProjectID: project.ID, Name: u.name, Category: u.category}
		require.NoError(t, st.Planning().CreatePlanningUnit(ctx, unit))
		f.units = append(f.units, unit)
	}

	f.sprint = &domain.Sprint{ID: uuid.New(), ProjectID: project.ID, Index: 1, Name: "Sprint 1"}
	for _, u := range f.units {
		f.sprint.PlanningUnitIDs = append(f.sprint.PlanningUnitIDs, u.ID)
	}
	require.NoError(t, st.Planning().CreateSprint(ctx, f.sprint))
	return f
}
