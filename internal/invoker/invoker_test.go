package invoker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/budget"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/generation"
	"github.com/phrazzld/sprint-planner-api/internal/invoker"
	"github.com/phrazzld/sprint-planner-api/internal/platform/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskList struct {
	Tasks []struct {
		Title string `json:"title" validate:"required"`
	} `json:"tasks" validate:"required,min=1,dive"`
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) GenerationCall(intent, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[intent+"/"+outcome]++
}

func (r *countingRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

// scripted returns the responses in order, repeating the last one.
func scripted(responses ...string) (generation.GeneratorFunc, *int) {
	calls := 0
	return func(context.Context, generation.Request) (string, error) {
		i := calls
		if i >= len(responses) {
			i = len(responses) - 1
		}
		calls++
		return responses[i], nil
	}, &calls
}

type harness struct {
	store    *memory.Store
	budget   *budget.CallBudget
	recorder *countingRecorder
	sleeps   []time.Duration
}

func newInvoker(t *testing.T, gen generation.Generator, limits budget.Limits) (*invoker.Invoker, *harness) {
	t.Helper()
	h := &harness{store: memory.NewStore(), recorder: &countingRecorder{}}
	h.budget = budget.New(h.store.Usage(), limits, nil)
	inv := invoker.New(gen, h.budget, h.store.CallLogs(), invoker.Config{
		MaxRetries:     2,
		InitialBackoff: 300 * time.Millisecond,
		MaxBackoff:     3 * time.Second,
	}, nil,
		invoker.WithRecorder(h.recorder),
		invoker.WithJitter(func() float64 { return 0 }),
		invoker.WithSleep(func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
	)
	return inv, h
}

var roomy = budget.Limits{ProjectDailyMaxCalls: 100, JobMaxCalls: 100}

func TestInvokeRecoversFencedJSON(t *testing.T) {
	t.Parallel()
	gen, calls := scripted("Here you go:\n```json\n{\"tasks\":[{\"title\":\"Schema\"}]}\n```\nDone.")
	inv, h := newInvoker(t, gen, roomy)
	project := uuid.New()

	var out taskList
	err := inv.Invoke(context.Background(), invoker.Call{
		Intent:    generation.IntentTaskDraft,
		Prompt:    "draft",
		ProjectID: &project,
		StepType:  "task_pass1",
	}, &out)
	require.NoError(t, err)
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, "Schema", out.Tasks[0].Title)
	assert.Equal(t, 1, *calls)
	assert.Empty(t, h.sleeps)
	assert.Equal(t, 1, h.recorder.get("task_pass1/success"))

	logs, err := h.store.CallLogs().ListByProject(context.Background(), project, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.CallStatusSuccess, logs[0].Status)
	assert.JSONEq(t, `{"tasks":[{"title":"Schema"}]}`, logs[0].Response)
}

func TestInvokeRetriesWithBackoff(t *testing.T) {
	t.Parallel()
	gen, calls := scripted("   ", "not json at all", `{"tasks":[{"title":"ok"}]}`)
	inv, h := newInvoker(t, gen, roomy)
	project := uuid.New()

	var out taskList
	require.NoError(t, inv.Invoke(context.Background(), invoker.Call{
		Intent: generation.IntentTaskRefine, Prompt: "p", ProjectID: &project,
	}, &out))

	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}, h.sleeps)

	used, err := h.store.Usage().GetUsage(context.Background(), project, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, used, "every attempt consumes quota")

	logs, err := h.store.CallLogs().ListByProject(context.Background(), project, 10)
	require.NoError(t, err)
	assert.Empty(t, logs, "no audit record without a step type")
}

func TestInvokeExhaustsAttempts(t *testing.T) {
	t.Parallel()
	gen, calls := scripted(`{"tasks":[]}`)
	inv, h := newInvoker(t, gen, roomy)
	project := uuid.New()

	out := taskList{}
	err := inv.Invoke(context.Background(), invoker.Call{
		Intent: generation.IntentTaskSplit, Prompt: "p", ProjectID: &project, StepType: "task_pass3",
	}, &out)

	var invErr *invoker.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, 3, invErr.Attempts)
	assert.ErrorIs(t, err, invoker.ErrInvalidShape)
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}, h.sleeps,
		"no sleep after the last attempt")
	assert.Nil(t, out.Tasks, "destination untouched on failure")
	assert.Equal(t, 1, h.recorder.get("task_pass3/fail"))

	logs, err := h.store.CallLogs().ListByProject(context.Background(), project, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.CallStatusFailed, logs[0].Status)
	assert.Contains(t, logs[0].Response, "does not match the expected shape")
}

func TestInvokeQuotaExceededIsNotRetried(t *testing.T) {
	t.Parallel()
	gen, calls := scripted(`{"tasks":[{"title":"x"}]}`)
	inv, h := newInvoker(t, gen, budget.Limits{ProjectDailyMaxCalls: 0, JobMaxCalls: 10})
	project := uuid.New()

	var out taskList
	err := inv.Invoke(context.Background(), invoker.Call{
		Intent: generation.IntentTaskDraft, Prompt: "p", ProjectID: &project, StepType: "task_pass1",
	}, &out)

	assert.ErrorIs(t, err, budget.ErrQuotaExceeded)
	var invErr *invoker.InvocationError
	assert.False(t, errors.As(err, &invErr))
	assert.Zero(t, *calls)
	assert.Empty(t, h.sleeps)
	assert.Equal(t, 1, h.recorder.get("task_pass1/quota_or_budget"))

	logs, err := h.store.CallLogs().ListByProject(context.Background(), project, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.JSONEq(t, `{"error":"quota_or_budget_exceeded"}`, logs[0].Response)
}

func TestInvokeChecksJobBudgetOnEveryAttempt(t *testing.T) {
	t.Parallel()
	gen, calls := scripted("garbage")
	inv, h := newInvoker(t, gen, budget.Limits{ProjectDailyMaxCalls: 100, JobMaxCalls: 2})
	project, job := uuid.New(), uuid.New()

	var out taskList
	err := inv.Invoke(context.Background(), invoker.Call{
		Intent: generation.IntentTaskDraft, Prompt: "p", ProjectID: &project, JobID: &job,
	}, &out)

	assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
	assert.Equal(t, 2, *calls)
	assert.Equal(t, 2, h.budget.JobCalls(job))
}

func TestInvokeWithoutProjectSkipsBudget(t *testing.T) {
	t.Parallel()
	gen, _ := scripted(`{"tasks":[{"title":"x"}]}`)
	inv, _ := newInvoker(t, gen, budget.Limits{})

	var out taskList
	assert.NoError(t, inv.Invoke(context.Background(), invoker.Call{Intent: generation.IntentTaskDraft, Prompt: "p"}, &out))
}

func TestInvokeStopsWhenContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	gen := generation.GeneratorFunc(func(context.Context, generation.Request) (string, error) {
		cancel()
		return "", errors.New("interrupted")
	})
	inv := invoker.New(gen, nil, nil, invoker.Config{MaxRetries: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour}, nil)

	var out taskList
	err := inv.Invoke(ctx, invoker.Call{Intent: generation.IntentTaskDraft, Prompt: "p"}, &out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvokeRejectsInvalidTarget(t *testing.T) {
	t.Parallel()
	gen, calls := scripted("{}")
	inv, _ := newInvoker(t, gen, roomy)

	var m map[string]any
	assert.ErrorIs(t, inv.Invoke(context.Background(), invoker.Call{Prompt: "p"}, m), invoker.ErrInvalidTarget)
	assert.ErrorIs(t, inv.Invoke(context.Background(), invoker.Call{Prompt: "p"}, &m), invoker.ErrInvalidTarget)
	var nilPtr *taskList
	assert.ErrorIs(t, inv.Invoke(context.Background(), invoker.Call{Prompt: "p"}, nilPtr), invoker.ErrInvalidTarget)
	assert.Zero(t, *calls)
}
