// Package budget bounds generation calls with a persisted per-project daily
// quota and a process-local per-job budget.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

var (
	// ErrQuotaExceeded is returned when a project has used its daily calls.
	ErrQuotaExceeded = errors.New("project daily generation quota exceeded")

	// ErrBudgetExceeded is returned when a job has used its call budget.
	ErrBudgetExceeded = errors.New("job generation call budget exceeded")
)

// Limits configures a CallBudget.
type Limits struct {
	ProjectDailyMaxCalls int
	JobMaxCalls          int
}

// CallBudget admits or rejects generation calls. Job counters live in memory
// and are lost on restart.
type CallBudget struct {
	usage  store.UsageStore
	limits Limits
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	jobCalls map[uuid.UUID]int
}

// Option customizes a CallBudget.
type Option func(*CallBudget)

// WithClock sets the clock used to pick the quota day.
func WithClock(now func() time.Time) Option {
	return func(b *CallBudget) { b.now = now }
}

// WithJobCounters seeds the per-job counter map. A nil map starts empty.
func WithJobCounters(counters map[uuid.UUID]int) Option {
	return func(b *CallBudget) {
		if counters == nil {
			counters = make(map[uuid.UUID]int)
		}
		b.jobCalls = counters
	}
}

// New creates a CallBudget persisting project usage in usage.
func New(usage store.UsageStore, limits Limits, logger *slog.Logger, opts ...Option) *CallBudget {
	if usage == nil {
		panic("usage store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &CallBudget{
		usage:    usage,
		limits:   limits,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "call_budget")),
		jobCalls: make(map[uuid.UUID]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CheckAndConsume records one call for the project's current UTC day and,
// when jobID is set, for the job. The project quota is consumed first, so a
// call rejected by the job budget still counts against the day.
func (b *CallBudget) CheckAndConsume(ctx context.Context, projectID uuid.UUID, jobID *uuid.UUID) error {
	day := b.now().UTC()
	count, err := b.usage.IncrementIfBelow(ctx, projectID, day, b.limits.ProjectDailyMaxCalls)
	if errors.Is(err, store.ErrLimitReached) {
		b.logger.WarnContext(ctx, "project daily quota exhausted",
			"project_id", projectID,
			"calls", count,
			"limit", b.limits.ProjectDailyMaxCalls)
		return fmt.Errorf("%w: project %s", ErrQuotaExceeded, projectID)
	}
	if err != nil {
		return fmt.Errorf("failed to record project usage: %w", err)
	}

	if jobID == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	used := b.jobCalls[*jobID]
	if used >= b.limits.JobMaxCalls {
		b.logger.WarnContext(ctx, "job call budget exhausted",
			"job_id", *jobID,
			"calls", used,
			"limit", b.limits.JobMaxCalls)
		return fmt.Errorf("%w: job %s", ErrBudgetExceeded, *jobID)
	}
	b.jobCalls[*jobID] = used + 1
	return nil
}

// JobCalls returns the calls recorded for a job.
func (b *CallBudget) JobCalls(jobID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jobCalls[jobID]
}

// Release forgets a finished job's counter.
func (b *CallBudget) Release(jobID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.jobCalls, jobID)
}

// Reset forgets every job counter.
func (b *CallBudget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobCalls = make(map[uuid.UUID]int)
}
