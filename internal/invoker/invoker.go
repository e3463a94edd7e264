package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/budget"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/generation"
	"github.com/phrazzld/sprint-planner-api/internal/metrics"
	"github.com/phrazzld/sprint-planner-api/internal/platform/logger"
	"github.com/phrazzld/sprint-planner-api/internal/redact"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

const quotaOrBudgetExceeded = "quota_or_budget_exceeded"

// Gate admits generation calls.
type Gate interface {
	CheckAndConsume(ctx context.Context, projectID uuid.UUID, jobID *uuid.UUID) error
}

// Recorder counts generation calls by intent and outcome.
type Recorder interface {
	GenerationCall(intent, outcome string)
}

// Call describes one generation request.
type Call struct {
	Intent generation.Intent
	Prompt string
	Refs   []string

	// ProjectID enables budget admission; nil skips it.
	ProjectID *uuid.UUID
	// JobID charges the call to a job budget.
	JobID *uuid.UUID
	// StepType enables the audit record when ProjectID is also set.
	StepType string
}

// Config bounds retries.
type Config struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Invoker runs generation calls under budget, retry and validation policy.
type Invoker struct {
	generator generation.Generator
	gate      Gate
	callLogs  store.CallLogStore
	recorder  Recorder
	validate  *validator.Validate
	config    Config
	logger    *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// Option customizes an Invoker.
type Option func(*Invoker)

// WithRecorder sets the call counter sink.
func WithRecorder(r Recorder) Option {
	return func(i *Invoker) { i.recorder = r }
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(i *Invoker) { i.sleep = sleep }
}

// WithJitter replaces the jitter source; values must lie in [-1, 1].
func WithJitter(jitter func() float64) Option {
	return func(i *Invoker) { i.jitter = jitter }
}

// New creates an Invoker. gate and callLogs may be nil to disable budget
// admission and audit records.
func New(
	generator generation.Generator,
	gate Gate,
	callLogs store.CallLogStore,
	config Config,
	log *slog.Logger,
	opts ...Option,
) *Invoker {
	if generator == nil {
		panic("generator cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	i := &Invoker{
		generator: generator,
		gate:      gate,
		callLogs:  callLogs,
		validate:  validator.New(),
		config:    config,
		logger:    log.With(slog.String("component", "invoker")),
		sleep:     sleepContext,
		jitter:    func() float64 { return rand.Float64()*2 - 1 },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke generates a response for call, decodes it into dst and validates it.
// dst must be a pointer to a struct carrying validate tags; it is only
// written on success.
//
// Budget rejections are returned as is, without retry. Every other failure is
// retried up to MaxRetries times and finally reported as *InvocationError.
func (i *Invoker) Invoke(ctx context.Context, call Call, dst any) error {
	target := reflect.ValueOf(dst)
	if target.Kind() != reflect.Pointer || target.IsNil() || target.Elem().Kind() != reflect.Struct {
		return ErrInvalidTarget
	}

	log := logger.FromContextOrDefault(ctx, i.logger).With("intent", call.Intent)
	attempts := i.config.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if call.ProjectID != nil && i.gate != nil {
			if err := i.gate.CheckAndConsume(ctx, *call.ProjectID, call.JobID); err != nil {
				if errors.Is(err, budget.ErrQuotaExceeded) || errors.Is(err, budget.ErrBudgetExceeded) {
					i.audit(ctx, call, domain.CallStatusFailed, errorPayload(quotaOrBudgetExceeded))
					i.count(call.Intent, metrics.OutcomeQuotaOrBudget)
					log.WarnContext(ctx, "generation call rejected by budget", "error", err)
					return err
				}
				lastErr = err
				if !i.backoff(ctx, attempt, attempts, log, err) {
					break
				}
				continue
			}
		}

		fresh, err := i.attempt(ctx, call, target.Type().Elem())
		if err == nil {
			target.Elem().Set(fresh)
			i.audit(ctx, call, domain.CallStatusSuccess, normalized(fresh))
			i.count(call.Intent, metrics.OutcomeSuccess)
			log.InfoContext(ctx, "generation call succeeded", "attempt", attempt+1)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		lastErr = err
		if !i.backoff(ctx, attempt, attempts, log, err) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			break
		}
	}

	i.audit(ctx, call, domain.CallStatusFailed, errorPayload(redact.Error(lastErr)))
	i.count(call.Intent, metrics.OutcomeFail)
	log.ErrorContext(ctx, "generation call failed", "attempts", attempts, "error", lastErr)
	return &InvocationError{Intent: call.Intent, Attempts: attempts, Err: lastErr}
}

// attempt performs one generate, recover, decode and validate cycle into a
// new value of type t.
func (i *Invoker) attempt(ctx context.Context, call Call, t reflect.Type) (reflect.Value, error) {
	raw, err := i.generator.Generate(ctx, generation.Request{
		Intent: call.Intent,
		Prompt: call.Prompt,
		Refs:   call.Refs,
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if strings.TrimSpace(raw) == "" {
		return reflect.Value{}, ErrEmptyResponse
	}

	body, ok := extractJSON(raw)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrMalformedJSON, truncate(raw, 200))
	}

	fresh := reflect.New(t)
	if err := json.Unmarshal([]byte(body), fresh.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if err := i.validate.Struct(fresh.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	return fresh.Elem(), nil
}

// backoff sleeps before the next attempt and reports whether one follows.
func (i *Invoker) backoff(ctx context.Context, attempt, attempts int, log *slog.Logger, cause error) bool {
	if attempt >= attempts-1 {
		return false
	}
	d := Backoff(attempt, i.config.InitialBackoff, i.config.MaxBackoff, i.jitter())
	log.WarnContext(ctx, "generation attempt failed, retrying",
		"attempt", attempt+1,
		"backoff", d,
		"error", cause)
	return i.sleep(ctx, d) == nil
}

func (i *Invoker) audit(ctx context.Context, call Call, status domain.CallStatus, response string) {
	if i.callLogs == nil || call.StepType == "" || call.ProjectID == nil {
		return
	}
	entry := domain.NewCallLog(*call.ProjectID, call.JobID, call.StepType, status, call.Prompt, response)
	if err := i.callLogs.Create(ctx, entry); err != nil {
		i.logger.ErrorContext(ctx, "failed to write call audit record",
			"step_type", call.StepType,
			"error", err)
	}
}

func (i *Invoker) count(intent generation.Intent, outcome string) {
	if i.recorder != nil {
		i.recorder.GenerationCall(string(intent), outcome)
	}
}

func normalized(v reflect.Value) string {
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return ""
	}
	return string(data)
}

func errorPayload(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
