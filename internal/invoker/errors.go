package invoker

import (
	"errors"
	"fmt"

	"github.com/phrazzld/sprint-planner-api/internal/generation"
)

var (
	// ErrEmptyResponse is returned for a blank generator response.
	ErrEmptyResponse = errors.New("generator returned an empty response")

	// ErrMalformedJSON is returned when no JSON object can be recovered.
	ErrMalformedJSON = errors.New("response is not valid JSON")

	// ErrInvalidShape is returned when decoded output fails validation.
	ErrInvalidShape = errors.New("response does not match the expected shape")

	// ErrInvalidTarget is returned when the destination is not a non-nil pointer.
	ErrInvalidTarget = errors.New("destination must be a non-nil struct pointer")
)

// InvocationError reports a call that failed on every attempt.
type InvocationError struct {
	Intent   generation.Intent
	Attempts int
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("generation call %s failed after %d attempts: %v", e.Intent, e.Attempts, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
