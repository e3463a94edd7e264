package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a status change is not allowed
	// by the owning state machine. The entity is left unchanged.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrProgressRegression is returned when a running job's progress
	// would move backwards.
	ErrProgressRegression = errors.New("progress cannot decrease")

	// ErrSelfDependency is returned when a dependency edge points at its own source.
	ErrSelfDependency = errors.New("item cannot depend on itself")

	// ErrInvalidGranularity is returned for an unknown granularity or a
	// granularity that does not match the refinement round.
	ErrInvalidGranularity = errors.New("invalid granularity")
)
