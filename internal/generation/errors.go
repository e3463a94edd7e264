package generation

import "errors"

// Common errors returned by generators
var (
	// ErrGenerationFailed is returned when a provider call fails for any general reason
	ErrGenerationFailed = errors.New("generation call failed")

	// ErrInvalidResponse is returned when the provider returns no usable text
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the provider blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during generation")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)
