// Package service contains the application use cases: creating, inspecting,
// cancelling and running jobs, and the synchronous planning operations
// (generation passes, work item listing and status changes, dependency
// ordering). Services receive store, pipeline and event dependencies through
// constructor injection and never depend on a concrete store.
//
// Service methods return sentinel errors for expected conditions
// (ErrNotFound, ErrConflict, domain.ErrValidation, domain.ErrInvalidTransition)
// and wrap anything unexpected in *Error. The API layer maps them to HTTP
// status codes.
package service
