// Package api exposes the job and planning services over HTTP. Handlers decode
// and validate requests, call a service, and translate errors to status codes
// with MapErrorToStatusCode. Error bodies never carry internal error text.
package api
