// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional config file. Settings cover the
// HTTP server, persistence, the generation provider with its retry and call
// limits, and the background job worker.
package config
