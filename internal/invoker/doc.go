// Package invoker wraps a generation.Generator with the policy every
// generation call goes through: budget admission, bounded retries with
// jittered exponential backoff, JSON recovery, struct validation, audit
// records and call counters.
package invoker
