// Package generation defines the boundary between the planning pipeline and
// text-generation services. Providers live under internal/platform and return
// raw model output; parsing, validation and retries happen in the invoker.
package generation
