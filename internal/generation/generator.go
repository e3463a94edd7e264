package generation

import "context"

// Intent names the pipeline pass a generation call serves. It doubles as the
// audit step type and the metrics label.
type Intent string

// Pipeline intents
const (
	IntentTaskDraft  Intent = "task_pass1"
	IntentTaskRefine Intent = "task_pass2"
	IntentTaskSplit  Intent = "task_pass3"
)

// Request is a single generation call.
type Request struct {
	Intent Intent
	Prompt string

	// Refs lists the subjects the prompt is about: planning unit names for
	// draft calls, work item IDs for refine and split calls.
	Refs []string
}

// Generator produces raw text, expected to be a JSON document, for a prompt.
// Implementations make exactly one upstream call per Generate.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
