package generation

import (
	"context"
	"encoding/json"
	"fmt"
)

// DummyGenerator returns deterministic output for each pipeline intent so the
// whole pipeline can run without a provider account.
type DummyGenerator struct{}

var _ Generator = DummyGenerator{}

// NewDummyGenerator creates a DummyGenerator.
func NewDummyGenerator() DummyGenerator {
	return DummyGenerator{}
}

type dummyDraftTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

type dummyRefinedTask struct {
	TaskID             string   `json:"task_id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	DependsOnTaskIDs   []string `json:"depends_on_task_ids,omitempty"`
}

type dummyFineTask struct {
	ParentTaskID       string   `json:"parent_task_id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	EstimateSP         int      `json:"estimate_sp"`
}

// Generate builds a response from req.Refs.
func (DummyGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var payload any
	switch req.Intent {
	case IntentTaskDraft:
		subject := "Planning unit"
		if len(req.Refs) > 0 {
			subject = req.Refs[0]
		}
		payload = map[string][]dummyDraftTask{"tasks": {
			{Title: subject + ": design", Description: "Outline the approach for " + subject, Tags: []string{"design"}},
			{Title: subject + ": implement", Description: "Build " + subject},
		}}
	case IntentTaskRefine:
		tasks := make([]dummyRefinedTask, 0, len(req.Refs))
		for i, id := range req.Refs {
			t := dummyRefinedTask{
				TaskID:             id,
				Title:              fmt.Sprintf("Refined task %d", i+1),
				Description:        "Refined scope",
				AcceptanceCriteria: []string{"Behaviour is covered by tests", "Documentation is updated"},
			}
			if i > 0 {
				t.DependsOnTaskIDs = []string{req.Refs[i-1]}
			}
			tasks = append(tasks, t)
		}
		payload = map[string][]dummyRefinedTask{"tasks": tasks}
	case IntentTaskSplit:
		tasks := make([]dummyFineTask, 0, 2*len(req.Refs))
		for _, id := range req.Refs {
			for part := 1; part <= 2; part++ {
				tasks = append(tasks, dummyFineTask{
					ParentTaskID:       id,
					Title:              fmt.Sprintf("Deliverable %d", part),
					Description:        "Single deliverable",
					AcceptanceCriteria: []string{"Merged to main"},
					EstimateSP:         part,
				})
			}
		}
		payload = map[string][]dummyFineTask{"tasks": tasks}
	default:
		return "", fmt.Errorf("%w: dummy generator has no output for intent %q", ErrGenerationFailed, req.Intent)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return string(b), nil
}
