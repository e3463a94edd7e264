package prompt

const defaultDraft = `Produce draft tasks for one planning unit of a sprint.
Planning unit: {{.Unit.Name}}
Description: {{.Unit.Description}}
Sprint: {{.Sprint.Name}}
{{- if .Sprint.Goals}}
Sprint goals: {{join .Sprint.Goals "; "}}
{{- end}}
Detail level: {{detailHint .DetailLevel}}
Return 5-15 draft tasks as JSON: {"tasks":[{"title":"...","description":"...","tags":["..."]}]}
Return only JSON.`

const defaultRefine = `Refine the following draft tasks.
{{- range .Items}}
- ({{.ID}}) {{.Title}}: {{.Description}}
{{- end}}
Detail level: {{detailHint .DetailLevel}}
Definition of done: {{orNone .DoD}}
Non-functional requirements: {{orNone .NFR}}
For every task give 3-5 acceptance criteria, an optional dod_focus, an optional
nfr_focus list and the ids of the tasks it depends on.
Return JSON: {"tasks":[{"task_id":"...","title":"...","description":"...","acceptance_criteria":["..."],"dod_focus":"...","nfr_focus":["..."],"depends_on_task_ids":["..."]}]}
Return only JSON.`

const defaultSplit = `Split the following refined tasks into fine-grained, ready-for-development tasks.
{{- range .Items}}
- ({{.ID}}) {{.Title}}: {{.Description}}
{{- end}}
Detail level: {{detailHint .DetailLevel}}
Produce 0-N fine tasks per parent, each with 2-5 acceptance criteria and estimate_sp between 1 and 5.
Return JSON: {"tasks":[{"parent_task_id":"...","title":"...","description":"...","acceptance_criteria":["..."],"estimate_sp":3}]}
Return only JSON.`

// DefaultTemplates returns the built-in stage templates.
func DefaultTemplates() Templates {
	return Templates{Draft: defaultDraft, Refine: defaultRefine, Split: defaultSplit}
}
