package pipeline

type draftResponse struct {
	Tasks []draftTask `json:"tasks" validate:"required,min=1,dive"`
}

type draftTask struct {
	Title       string   `json:"title"       validate:"required"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

type refineResponse struct {
	Tasks []refinedTask `json:"tasks" validate:"required,min=1,dive"`
}

type refinedTask struct {
	TaskID             string   `json:"task_id"                       validate:"required"`
	Title              string   `json:"title"                         validate:"required"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"           validate:"required,min=1,dive,required"`
	DoDFocus           *string  `json:"dod_focus,omitempty"`
	NFRFocus           []string `json:"nfr_focus,omitempty"`
	DependsOnTaskIDs   []string `json:"depends_on_task_ids,omitempty"`
}

type splitResponse struct {
	Tasks []fineTask `json:"tasks" validate:"dive"`
}

type fineTask struct {
	ParentTaskID       string   `json:"parent_task_id"        validate:"required"`
	Title              string   `json:"title"                 validate:"required"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"   validate:"dive,required"`
	EstimateSP         *int     `json:"estimate_sp,omitempty" validate:"omitempty,gte=0"`
}
