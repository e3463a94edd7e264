package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/api/shared"
	"github.com/phrazzld/sprint-planner-api/internal/platform/logger"
	"github.com/phrazzld/sprint-planner-api/internal/service"
)

// JobHandler handles job HTTP requests.
type JobHandler struct {
	jobs   service.JobService
	logger *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(jobs service.JobService, log *slog.Logger) *JobHandler {
	if jobs == nil {
		panic("job service cannot be nil for JobHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &JobHandler{
		jobs:   jobs,
		logger: log.With(slog.String("component", "job_handler")),
	}
}

// CreateTaskPipelineJob handles POST /api/jobs/task-pipeline.
// The job runs asynchronously, so it answers 202 Accepted.
func (h *JobHandler) CreateTaskPipelineJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		HandleValidationError(w, r, err)
		return
	}

	job, err := h.jobs.CreateJob(r.Context(),
		uuid.MustParse(req.ProjectID), uuid.MustParse(req.SprintID), req.Payload)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Debug("job accepted", "job_id", job.ID)
	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// ListProjectJobs handles GET /api/projects/{id}/jobs.
func (h *JobHandler) ListProjectJobs(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	limit, err := shared.QueryInt(r, "limit", defaultPageSize)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	offset, err := shared.QueryInt(r, "offset", 0)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	limit = clampPageSize(limit)

	jobs, err := h.jobs.ListProjectJobs(r.Context(), projectID, limit, offset)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs)), Limit: limit, Offset: offset}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, jobToResponse(j))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// CancelJob handles POST /api/jobs/{id}/cancel.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	job, err := h.jobs.CancelJob(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// RunNextJob handles POST /api/jobs/run-next. It answers 204 when the queue is empty.
func (h *JobHandler) RunNextJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.RunNextJob(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}
