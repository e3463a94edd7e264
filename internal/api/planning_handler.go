package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/sprint-planner-api/internal/api/shared"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/service"
)

// PlanningHandler handles sprint work item and planning unit requests.
type PlanningHandler struct {
	planning service.PlanningService
	logger   *slog.Logger
}

// NewPlanningHandler creates a PlanningHandler.
func NewPlanningHandler(planning service.PlanningService, log *slog.Logger) *PlanningHandler {
	if planning == nil {
		panic("planning service cannot be nil for PlanningHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &PlanningHandler{
		planning: planning,
		logger:   log.With(slog.String("component", "planning_handler")),
	}
}

// GenerateDraft handles POST /api/sprints/{id}/work-items/draft.
func (h *PlanningHandler) GenerateDraft(w http.ResponseWriter, r *http.Request) {
	sprintID, ok := pathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	result, err := h.planning.GenerateDraft(r.Context(), sprintID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, draftToResponse(result))
}

// Refine handles POST /api/sprints/{id}/work-items/refine.
func (h *PlanningHandler) Refine(w http.ResponseWriter, r *http.Request) {
	sprintID, ok := pathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	result, err := h.planning.Refine(r.Context(), sprintID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, refineToResponse(result))
}

// Split handles POST /api/sprints/{id}/work-items/split.
func (h *PlanningHandler) Split(w http.ResponseWriter, r *http.Request) {
	sprintID, ok := pathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	result, err := h.planning.Split(r.Context(), sprintID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, splitToResponse(result))
}

// ListWorkItems handles GET /api/sprints/{id}/work-items.
func (h *PlanningHandler) ListWorkItems(w http.ResponseWriter, r *http.Request) {
	sprintID, ok := pathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	readyOnly, err := shared.QueryBool(r, "ready_for_dev_only")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	limit, err := shared.QueryInt(r, "limit", 0)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	offset, err := shared.QueryInt(r, "offset", 0)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	granularity := domain.Granularity(r.URL.Query().Get("granularity"))
	if granularity != "" && granularity.Round() == 0 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid granularity")
		return
	}

	items, err := h.planning.ListWorkItems(r.Context(), sprintID, service.WorkItemQuery{
		ReadyForDevOnly: readyOnly,
		Granularity:     granularity,
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, WorkItemListResponse{Items: workItemsToResponse(items)})
}

// OrderWorkItems handles GET /api/sprints/{id}/work-items/order.
func (h *PlanningHandler) OrderWorkItems(w http.ResponseWriter, r *http.Request) {
	sprintID, ok := pathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	order, err := h.planning.OrderWorkItems(r.Context(), sprintID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, WorkItemOrderResponse{ItemIDs: order})
}

// ChangeWorkItemStatus handles PATCH /api/work-items/{id}/status.
func (h *PlanningHandler) ChangeWorkItemStatus(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	var req ChangeStatusRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		HandleValidationError(w, r, err)
		return
	}

	item, err := h.planning.ChangeWorkItemStatus(r.Context(), itemID, domain.WorkItemStatus(req.Status))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, workItemToResponse(item))
}

// OrderPlanningUnits handles GET /api/projects/{id}/planning-units/order.
func (h *PlanningHandler) OrderPlanningUnits(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	units, err := h.planning.OrderPlanningUnits(r.Context(), projectID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	resp := UnitOrderResponse{Units: make([]PlanningUnitResponse, 0, len(units))}
	for _, u := range units {
		resp.Units = append(resp.Units, PlanningUnitResponse{
			ID:          u.ID,
			Name:        u.Name,
			Description: u.Description,
			Category:    string(u.Category),
		})
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// DeriveUnitDependencies handles POST /api/projects/{id}/planning-units/dependencies.
func (h *PlanningHandler) DeriveUnitDependencies(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	deps, err := h.planning.DeriveUnitDependencies(r.Context(), projectID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, UnitDependenciesResponse{Dependencies: deps})
}
