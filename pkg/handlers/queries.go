package handlers

import (
	"net/http"
	"strconv"

	"ecdar-gateway/pkg/apperr"
	"ecdar-gateway/pkg/config"
	"ecdar-gateway/pkg/models"
	"ecdar-gateway/pkg/services"
	"ecdar-gateway/pkg/utils"
)

type QueryHandler struct {
	config  *config.Config
	queries *services.QueryService
}

func NewQueryHandler(cfg *config.Config, queries *services.QueryService) *QueryHandler {
	return &QueryHandler{config: cfg, queries: queries}
}

// POST /api/queries
func (h *QueryHandler) CreateQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.CreateQueryRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if req.ProjectID <= 0 {
		utils.WriteBadRequestResponse(w, "project_id is required")
		return
	}

	query, err := h.queries.CreateQuery(r.Context(), userID, req.ProjectID, req.String)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteCreatedResponse(w, query)
}

// PUT /api/queries/{id}
func (h *QueryHandler) UpdateQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	queryID, err := parseID(r, "id")
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	var update models.QueryUpdate
	if err := utils.ParseJSONBody(r, &update); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	update.ID = queryID

	query, err := h.queries.UpdateQuery(r.Context(), userID, update)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteSuccessResponse(w, query)
}

// DELETE /api/queries/{id}
func (h *QueryHandler) DeleteQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	queryID, err := parseID(r, "id")
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	query, err := h.queries.DeleteQuery(r.Context(), userID, queryID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteSuccessResponse(w, query)
}

// POST /api/queries/{id}/send
// The project comes from the body ({"project_id": N}) or ?project_id=N.
func (h *QueryHandler) SendQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	queryID, err := parseID(r, "id")
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	projectID, err := sendProjectID(r)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	result, err := h.queries.SendQuery(r.Context(), userID, models.SendQueryRequest{ID: queryID, ProjectID: projectID})
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteSuccessResponse(w, result)
}

func sendProjectID(r *http.Request) (int64, error) {
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return 0, apperr.Invalid("project_id must be a positive integer")
		}
		return id, nil
	}

	if r.ContentLength == 0 {
		return 0, apperr.Invalid("project_id is required")
	}
	var body struct {
		ProjectID int64 `json:"project_id"`
	}
	if err := utils.ParseJSONBody(r, &body); err != nil {
		return 0, err
	}
	if body.ProjectID <= 0 {
		return 0, apperr.Invalid("project_id is required")
	}
	return body.ProjectID, nil
}
