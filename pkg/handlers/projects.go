package handlers

import (
	"net/http"

	"ecdar-gateway/pkg/config"
	"ecdar-gateway/pkg/models"
	"ecdar-gateway/pkg/services"
	"ecdar-gateway/pkg/utils"
)

type ProjectHandler struct {
	config   *config.Config
	projects *services.ProjectService
	queries  *services.QueryService
	access   *services.AccessService
}

func NewProjectHandler(cfg *config.Config, projects *services.ProjectService, queries *services.QueryService, access *services.AccessService) *ProjectHandler {
	return &ProjectHandler{config: cfg, projects: projects, queries: queries, access: access}
}

// GET /api/projects
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	projects, err := h.projects.ListProjects(r.Context(), userID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"projects": projects,
		"count":    len(projects),
	})
}

// POST /api/projects
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.CreateProjectRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}

	project, err := h.projects.CreateProject(r.Context(), userID, req.Name, req.ComponentsInfo)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteCreatedResponse(w, project)
}

// GET /api/projects/{id}
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	projectID, err := parseID(r, "id")
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	project, err := h.projects.GetProject(r.Context(), userID, projectID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteSuccessResponse(w, project)
}

// PUT /api/projects/{id}
func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	projectID, err := parseID(r, "id")
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	var update models.ProjectUpdate
	if err := utils.ParseJSONBody(r, &update); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	update.ID = projectID

	project, err := h.projects.UpdateProject(r.Context(), userID, update)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteSuccessResponse(w, project)
}

// DELETE /api/projects/{id}
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	projectID, err := parseID(r, "id")
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	project, err := h.projects.DeleteProject(r.Context(), userID, projectID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteSuccessResponse(w, project)
}

// GET /api/projects/{id}/queries
func (h *ProjectHandler) ListQueries(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	projectID, err := parseID(r, "id")
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	queries, err := h.queries.ListQueries(r.Context(), userID, projectID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"queries": queries,
		"count":   len(queries),
	})
}

// GET /api/projects/{id}/access
func (h *ProjectHandler) ListAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	projectID, err := parseID(r, "id")
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	access, err := h.access.ListAccess(r.Context(), userID, projectID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"access": access,
		"count":  len(access),
	})
}
