package handlers

import (
	"net/http"

	"ecdar-gateway/pkg/config"
	"ecdar-gateway/pkg/models"
	"ecdar-gateway/pkg/services"
	"ecdar-gateway/pkg/utils"
)

type AccessHandler struct {
	config *config.Config
	access *services.AccessService
}

func NewAccessHandler(cfg *config.Config, access *services.AccessService) *AccessHandler {
	return &AccessHandler{config: cfg, access: access}
}

// POST /api/access
func (h *AccessHandler) CreateAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.CreateAccessRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteAppError(w, err)
		return
	}

	access, err := h.access.CreateAccess(r.Context(), userID, req)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteCreatedResponse(w, access)
}

// PUT /api/access/{id}
func (h *AccessHandler) UpdateAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	accessID, err := parseID(r, "id")
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	var update models.AccessUpdate
	if err := utils.ParseJSONBody(r, &update); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	update.ID = accessID

	access, err := h.access.UpdateAccess(r.Context(), userID, update)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteSuccessResponse(w, access)
}

// DELETE /api/access/{id}
func (h *AccessHandler) DeleteAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	accessID, err := parseID(r, "id")
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	access, err := h.access.DeleteAccess(r.Context(), userID, accessID)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}

	utils.WriteSuccessResponse(w, access)
}
