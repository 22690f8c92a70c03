package handlers

import (
	"net/http"
	"strconv"

	"ecdar-gateway/pkg/apperr"
	"ecdar-gateway/pkg/middleware"
	"ecdar-gateway/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// requireUser writes 401 and returns false when the request is unauthenticated
func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return 0, false
	}
	return userID, true
}

// parseID reads a positive numeric route parameter
func parseID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return 0, apperr.Invalid("%s is required", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("%s must be a positive integer", name)
	}
	return id, nil
}
