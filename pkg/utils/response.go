package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"ecdar-gateway/pkg/apperr"
)

// APIResponse is the envelope of every API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError describes a failed request
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// WriteJSONResponse writes data in the success envelope
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteSuccessResponse writes a 200 response
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusOK, data)
}

// WriteCreatedResponse writes a 201 response
func WriteCreatedResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusCreated, data)
}

// WriteErrorResponseWithCode writes the error envelope
func WriteErrorResponseWithCode(w http.ResponseWriter, statusCode int, code, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteBadRequestResponse writes a 400 response
func WriteBadRequestResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusBadRequest, string(apperr.KindInvalidArgument), message, "")
}

// WriteUnauthorizedResponse writes a 401 response
func WriteUnauthorizedResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusUnauthorized, "UNAUTHORIZED", message, "")
}

// WriteNotFoundResponse writes a 404 response
func WriteNotFoundResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusNotFound, string(apperr.KindNotFound), message, "")
}

// WriteInternalServerErrorResponse writes a 500 response
func WriteInternalServerErrorResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusInternalServerError, string(apperr.KindInternal), message, "")
}

// StatusForKind maps an error kind to its HTTP status
func StatusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindConstraintViolation:
		return http.StatusConflict
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError writes err with the status and code of its kind.
// Causes of internal errors are not exposed.
func WriteAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	message := apperr.Message(err)

	var appErr *apperr.Error
	if kind == apperr.KindInternal && !errors.As(err, &appErr) {
		message = "Internal server error"
	}

	WriteErrorResponseWithCode(w, StatusForKind(kind), string(kind), message, "")
}

// ParseJSONBody decodes the request body into v. Unknown fields are
// rejected so update payloads cannot carry fields that would be dropped.
func ParseJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Invalid("request body too large")
		}
		return apperr.Invalid("invalid request body: %v", err)
	}
	if dec.More() {
		return apperr.Invalid("invalid request body: %s", "trailing data")
	}
	return nil
}
