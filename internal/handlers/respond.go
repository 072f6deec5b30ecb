package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lotuscare/facility-directory/internal/models"
	"github.com/lotuscare/facility-directory/internal/roster"
)

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSONResponse(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, message string, err error) {
	resp := errorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSONResponse(w, status, resp)
}

// statusFromError maps the workflow's error taxonomy onto HTTP statuses.
// Validation failures are 422: the submit is blocked but the draft stays
// editable on the client.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrProviderAlreadyExists):
		return http.StatusConflict
	case models.IsValidationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrUnimplemented):
		return http.StatusNotImplemented
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, roster.ErrNoDraft):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
