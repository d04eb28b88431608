package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"docuchat/internal/contextutil"
	"docuchat/internal/service"
)

// HeaderUserID carries the authenticated user's ID, set by the auth layer
// in front of this service.
const HeaderUserID = "X-User-ID"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ownerID extracts the authenticated user from the request. The second
// return is false when the header is missing.
func ownerID(r *http.Request) (string, bool) {
	id := r.Header.Get(HeaderUserID)
	return id, id != ""
}

// requireOwner extracts the authenticated user or writes a 401.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := ownerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	}
	return id, ok
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

// handleServiceError maps service errors to appropriate HTTP status codes.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "service error", "error", err)

	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation error: %s", validationErr.Error()))
		return
	}

	if errors.Is(err, service.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "Invalid input")
		return
	}

	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Resource not found")
		return
	}

	if errors.Is(err, service.ErrConflict) {
		writeError(w, http.StatusConflict, "Conflict")
		return
	}

	if errors.Is(err, service.ErrExternalService) {
		writeError(w, http.StatusBadGateway, "External service error")
		return
	}

	writeError(w, http.StatusInternalServerError, defaultMsg)
}
