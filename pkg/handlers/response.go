package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteServiceError translates the service error taxonomy to HTTP statuses.
// Unrecognized errors become an opaque 500 so storage details never leak to
// callers.
func WriteServiceError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return ErrorResponse(w, http.StatusNotFound, "not_found", "record not found")
	case errors.Is(err, apperrors.ErrUnknownTenant):
		return ErrorResponse(w, http.StatusNotFound, "unknown_account", "account is not registered")
	case errors.Is(err, apperrors.ErrPartitionUnavailable):
		return ErrorResponse(w, http.StatusServiceUnavailable, "partition_unavailable", "account storage is temporarily unavailable")
	case errors.Is(err, apperrors.ErrInvalidAmount):
		return ErrorResponse(w, http.StatusUnprocessableEntity, "invalid_amount", err.Error())
	case errors.Is(err, apperrors.ErrInvalidInput):
		return ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		return ErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
