package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dtroode/secret-relay/internal/logger"
	"github.com/dtroode/secret-relay/internal/model"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// handleError maps service errors to HTTP status codes. Internal errors are
// logged and never echoed to the client.
func handleError(w http.ResponseWriter, r *http.Request, logger *logger.Logger, err error) {
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrDecrypt):
		writeError(w, http.StatusUnprocessableEntity, model.ErrDecrypt.Error())
	case errors.Is(err, model.ErrStoreCapacity):
		writeError(w, http.StatusInsufficientStorage, model.ErrStoreCapacity.Error())
	case errors.As(err, &maxBytesErr):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body into v. Syntax errors become validation
// errors; a body over the size cap is passed through for handleError.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return err
	}

	return model.NewValidationError("body", "invalid JSON payload")
}
