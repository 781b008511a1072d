package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/wimarka/lakra/internal/accounts"
	"github.com/wimarka/lakra/internal/health"
	"github.com/wimarka/lakra/internal/proficiency"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondAPIError(w, status, &apiError{Code: code, Message: message})
}

func respondAPIError(w http.ResponseWriter, status int, e *apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(apiResponse{Success: false, Error: e}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// respondDomainError maps service errors to status and error code
func respondDomainError(w http.ResponseWriter, err error, action string) {
	var verr *accounts.ValidationError
	switch {
	case errors.As(err, &verr):
		respondAPIError(w, http.StatusBadRequest, &apiError{
			Code:    "validation_error",
			Message: verr.Error(),
			Fields:  verr.Fields,
		})
	case errors.Is(err, proficiency.ErrValidation), errors.Is(err, proficiency.ErrNoQuestionsSet):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, proficiency.ErrNotFound), errors.Is(err, proficiency.ErrSessionNotFound), errors.Is(err, accounts.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, proficiency.ErrDuplicate):
		respondError(w, http.StatusConflict, "duplicate_question", err.Error())
	case errors.Is(err, proficiency.ErrSessionReused):
		respondError(w, http.StatusConflict, "session_reused", err.Error())
	case errors.Is(err, proficiency.ErrSessionLocked):
		respondError(w, http.StatusConflict, "session_locked", err.Error())
	case errors.Is(err, accounts.ErrEmailExists):
		respondError(w, http.StatusConflict, "email_exists", "Email already registered")
	case errors.Is(err, accounts.ErrUsernameExists):
		respondError(w, http.StatusConflict, "username_exists", "Username already taken")
	case errors.Is(err, accounts.ErrTestRequired):
		respondError(w, http.StatusForbidden, "test_required", err.Error())
	case errors.Is(err, accounts.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, accounts.ErrInactive):
		respondError(w, http.StatusForbidden, "inactive", err.Error())
	default:
		slog.Error("request failed", "action", action, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := s.health.HealthCheckAll(r.Context())

	checks := make(map[string]string, len(results))
	for name, err := range results {
		checks[name] = "ok"
		if err != nil {
			checks[name] = err.Error()
		}
	}

	if !health.Healthy(results) {
		slog.Warn("readiness check failed", "checks", checks)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}
