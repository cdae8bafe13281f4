package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeJSONError writes an error JSON response.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

// writeUnauthorized writes the single body used for every authentication failure.
func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, APIError{Code: "UNAUTHORIZED"})
}

// writeError maps an application error to a status code.
//
//	unauthorized       → 401, identical body
//	invalid input      → 400
//	not found          → 404
//	transient          → 503 + Retry-After
//	conflict           → 503 too, it only escapes once CAS retries ran out
//	everything else    → 500
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	class := shared.Classify(err)
	if errors.Is(err, context.DeadlineExceeded) {
		class = shared.ClassTransient
	}

	switch class {
	case shared.ClassUnauthorized:
		writeUnauthorized(w)
	case shared.ClassInvalidInput:
		writeJSONError(w, http.StatusBadRequest, "INVALID_INPUT", validationMessage(err))
	case shared.ClassNotFound:
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case shared.ClassTransient, shared.ClassConflict:
		log.Warn("transient failure", logger.Err(err))
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "service temporarily unavailable, retry later")
	default:
		log.Error("request failed", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "An unexpected error occurred")
	}
}

// validationMessage exposes the domain message, never wrapped internals.
func validationMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return "invalid input"
}
