// Package httpserver is the collaborator surface: job control, the
// execution ledger, observed throttling, and detection history as a JSON
// API, plus the health endpoints. It stays a thin adapter; every decision
// lives in the usecase layer.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details any) {
	status := http.StatusInternalServerError
	code, reason := "INTERNAL", ""
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrConfigInvalid):
		status, code = http.StatusBadRequest, "CONFIG_INVALID"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrAlreadyRunning):
		status, code, reason = http.StatusConflict, "ALREADY_RUNNING", "already_running"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrRateLimited):
		status, code = http.StatusTooManyRequests, "RATE_LIMITED"
	case domain.IsTransient(err):
		status, code = http.StatusServiceUnavailable, "UNAVAILABLE"
	}
	writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: err.Error(), Reason: reason, Details: details}})
}
