package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/GoCodeAlone/tms/access"
	"github.com/GoCodeAlone/tms/auth"
	"github.com/GoCodeAlone/tms/task"
	"github.com/GoCodeAlone/tms/user"
)

// errBadRequest marks malformed path, query or body input.
var errBadRequest = errors.New("bad request")

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Trace     string `json:"trace,omitempty"`
}

// StatusFor maps an error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrMalformed),
		errors.Is(err, auth.ErrExpired),
		errors.Is(err, auth.ErrUnknownPrincipal),
		errors.Is(err, user.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, task.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrInvalidSort),
		errors.Is(err, task.ErrInvalidPage),
		errors.Is(err, task.ErrInvalidChangeSet),
		errors.Is(err, task.ErrInvalidComment),
		errors.Is(err, task.ErrUnknownUser),
		errors.Is(err, user.ErrEmailTaken),
		errors.Is(err, user.ErrInvalidInput),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteJSON encodes v as JSON and writes it with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an error envelope with msg.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Message:   msg,
	})
}

// fail writes err as an error envelope. Internal errors are logged and
// their text is only exposed in development, along with a stack trace.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Message:   err.Error(),
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
		if !h.Dev {
			resp.Message = "an unexpected error occurred"
		}
	}
	if h.Dev {
		resp.Trace = string(debug.Stack())
	}
	WriteJSON(w, status, resp)
}
