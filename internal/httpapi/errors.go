package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/institute"
	"instituteos.app/internal/obs"
	"instituteos.app/internal/student"
	"instituteos.app/internal/task"
	"instituteos.app/internal/tenancy"
	"instituteos.app/internal/trial"
)

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// publicMessage drops the "pkg: " prefix of sentinel-wrapped errors.
func publicMessage(err error) string {
	msg := err.Error()
	if pkg, rest, ok := strings.Cut(msg, ": "); ok && !strings.Contains(pkg, " ") {
		return rest
	}
	return msg
}

// handleError maps domain errors to responses.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var expired *trial.ExpiredError
	switch {
	case errors.As(err, &expired):
		writeJSON(w, http.StatusForbidden, expired.Response())
	case errors.Is(err, tenancy.ErrUnresolved):
		writeError(w, r, http.StatusForbidden, tenancy.ErrUnresolved.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, publicMessage(err))
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, institute.ErrInvalidInput),
		errors.Is(err, student.ErrInvalidInput),
		errors.Is(err, task.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, publicMessage(err))
	case errors.Is(err, institute.ErrDomainTaken):
		writeError(w, r, http.StatusConflict, "domain already in use")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "email already registered")
	case errors.Is(err, student.ErrConflict):
		writeError(w, r, http.StatusConflict, "admission number already in use")
	case errors.Is(err, task.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "task not found")
	case errors.Is(err, institute.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "institute not found")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusBadRequest, "role not available in this institute")
	default:
		obs.Logger().Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
