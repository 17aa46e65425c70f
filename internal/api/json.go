package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/prose/internal/apperr"
	"github.com/starford/prose/internal/session"
)

const maxBodyBytes = 12 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decode reads a JSON body into v and runs its Validate method if it has
// one. An empty body leaves v at its zero value.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Invalid(apperr.ErrInvalid, "invalid JSON body")
	}
	if vv, ok := v.(validation.Validatable); ok {
		if err := vv.Validate(); err != nil {
			return apperr.Invalid(apperr.ErrInvalid, "%v", err)
		}
	}
	return nil
}

// writeError maps err to a status code and JSON body. Cancelled dialogs are
// not failures.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case apperr.IsCancelled(err):
		writeJSON(w, http.StatusOK, CancelledResponse{Cancelled: true})
	case apperr.IsValidation(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(apperr.Message(err)))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(apperr.Message(err)))
	case errors.Is(err, apperr.ErrPermission):
		writeJSON(w, http.StatusForbidden, errorBody(apperr.Message(err)))
	case errors.Is(err, session.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("session closed"))
	default:
		slog.Error(fmt.Sprintf("api: %s failed", op), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(apperr.Message(err)))
	}
}
