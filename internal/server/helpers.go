package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwbudde/reconmetrics/internal/eval"
	"github.com/cwbudde/reconmetrics/internal/loss"
	"github.com/cwbudde/reconmetrics/internal/store"
)

// badRequestError marks client input problems found before any metric runs
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string {
	return e.msg
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var badReq *badRequestError
	var validation *store.ValidationError

	switch {
	case errors.As(err, &badReq), errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, eval.ErrEmptyRequest),
		errors.Is(err, eval.ErrNonFiniteMetric),
		errors.Is(err, loss.ErrShapeMismatch),
		errors.Is(err, loss.ErrDimensionTooSmall),
		errors.Is(err, loss.ErrResampleDegenerate),
		errors.Is(err, loss.ErrInvalidWindow),
		errors.Is(err, loss.ErrInvalidScale):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError sends err as {"error": "..."} with a status derived from its type
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
