package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ladiesman540/crane-platform/internal/apperr"
	"github.com/ladiesman540/crane-platform/internal/auth"
	"github.com/ladiesman540/crane-platform/internal/ingest"
	"github.com/ladiesman540/crane-platform/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain errors onto the HTTP taxonomy. Unknown errors are
// logged and reported without detail.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.AppError
	switch {
	case errors.As(err, &ae):
	case errors.Is(err, auth.ErrUnauthorized):
		ae = apperr.Unauthorized("unauthorized")
	case errors.Is(err, ingest.ErrSensorNotFound):
		ae = apperr.NotFound(err.Error())
	case errors.Is(err, ingest.ErrDuplicateReading):
		ae = apperr.Conflict("Duplicate reading")
	case errors.Is(err, ingest.ErrInvalidPayload):
		ae = apperr.Unprocessable(err.Error(), err)
	case errors.Is(err, store.ErrNotFound):
		ae = apperr.NotFound("not found")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		ae = apperr.InternalServerError("internal server error", err)
	}
	apperr.WriteError(w, ae)
}
