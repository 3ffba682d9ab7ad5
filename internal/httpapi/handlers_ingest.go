package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ladiesman540/crane-platform/internal/apperr"
	"github.com/ladiesman540/crane-platform/internal/ingest"
)

const maxIngestBody = 1 << 20

type ingestResponse struct {
	Status    string `json:"status"`
	ReadingID int64  `json:"reading_id"`
}

// handleIngest authenticates the gateway key, then hands the validated body to
// the engine. Broadcast happens inside the engine after commit and never
// affects the response.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	key, err := s.opts.Keys.Verify(r.Context(), r.Header.Get(apiKeyHeader))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			apperr.WriteError(w, apperr.New(http.StatusRequestEntityTooLarge, "request body too large", err))
			return
		}
		apperr.WriteError(w, apperr.BadRequest("could not read body"))
		return
	}
	if err := validateBody(s.schema, body); err != nil {
		slog.Debug("ingest body rejected", "key_id", key.ID, "error", err)
		apperr.WriteError(w, apperr.BadRequest("invalid reading: "+err.Error()))
		return
	}

	var p ingest.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		apperr.WriteError(w, apperr.BadRequest("invalid reading: "+err.Error()))
		return
	}

	res, err := s.opts.Engine.Ingest(r.Context(), key.OrgID, &p)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Status: "ok", ReadingID: res.ReadingID})
}
