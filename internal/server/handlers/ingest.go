package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dwsmith1983/wastecal/internal/engine"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// Ingest accepts one normalized batch and reconciles it.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	var batch types.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}

	rep, err := h.engine.Ingest(r.Context(), batch)
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error":    "batch rejected",
			"fetchId":  rep.FetchID,
			"problems": verr.Problems,
		})
		return
	case errors.Is(err, engine.ErrLocked):
		h.writeError(w, http.StatusServiceUnavailable, "reconciliation in progress, retry later", err)
		return
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, "ingest failed", err)
		return
	}
	_ = json.NewEncoder(w).Encode(rep)
}
