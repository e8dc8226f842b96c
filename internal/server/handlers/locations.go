package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// GetLocationCalendar returns the calendar a location subscribes to for one
// waste type (?wasteType=, default bendros).
func (h *Handlers) GetLocationCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "locationID"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid location id", nil)
		return
	}
	wt := types.WasteType(r.URL.Query().Get("wasteType"))

	lc, err := h.engine.LocationCalendar(r.Context(), id, wt)
	if errors.Is(err, provider.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "location schedule not found", nil)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load location calendar", err)
		return
	}
	_ = json.NewEncoder(w).Encode(lc)
}
