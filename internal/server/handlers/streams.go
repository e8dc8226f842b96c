package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/wastecal/internal/lifecycle"
	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// StreamView is a calendar stream with its derived lifecycle state.
type StreamView struct {
	types.CalendarStream
	State types.StreamState `json:"state"`
}

// StreamDetail adds link count and per-date events to StreamView.
type StreamDetail struct {
	StreamView
	Links  int                 `json:"links"`
	Events []types.StreamEvent `json:"events"`
}

var knownStates = map[types.StreamState]bool{
	types.StreamUncreated:       true,
	types.StreamCreatedUnsynced: true,
	types.StreamSynced:          true,
	types.StreamPendingClean:    true,
}

// ListStreams returns all calendar streams, optionally filtered by ?state=.
func (h *Handlers) ListStreams(w http.ResponseWriter, r *http.Request) {
	state := types.StreamState(r.URL.Query().Get("state"))
	if state != "" && !knownStates[state] {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", state), nil)
		return
	}

	streams, err := h.provider.ListCalendarStreams(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list streams", err)
		return
	}
	out := []StreamView{}
	for i := range streams {
		st := lifecycle.StateOf(&streams[i])
		if state != "" && st != state {
			continue
		}
		out = append(out, StreamView{CalendarStream: streams[i], State: st})
	}
	_ = json.NewEncoder(w).Encode(out)
}

// GetStream returns one stream with its events.
func (h *Handlers) GetStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "streamID")
	cs, err := h.provider.GetCalendarStream(r.Context(), id)
	if errors.Is(err, provider.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "stream not found", nil)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load stream", err)
		return
	}
	links, err := h.provider.CountLinks(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to count links", err)
		return
	}
	events, err := h.provider.ListStreamEvents(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list events", err)
		return
	}
	if events == nil {
		events = []types.StreamEvent{}
	}
	_ = json.NewEncoder(w).Encode(StreamDetail{
		StreamView: StreamView{CalendarStream: *cs, State: lifecycle.StateOf(cs)},
		Links:      links,
		Events:     events,
	})
}
