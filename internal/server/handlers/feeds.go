package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/wastecal/internal/calendar"
)

// GetFeed serves a hosted calendar as text/calendar.
func (h *Handlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	if h.feeds == nil {
		http.NotFound(w, r)
		return
	}
	id := chi.URLParam(r, "calendarID")
	body, err := h.feeds.Feed(r.Context(), id)
	if errors.Is(err, calendar.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("failed to render feed", "calendar", id, "error", err)
		http.Error(w, "feed unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(body)
}
