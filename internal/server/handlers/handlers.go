// Package handlers implements HTTP request handlers for the wastecal API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dwsmith1983/wastecal/internal/engine"
	"github.com/dwsmith1983/wastecal/internal/provider"
)

// FeedSource renders the ICS body of a hosted calendar.
type FeedSource interface {
	Feed(ctx context.Context, calendarID string) ([]byte, error)
}

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	engine   *engine.Engine
	provider provider.Provider
	feeds    FeedSource
	logger   *slog.Logger
}

// New creates a new Handlers instance. feeds may be nil.
func New(eng *engine.Engine, prov provider.Provider, feeds FeedSource) *Handlers {
	return &Handlers{
		engine:   eng,
		provider: prov,
		feeds:    feeds,
		logger:   slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (h *Handlers) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
