package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwsmith1983/wastecal/internal/metrics"
	"github.com/dwsmith1983/wastecal/internal/server/handlers"
)

func (s *Server) registerRoutes(r chi.Router) {
	h := handlers.New(s.engine, s.provider, s.feeds)
	h.SetLogger(s.logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Health
		r.Get("/health", h.Health)

		// Ingest
		r.Post("/ingest", h.Ingest)

		// Locations
		r.Get("/locations/{locationID}/calendar", h.GetLocationCalendar)

		// Streams
		r.Get("/streams", h.ListStreams)
		r.Get("/streams/{streamID}", h.GetStream)
	})

	r.Method("GET", "/metrics", metrics.Handler())

	if s.feeds != nil {
		r.Get("/feeds/{calendarID}.ics", h.GetFeed)
	}
}
