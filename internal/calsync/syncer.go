// Package calsync materializes calendar streams on the external calendar
// provider: it creates calendars, diffs pickup dates against tracked events,
// and retires calendars whose streams were abandoned.
package calsync

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/wastecal/internal/calendar"
	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/internal/wastetype"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// Defaults applied by ConfigFrom.
const (
	DefaultTimeZone    = "Europe/Vilnius"
	DefaultStartHour   = 7
	DefaultEndHour     = 9
	DefaultArea        = "Nemenčinė"
	DefaultConcurrency = 4
)

const (
	noticeDays      = 3
	noticeStartHour = 9
	noticeEndHour   = 11
)

var (
	// ErrNoCalendar is returned by SyncCalendarStream before Phase 1 ran.
	ErrNoCalendar = errors.New("calendar stream has no calendar yet")
	// ErrPendingClean is returned by Phase 1 and Phase 2 for retiring streams.
	ErrPendingClean = errors.New("calendar stream is pending clean")
	// ErrNotPendingClean is returned when a lifecycle step needs a retiring stream.
	ErrNotPendingClean = errors.New("calendar stream is not pending clean")
)

// Config controls how pickup events are laid out.
type Config struct {
	Location    *time.Location
	StartHour   int
	EndHour     int
	Reminders   []types.ReminderConfig
	DefaultArea string
	Concurrency int
}

// ConfigFrom builds a Config from the project calendar and watcher sections.
// Either may be nil.
func ConfigFrom(c *types.CalendarConfig, w *types.WatcherConfig) (Config, error) {
	cfg := Config{
		StartHour:   DefaultStartHour,
		EndHour:     DefaultEndHour,
		DefaultArea: DefaultArea,
		Concurrency: DefaultConcurrency,
	}
	tz := DefaultTimeZone
	if c != nil {
		if c.TimeZone != "" {
			tz = c.TimeZone
		}
		if c.EventStartHour != nil {
			cfg.StartHour = *c.EventStartHour
		}
		if c.EventEndHour != nil {
			cfg.EndHour = *c.EventEndHour
		}
		if c.DefaultArea != "" {
			cfg.DefaultArea = c.DefaultArea
		}
		cfg.Reminders = c.Reminders
	}
	if w != nil && w.Concurrency > 0 {
		cfg.Concurrency = w.Concurrency
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("calendar time zone %q: %w", tz, err)
	}
	cfg.Location = loc
	if cfg.StartHour < 0 || cfg.EndHour > 24 || cfg.StartHour >= cfg.EndHour {
		return Config{}, fmt.Errorf("event hours %d-%d: start must precede end within a day", cfg.StartHour, cfg.EndHour)
	}
	return cfg, nil
}

// Syncer drives Phase 1 (calendar creation) and Phase 2 (event diffing) for
// calendar streams, plus the deprecation lifecycle.
type Syncer struct {
	provider provider.Provider
	client   calendar.Client
	registry *wastetype.Registry
	cfg      Config
	alertFn  func(types.Alert)
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// New creates a Syncer. The client should already be wrapped by
// calendar.NewGuarded so every call is spaced and rate-limit aware.
func New(p provider.Provider, client calendar.Client, reg *wastetype.Registry, cfg Config, alertFn func(types.Alert), opts ...Option) *Syncer {
	if reg == nil {
		reg = wastetype.NewRegistry()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DefaultArea == "" {
		cfg.DefaultArea = DefaultArea
	}
	s := &Syncer{
		provider: p,
		client:   client,
		registry: reg,
		cfg:      cfg,
		alertFn:  alertFn,
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/dwsmith1983/wastecal/internal/calsync"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SubscriptionLink returns the subscriber-facing link for a calendar id.
func (s *Syncer) SubscriptionLink(calendarID string) string {
	return s.client.SubscriptionLink(calendarID)
}

func (s *Syncer) fireAlert(a types.Alert) {
	if s.alertFn == nil {
		return
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}
	s.alertFn(a)
}

// at returns the given hour on a civil date in the calendar's time zone.
func (s *Syncer) at(date string, hour int) (time.Time, error) {
	d, err := time.ParseInLocation(types.DateLayout, date, s.cfg.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, s.cfg.Location), nil
}

func shortID(id string) string {
	if len(id) < 6 {
		return id
	}
	return id[:6]
}
