package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/wastecal/internal/metrics"
	"github.com/dwsmith1983/wastecal/internal/throttle"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

var _ Client = (*Guarded)(nil)

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	FailThreshold uint32        // consecutive failures before opening (default 5)
	Cooldown      time.Duration // how long to stay open before half-open (default 30s)
}

// GuardOption configures a Guarded client.
type GuardOption func(*Guarded)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GuardOption {
	return func(g *Guarded) { g.logger = l }
}

// WithAlertFunc receives an alert whenever the provider rate limits a call.
func WithAlertFunc(fn func(types.Alert)) GuardOption {
	return func(g *Guarded) { g.alertFn = fn }
}

// Guarded serializes every provider call through a throttle gate and trips a
// circuit breaker on repeated failures. After a rate-limit rejection it waits
// out the gate's backoff window before returning the error.
type Guarded struct {
	next    Client
	gate    *throttle.Gate
	cb      *gobreaker.CircuitBreaker
	logger  *slog.Logger
	alertFn func(types.Alert)
}

// NewGuarded wraps next.
func NewGuarded(next Client, gate *throttle.Gate, bc BreakerConfig, opts ...GuardOption) *Guarded {
	if bc.FailThreshold == 0 {
		bc.FailThreshold = 5
	}
	if bc.Cooldown <= 0 {
		bc.Cooldown = 30 * time.Second
	}
	g := &Guarded{next: next, gate: gate, logger: slog.Default()}
	for _, o := range opts {
		o(g)
	}
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "calendar",
		Timeout: bc.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= bc.FailThreshold
		},
		// A missing resource is an answer, not a provider failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return g
}

// BreakerState reports the current breaker state.
func (g *Guarded) BreakerState() gobreaker.State {
	return g.cb.State()
}

func (g *Guarded) do(ctx context.Context, op string, fn func() error) error {
	if err := g.gate.Wait(ctx); err != nil {
		return err
	}
	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	case errors.Is(err, ErrRateLimited):
		metrics.RateLimited.Add(ctx, 1)
		g.logger.Warn("calendar provider rate limited, backing off", "op", op)
		if g.alertFn != nil {
			g.alertFn(types.Alert{
				Level:     types.AlertLevelWarning,
				Category:  types.AlertCategoryRateLimited,
				Message:   fmt.Sprintf("calendar provider rate limited during %s", op),
				Timestamp: time.Now(),
			})
		}
		if berr := g.gate.Backoff(ctx); berr != nil {
			return berr
		}
	}
	return err
}

// Create creates a calendar.
func (g *Guarded) Create(ctx context.Context, cal Calendar) (string, error) {
	var id string
	err := g.do(ctx, "create calendar", func() (err error) {
		id, err = g.next.Create(ctx, cal)
		return err
	})
	return id, err
}

// Get fetches a calendar.
func (g *Guarded) Get(ctx context.Context, calendarID string) (*Calendar, error) {
	var out *Calendar
	err := g.do(ctx, "get calendar", func() (err error) {
		out, err = g.next.Get(ctx, calendarID)
		return err
	})
	return out, err
}

// EnsurePublic grants public read access.
func (g *Guarded) EnsurePublic(ctx context.Context, calendarID string) error {
	return g.do(ctx, "grant public read", func() error {
		return g.next.EnsurePublic(ctx, calendarID)
	})
}

// InsertEvent inserts an event.
func (g *Guarded) InsertEvent(ctx context.Context, calendarID string, ev Event) (string, error) {
	var id string
	err := g.do(ctx, "insert event", func() (err error) {
		id, err = g.next.InsertEvent(ctx, calendarID, ev)
		return err
	})
	return id, err
}

// DeleteEvent deletes an event.
func (g *Guarded) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return g.do(ctx, "delete event", func() error {
		return g.next.DeleteEvent(ctx, calendarID, eventID)
	})
}

// Delete deletes a calendar.
func (g *Guarded) Delete(ctx context.Context, calendarID string) error {
	return g.do(ctx, "delete calendar", func() error {
		return g.next.Delete(ctx, calendarID)
	})
}

// List lists calendars visible to the account.
func (g *Guarded) List(ctx context.Context) ([]Calendar, error) {
	var out []Calendar
	err := g.do(ctx, "list calendars", func() (err error) {
		out, err = g.next.List(ctx)
		return err
	})
	return out, err
}

// SubscriptionLink makes no provider call.
func (g *Guarded) SubscriptionLink(calendarID string) string {
	return g.next.SubscriptionLink(calendarID)
}
