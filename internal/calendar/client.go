// Package calendar defines the boundary to the external calendar provider.
// Implementations live in subpackages; Guarded wraps any of them with the
// shared call-spacing gate and a circuit breaker.
package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/dwsmith1983/wastecal/pkg/types"
)

var (
	// ErrNotFound means the calendar or event no longer exists at the provider.
	ErrNotFound = errors.New("calendar resource not found")
	// ErrRateLimited means the provider rejected the call for quota or rate reasons.
	ErrRateLimited = errors.New("calendar provider rate limited")
	// ErrUnavailable means the circuit breaker is open and the call was not attempted.
	ErrUnavailable = errors.New("calendar provider unavailable")
)

// Calendar is an external calendar resource.
type Calendar struct {
	ID          string
	Summary     string
	Description string
	TimeZone    string
	Primary     bool
}

// Event is a timed event on an external calendar. Start and End carry the
// calendar's location.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Reminders   []types.ReminderConfig
}

// Client is the set of provider operations the sync engine relies on. Create,
// EnsurePublic and Delete must be safe to repeat.
type Client interface {
	Create(ctx context.Context, cal Calendar) (string, error)
	Get(ctx context.Context, calendarID string) (*Calendar, error)
	EnsurePublic(ctx context.Context, calendarID string) error
	InsertEvent(ctx context.Context, calendarID string, ev Event) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	Delete(ctx context.Context, calendarID string) error
	List(ctx context.Context) ([]Calendar, error)
	// SubscriptionLink is a stable URL depending only on calendarID.
	SubscriptionLink(calendarID string) string
}
