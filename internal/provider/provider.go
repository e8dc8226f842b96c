// Package provider defines the storage backend interface for wastecal.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/dwsmith1983/wastecal/pkg/types"
)

// ErrNotFound is returned by getters when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// PatternQuery selects a calendar stream by date pattern for reuse.
type PatternQuery struct {
	WasteType       types.WasteType
	DatesHash       string
	ExcludeStreamID string
}

// PatternUpdate rewrites a stream's denormalized pattern in place.
type PatternUpdate struct {
	StreamID    string
	Range       types.DateRange
	ClearSynced bool
}

// Provider is the storage backend interface. Implementations share one
// relational schema; see the sqlstore package.
type Provider interface {
	// WithTx runs fn against a Provider bound to a single transaction. A
	// non-nil error from fn rolls the transaction back.
	WithTx(ctx context.Context, fn func(tx Provider) error) error

	// Locations
	UpsertLocation(ctx context.Context, loc types.Location) (int64, error)
	GetLocation(ctx context.Context, id int64) (*types.Location, error)
	AdminAreaForStream(ctx context.Context, streamID string) (string, error)

	// Schedule groups
	GetScheduleGroup(ctx context.Context, id string) (*types.ScheduleGroup, error)
	InsertScheduleGroup(ctx context.Context, g types.ScheduleGroup) error
	UpdateScheduleGroupDates(ctx context.Context, id string, r types.DateRange, at time.Time) error
	ListUnlinkedScheduleGroups(ctx context.Context) ([]types.ScheduleGroup, error)

	// Calendar streams
	GetCalendarStream(ctx context.Context, id string) (*types.CalendarStream, error)
	FindStreamByPattern(ctx context.Context, q PatternQuery) (*types.CalendarStream, error)
	InsertCalendarStream(ctx context.Context, s types.CalendarStream) error
	UpdateStreamPattern(ctx context.Context, u PatternUpdate, at time.Time) error
	MarkStreamPendingClean(ctx context.Context, id string, startedAt, until time.Time) error
	SetStreamCalendarID(ctx context.Context, id, calendarID string, at time.Time) error
	MarkStreamSynced(ctx context.Context, id string, at time.Time) error
	MarkStreamNoticeSent(ctx context.Context, id string, at time.Time) error
	DeleteCalendarStream(ctx context.Context, id string) error
	ListStreamsNeedingSync(ctx context.Context) ([]types.CalendarStream, error)
	ListStreamsPendingCleanup(ctx context.Context) ([]types.CalendarStream, error)
	ListCalendarStreams(ctx context.Context) ([]types.CalendarStream, error)
	ListOrphanStreamIDs(ctx context.Context) ([]string, error)
	ListTrackedCalendarIDs(ctx context.Context) (map[string]bool, error)

	// Group-calendar links
	UpsertLink(ctx context.Context, groupID, streamID string, at time.Time) error
	GetLinkedStreamID(ctx context.Context, groupID string) (string, error)
	ListLinks(ctx context.Context) ([]types.GroupLink, error)
	CountLinks(ctx context.Context, streamID string) (int, error)

	// Calendar stream events
	ListStreamEvents(ctx context.Context, streamID string) ([]types.StreamEvent, error)
	PutStreamEvent(ctx context.Context, ev types.StreamEvent) error
	DeleteStreamEvent(ctx context.Context, streamID, date string) error

	// Fetch audit log
	RecordFetch(ctx context.Context, rec types.FetchRecord) error
	ListFetches(ctx context.Context, limit int) ([]types.FetchRecord, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Locker coordinates workers across processes. A lock belongs to the
// Locker that acquired it: release and extend are no-ops for a lock that
// expired and was taken by someone else.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// ExtendLock resets the TTL of a lock this Locker still owns and
	// reports whether it did.
	ExtendLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}
