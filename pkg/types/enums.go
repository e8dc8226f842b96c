package types

// WasteType is the collection category that partitions schedule groups and
// calendar streams.
type WasteType string

// Built-in waste types. Additional types can be declared in wasteTypeDirs.
const (
	WasteGeneral WasteType = "bendros"
	WastePlastic WasteType = "plastikas"
	WasteGlass   WasteType = "stiklas"
)

// CalendarStatus is the subscriber-facing status of a calendar stream.
type CalendarStatus string

// CalendarStatus values are derived only from (calendar_id, calendar_synced_at).
const (
	CalendarPending     CalendarStatus = "pending"
	CalendarNeedsUpdate CalendarStatus = "needs_update"
	CalendarSynced      CalendarStatus = "synced"
)

// StreamState is the explicit lifecycle state of a calendar stream. It is
// persisted implicitly through calendar_id, calendar_synced_at and the
// pending-clean timers.
type StreamState string

// StreamState values.
const (
	StreamUncreated       StreamState = "uncreated"
	StreamCreatedUnsynced StreamState = "created_unsynced"
	StreamSynced          StreamState = "synced"
	StreamPendingClean    StreamState = "pending_clean"
	StreamDeleted         StreamState = "deleted"
)

// EventStatus records the outcome of materializing one calendar date.
type EventStatus string

// EventStatus values for calendar_stream_events rows.
const (
	EventCreated EventStatus = "created"
	EventError   EventStatus = "error"
)

// FetchStatus classifies an ingest batch in the fetch audit log.
type FetchStatus string

// FetchStatus values mirror the outcomes of an ingest run.
const (
	FetchSuccess         FetchStatus = "success"
	FetchValidationError FetchStatus = "validation_error"
	FetchFailed          FetchStatus = "failed"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
	AlertSNS     AlertType = "sns"
	AlertS3      AlertType = "s3"
	AlertPubSub  AlertType = "pubsub"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// Alert categories emitted by the sync engine and worker.
const (
	AlertCategoryUntrackedCalendar = "UNTRACKED_CALENDAR"
	AlertCategoryOrphanedEvent     = "ORPHANED_EXTERNAL_EVENT"
	AlertCategoryCleanupFailed     = "CLEANUP_FAILED"
	AlertCategoryRateLimited       = "RATE_LIMITED"
	AlertCategoryStreamSplit       = "STREAM_SPLIT"
	AlertCategoryIngestRejected    = "INGEST_REJECTED"
	AlertCategorySyncFailed        = "SYNC_FAILED"
)

// StoreBackend names a supported storage provider.
type StoreBackend string

const (
	StoreSQLite   StoreBackend = "sqlite"
	StorePostgres StoreBackend = "postgres"
)

// CalendarBackend names a supported external calendar provider.
type CalendarBackend string

const (
	CalendarGoogle  CalendarBackend = "google"
	CalendarICSFeed CalendarBackend = "icsfeed"
)
