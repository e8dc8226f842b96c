// Package types defines the public domain types for wastecal: locations,
// schedule groups, calendar streams and their external calendar events.
package types

import "time"

// DateLayout is the canonical civil-date encoding used for pickup dates.
const DateLayout = "2006-01-02"

// Location is a deduplicated address row. HouseNumbers is empty when the
// schedule applies to the whole street.
type Location struct {
	ID           int64     `json:"id"`
	AdminArea    string    `json:"adminArea"`
	Settlement   string    `json:"settlement"`
	Street       string    `json:"street"`
	HouseNumbers string    `json:"houseNumbers,omitempty"`
	ContentHash  string    `json:"contentHash"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DateRange holds the denormalized range fields shared by groups and streams.
type DateRange struct {
	Dates     []string `json:"dates"`
	DatesHash string   `json:"datesHash"`
	FirstDate string   `json:"firstDate,omitempty"`
	LastDate  string   `json:"lastDate,omitempty"`
	DateCount int      `json:"dateCount"`
}

// ScheduleGroup is the stable per-(content hash, waste type) entity that owns
// a set of pickup dates. Its ID never changes once created.
type ScheduleGroup struct {
	ID               string     `json:"id"`
	WasteType        WasteType  `json:"wasteType"`
	ContentHash      string     `json:"contentHash"`
	DateRange
	CalendarSyncedAt *time.Time `json:"calendarSyncedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// CalendarStream is one externally materialized calendar shared by every
// schedule group with an identical date pattern.
type CalendarStream struct {
	ID                       string     `json:"id"`
	WasteType                WasteType  `json:"wasteType"`
	DateRange
	CalendarID               string     `json:"calendarId,omitempty"`
	CalendarSyncedAt         *time.Time `json:"calendarSyncedAt,omitempty"`
	PendingCleanStartedAt    *time.Time `json:"pendingCleanStartedAt,omitempty"`
	PendingCleanUntil        *time.Time `json:"pendingCleanUntil,omitempty"`
	PendingCleanNoticeSentAt *time.Time `json:"pendingCleanNoticeSentAt,omitempty"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
}

// PendingClean reports whether the stream has entered the deprecation grace period.
func (s *CalendarStream) PendingClean() bool {
	return s.PendingCleanStartedAt != nil
}

// GroupLink is one group-calendar link joined with the linked group's pattern.
type GroupLink struct {
	ScheduleGroupID  string    `json:"scheduleGroupId"`
	CalendarStreamID string    `json:"calendarStreamId"`
	WasteType        WasteType `json:"wasteType"`
	DatesHash        string    `json:"datesHash"`
	Dates            []string  `json:"dates"`
}

// StreamEvent tracks one calendar date materialized (or attempted) on the
// external calendar of a stream.
type StreamEvent struct {
	CalendarStreamID string      `json:"calendarStreamId"`
	Date             string      `json:"date"`
	EventID          string      `json:"eventId,omitempty"`
	Status           EventStatus `json:"status"`
	ErrorMessage     string      `json:"errorMessage,omitempty"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// Record is one normalized schedule row handed over by the upstream parser.
type Record struct {
	AdminArea    string      `json:"adminArea" yaml:"adminArea"`
	Settlement   string      `json:"settlement" yaml:"settlement"`
	Street       string      `json:"street" yaml:"street"`
	HouseNumbers string      `json:"houseNumbers,omitempty" yaml:"houseNumbers,omitempty"`
	Dates        []time.Time `json:"dates" yaml:"dates"`
	RawSource    string      `json:"rawSource" yaml:"rawSource"`
	WasteType    WasteType   `json:"wasteType" yaml:"wasteType"`
}

// Batch is one full ingest run. ParseErrors carries problems the upstream
// parser already detected; any of them rejects the batch.
type Batch struct {
	SourceURL   string   `json:"sourceUrl" yaml:"sourceUrl"`
	Records     []Record `json:"records" yaml:"records"`
	ParseErrors []string `json:"parseErrors,omitempty" yaml:"parseErrors,omitempty"`
}

// FetchRecord is the audit row written for every ingest batch.
type FetchRecord struct {
	ID               string      `json:"id"`
	SourceURL        string      `json:"sourceUrl"`
	Status           FetchStatus `json:"status"`
	ValidationErrors []string    `json:"validationErrors,omitempty"`
	RecordCount      int         `json:"recordCount"`
	FetchedAt        time.Time   `json:"fetchedAt"`
}

// CalendarStatusInfo is the read-contract view of a stream's calendar state.
type CalendarStatusInfo struct {
	Status     CalendarStatus `json:"status"`
	CalendarID *string        `json:"calendar_id"`
}

// StatusOf derives the calendar status from the two persisted fields.
func StatusOf(calendarID string, syncedAt *time.Time) CalendarStatusInfo {
	if calendarID == "" {
		return CalendarStatusInfo{Status: CalendarPending}
	}
	id := calendarID
	if syncedAt == nil {
		return CalendarStatusInfo{Status: CalendarNeedsUpdate, CalendarID: &id}
	}
	return CalendarStatusInfo{Status: CalendarSynced, CalendarID: &id}
}

// LocationCalendar is what the query API exposes for one location.
type LocationCalendar struct {
	LocationID       int64              `json:"location_id"`
	WasteType        WasteType          `json:"waste_type"`
	ScheduleGroupID  string             `json:"schedule_group_id,omitempty"`
	CalendarStreamID string             `json:"calendar_stream_id,omitempty"`
	Dates            []string           `json:"dates"`
	CalendarID       *string            `json:"calendar_id"`
	SubscriptionLink *string            `json:"subscription_link"`
	CalendarStatus   CalendarStatusInfo `json:"calendar_status"`
}

// Alert is a notification raised by the sync engine or worker.
type Alert struct {
	Level     AlertLevel             `json:"level"`
	Category  string                 `json:"category,omitempty"`
	StreamID  string                 `json:"streamId,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// WasteTypeDef describes how a waste type is presented on external calendars.
type WasteTypeDef struct {
	Name             WasteType `yaml:"name" json:"name"`
	Label            string    `yaml:"label" json:"label"`
	EventSummary     string    `yaml:"eventSummary" json:"eventSummary"`
	EventDescription string    `yaml:"eventDescription,omitempty" json:"eventDescription,omitempty"`
}
