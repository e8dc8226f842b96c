// Package sqlstore implements provider.Provider over database/sql. The sqlite
// and postgres packages open a *sql.DB and hand it to New with their dialect.
package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the per-engine differences of the shared schema.
type Dialect struct {
	Name string
	// Numbered selects $1-style placeholders instead of ?.
	Numbered bool
	// AutoID is the column definition of the locations primary key.
	AutoID string
}

// SQLite is the modernc.org/sqlite dialect.
var SQLite = Dialect{Name: "sqlite", AutoID: "INTEGER PRIMARY KEY AUTOINCREMENT"}

// Postgres is the pgx dialect.
var Postgres = Dialect{Name: "postgres", Numbered: true, AutoID: "BIGSERIAL PRIMARY KEY"}

// Timestamps are stored as fixed-width UTC text so ORDER BY is chronological
// on every engine.
func (d Dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS locations (
    id            ` + d.AutoID + `,
    admin_area    TEXT NOT NULL,
    settlement    TEXT NOT NULL,
    street        TEXT NOT NULL,
    house_numbers TEXT NOT NULL DEFAULT '',
    content_hash  TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL,
    UNIQUE (admin_area, settlement, street, house_numbers)
)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_content_hash ON locations (content_hash)`,
		`CREATE TABLE IF NOT EXISTS schedule_groups (
    id                 TEXT PRIMARY KEY,
    waste_type         TEXT NOT NULL,
    content_hash       TEXT NOT NULL,
    dates              TEXT NOT NULL,
    dates_hash         TEXT NOT NULL,
    first_date         TEXT,
    last_date          TEXT,
    date_count         INTEGER NOT NULL DEFAULT 0,
    calendar_synced_at TEXT,
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL,
    UNIQUE (content_hash, waste_type)
)`,
		`CREATE TABLE IF NOT EXISTS calendar_streams (
    id                           TEXT PRIMARY KEY,
    waste_type                   TEXT NOT NULL,
    dates_hash                   TEXT NOT NULL,
    dates                        TEXT NOT NULL,
    first_date                   TEXT,
    last_date                    TEXT,
    date_count                   INTEGER NOT NULL DEFAULT 0,
    calendar_id                  TEXT,
    calendar_synced_at           TEXT,
    pending_clean_started_at     TEXT,
    pending_clean_until          TEXT,
    pending_clean_notice_sent_at TEXT,
    created_at                   TEXT NOT NULL,
    updated_at                   TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_streams_pattern ON calendar_streams (waste_type, dates_hash)`,
		`CREATE TABLE IF NOT EXISTS group_calendar_links (
    schedule_group_id  TEXT PRIMARY KEY REFERENCES schedule_groups (id),
    calendar_stream_id TEXT NOT NULL REFERENCES calendar_streams (id),
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_group_calendar_links_stream ON group_calendar_links (calendar_stream_id)`,
		`CREATE TABLE IF NOT EXISTS calendar_stream_events (
    calendar_stream_id TEXT NOT NULL REFERENCES calendar_streams (id),
    date               TEXT NOT NULL,
    event_id           TEXT,
    status             TEXT NOT NULL,
    error_message      TEXT,
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL,
    PRIMARY KEY (calendar_stream_id, date)
)`,
		`CREATE TABLE IF NOT EXISTS data_fetches (
    id                TEXT PRIMARY KEY,
    source_url        TEXT NOT NULL,
    status            TEXT NOT NULL,
    validation_errors TEXT,
    record_count      INTEGER NOT NULL DEFAULT 0,
    fetched_at        TEXT NOT NULL
)`,
	}
}

// rebind rewrites ? placeholders for dialects that number them.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
