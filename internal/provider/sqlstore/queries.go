package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

type scanner interface {
	Scan(dest ...any) error
}

// GetLocation loads a location by id.
func (s *Store) GetLocation(ctx context.Context, id int64) (*types.Location, error) {
	var (
		loc              types.Location
		created, updated string
	)
	err := s.queryRow(ctx, `
SELECT id, admin_area, settlement, street, house_numbers, content_hash, created_at, updated_at
FROM locations WHERE id = ?`, id).Scan(
		&loc.ID, &loc.AdminArea, &loc.Settlement, &loc.Street, &loc.HouseNumbers, &loc.ContentHash,
		&created, &updated,
	)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("location %d", id))
	}
	if loc.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if loc.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &loc, nil
}

// AdminAreaForStream returns the admin area of any location feeding the
// stream, or "" when none is linked.
func (s *Store) AdminAreaForStream(ctx context.Context, streamID string) (string, error) {
	var area string
	err := s.queryRow(ctx, `
SELECT l.admin_area
FROM group_calendar_links k
JOIN schedule_groups g ON g.id = k.schedule_group_id
JOIN locations l ON l.content_hash = g.content_hash
WHERE k.calendar_stream_id = ?
ORDER BY l.id
LIMIT 1`, streamID).Scan(&area)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("admin area for %s: %w", streamID, err)
	}
	return area, nil
}

const groupCols = `id, waste_type, content_hash, dates, dates_hash, first_date, last_date, date_count,
    calendar_synced_at, created_at, updated_at`

func scanGroup(row scanner) (*types.ScheduleGroup, error) {
	var (
		g                types.ScheduleGroup
		wt, dates        string
		first, last      sql.NullString
		synced           sql.NullString
		created, updated string
	)
	if err := row.Scan(&g.ID, &wt, &g.ContentHash, &dates, &g.DatesHash, &first, &last, &g.DateCount,
		&synced, &created, &updated); err != nil {
		return nil, err
	}
	g.WasteType = types.WasteType(wt)
	g.FirstDate, g.LastDate = first.String, last.String
	var err error
	if g.Dates, err = decodeDates(dates); err != nil {
		return nil, err
	}
	if g.CalendarSyncedAt, err = parseNullTS(synced); err != nil {
		return nil, err
	}
	if g.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if g.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetScheduleGroup loads a schedule group by id.
func (s *Store) GetScheduleGroup(ctx context.Context, id string) (*types.ScheduleGroup, error) {
	g, err := scanGroup(s.queryRow(ctx, `SELECT `+groupCols+` FROM schedule_groups WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "schedule group "+id)
	}
	return g, nil
}

// ListUnlinkedScheduleGroups returns groups with no calendar stream link.
func (s *Store) ListUnlinkedScheduleGroups(ctx context.Context) ([]types.ScheduleGroup, error) {
	rows, err := s.query(ctx, `
SELECT `+groupCols+` FROM schedule_groups g
WHERE NOT EXISTS (SELECT 1 FROM group_calendar_links k WHERE k.schedule_group_id = g.id)
ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list unlinked groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.ScheduleGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule group: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

const streamCols = `id, waste_type, dates_hash, dates, first_date, last_date, date_count, calendar_id,
    calendar_synced_at, pending_clean_started_at, pending_clean_until, pending_clean_notice_sent_at,
    created_at, updated_at`

func scanStream(row scanner) (*types.CalendarStream, error) {
	var (
		cs                             types.CalendarStream
		wt, dates                      string
		first, last, calID             sql.NullString
		synced, started, until, notice sql.NullString
		created, updated               string
	)
	if err := row.Scan(&cs.ID, &wt, &cs.DatesHash, &dates, &first, &last, &cs.DateCount, &calID,
		&synced, &started, &until, &notice, &created, &updated); err != nil {
		return nil, err
	}
	cs.WasteType = types.WasteType(wt)
	cs.FirstDate, cs.LastDate, cs.CalendarID = first.String, last.String, calID.String
	var err error
	if cs.Dates, err = decodeDates(dates); err != nil {
		return nil, err
	}
	if cs.CalendarSyncedAt, err = parseNullTS(synced); err != nil {
		return nil, err
	}
	if cs.PendingCleanStartedAt, err = parseNullTS(started); err != nil {
		return nil, err
	}
	if cs.PendingCleanUntil, err = parseNullTS(until); err != nil {
		return nil, err
	}
	if cs.PendingCleanNoticeSentAt, err = parseNullTS(notice); err != nil {
		return nil, err
	}
	if cs.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if cs.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &cs, nil
}

func (s *Store) listStreams(ctx context.Context, where, order string, args ...any) ([]types.CalendarStream, error) {
	q := `SELECT ` + streamCols + ` FROM calendar_streams`
	if where != "" {
		q += ` WHERE ` + where
	}
	q += ` ORDER BY ` + order
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list calendar streams: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.CalendarStream
	for rows.Next() {
		cs, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar stream: %w", err)
		}
		out = append(out, *cs)
	}
	return out, rows.Err()
}

// GetCalendarStream loads a stream by id.
func (s *Store) GetCalendarStream(ctx context.Context, id string) (*types.CalendarStream, error) {
	cs, err := scanStream(s.queryRow(ctx, `SELECT `+streamCols+` FROM calendar_streams WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "calendar stream "+id)
	}
	return cs, nil
}

// FindStreamByPattern returns the oldest non-pending-clean stream with the
// given pattern, or ErrNotFound.
func (s *Store) FindStreamByPattern(ctx context.Context, q provider.PatternQuery) (*types.CalendarStream, error) {
	cs, err := scanStream(s.queryRow(ctx, `
SELECT `+streamCols+` FROM calendar_streams
WHERE waste_type = ? AND dates_hash = ? AND pending_clean_started_at IS NULL AND id <> ?
ORDER BY created_at ASC, id ASC
LIMIT 1`, string(q.WasteType), q.DatesHash, q.ExcludeStreamID))
	if err != nil {
		return nil, notFound(err, "calendar stream for "+string(q.WasteType)+"/"+q.DatesHash)
	}
	return cs, nil
}

// ListStreamsNeedingSync returns live streams without a calendar or with
// unreconciled events, most recently touched first.
func (s *Store) ListStreamsNeedingSync(ctx context.Context) ([]types.CalendarStream, error) {
	return s.listStreams(ctx,
		`(calendar_id IS NULL OR calendar_synced_at IS NULL) AND pending_clean_started_at IS NULL`,
		`updated_at DESC, id`)
}

// ListStreamsPendingCleanup returns streams in their deprecation grace period.
func (s *Store) ListStreamsPendingCleanup(ctx context.Context) ([]types.CalendarStream, error) {
	return s.listStreams(ctx, `pending_clean_started_at IS NOT NULL`, `pending_clean_until ASC, id`)
}

// ListCalendarStreams returns every stream, oldest first.
func (s *Store) ListCalendarStreams(ctx context.Context) ([]types.CalendarStream, error) {
	return s.listStreams(ctx, "", `created_at ASC, id`)
}

// ListOrphanStreamIDs returns live streams with zero inbound links.
func (s *Store) ListOrphanStreamIDs(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `
SELECT id FROM calendar_streams s
WHERE s.pending_clean_started_at IS NULL
  AND NOT EXISTS (SELECT 1 FROM group_calendar_links k WHERE k.calendar_stream_id = s.id)
ORDER BY s.created_at, s.id`)
	if err != nil {
		return nil, fmt.Errorf("list orphan streams: %w", err)
	}
	return collectStrings(rows)
}

// ListTrackedCalendarIDs returns the set of external calendar ids bound to
// any stream.
func (s *Store) ListTrackedCalendarIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.query(ctx, `SELECT calendar_id FROM calendar_streams WHERE calendar_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list calendar ids: %w", err)
	}
	ids, err := collectStrings(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// GetLinkedStreamID returns the stream a group is linked to, or ErrNotFound.
func (s *Store) GetLinkedStreamID(ctx context.Context, groupID string) (string, error) {
	var id string
	err := s.queryRow(ctx, `SELECT calendar_stream_id FROM group_calendar_links WHERE schedule_group_id = ?`,
		groupID).Scan(&id)
	if err != nil {
		return "", notFound(err, "link for "+groupID)
	}
	return id, nil
}

// ListLinks returns every link joined with the linked group's current pattern.
func (s *Store) ListLinks(ctx context.Context) ([]types.GroupLink, error) {
	rows, err := s.query(ctx, `
SELECT k.schedule_group_id, k.calendar_stream_id, g.waste_type, g.dates_hash, g.dates
FROM group_calendar_links k
JOIN schedule_groups g ON g.id = k.schedule_group_id
ORDER BY k.calendar_stream_id, k.schedule_group_id`)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.GroupLink
	for rows.Next() {
		var (
			l         types.GroupLink
			wt, dates string
		)
		if err := rows.Scan(&l.ScheduleGroupID, &l.CalendarStreamID, &wt, &l.DatesHash, &dates); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.WasteType = types.WasteType(wt)
		if l.Dates, err = decodeDates(dates); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CountLinks returns the number of groups linked to a stream.
func (s *Store) CountLinks(ctx context.Context, streamID string) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM group_calendar_links WHERE calendar_stream_id = ?`,
		streamID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count links of %s: %w", streamID, err)
	}
	return n, nil
}

// ListStreamEvents returns the event rows of a stream ordered by date.
func (s *Store) ListStreamEvents(ctx context.Context, streamID string) ([]types.StreamEvent, error) {
	rows, err := s.query(ctx, `
SELECT calendar_stream_id, date, event_id, status, error_message, updated_at
FROM calendar_stream_events WHERE calendar_stream_id = ? ORDER BY date`, streamID)
	if err != nil {
		return nil, fmt.Errorf("list events of %s: %w", streamID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.StreamEvent
	for rows.Next() {
		var (
			ev              types.StreamEvent
			eventID, errMsg sql.NullString
			status, updated string
		)
		if err := rows.Scan(&ev.CalendarStreamID, &ev.Date, &eventID, &status, &errMsg, &updated); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.EventID, ev.ErrorMessage = eventID.String, errMsg.String
		ev.Status = types.EventStatus(status)
		if ev.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListFetches returns the most recent ingest audit rows.
func (s *Store) ListFetches(ctx context.Context, limit int) ([]types.FetchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.query(ctx, `
SELECT id, source_url, status, validation_errors, record_count, fetched_at
FROM data_fetches ORDER BY fetched_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list fetches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.FetchRecord
	for rows.Next() {
		var (
			rec             types.FetchRecord
			status, fetched string
			verrs           sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.SourceURL, &status, &verrs, &rec.RecordCount, &fetched); err != nil {
			return nil, fmt.Errorf("scan fetch: %w", err)
		}
		rec.Status = types.FetchStatus(status)
		if verrs.Valid && verrs.String != "" {
			if err := json.Unmarshal([]byte(verrs.String), &rec.ValidationErrors); err != nil {
				return nil, fmt.Errorf("decode validation errors: %w", err)
			}
		}
		if rec.FetchedAt, err = parseTS(fetched); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
