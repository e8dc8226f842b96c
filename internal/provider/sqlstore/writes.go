package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// UpsertLocation inserts or refreshes a location by its address key and
// returns its id.
func (s *Store) UpsertLocation(ctx context.Context, loc types.Location) (int64, error) {
	now := ts(stamp(loc.UpdatedAt))
	var id int64
	err := s.queryRow(ctx, `
INSERT INTO locations (admin_area, settlement, street, house_numbers, content_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (admin_area, settlement, street, house_numbers) DO UPDATE SET
    content_hash = excluded.content_hash,
    updated_at = excluded.updated_at
RETURNING id`,
		loc.AdminArea, loc.Settlement, loc.Street, loc.HouseNumbers, loc.ContentHash, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert location %s/%s/%s: %w", loc.AdminArea, loc.Settlement, loc.Street, err)
	}
	return id, nil
}

// InsertScheduleGroup stores a new schedule group.
func (s *Store) InsertScheduleGroup(ctx context.Context, g types.ScheduleGroup) error {
	dates, err := encodeDates(g.Dates)
	if err != nil {
		return err
	}
	created := stamp(g.CreatedAt)
	_, err = s.exec(ctx, `
INSERT INTO schedule_groups (id, waste_type, content_hash, dates, dates_hash, first_date, last_date,
    date_count, calendar_synced_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, string(g.WasteType), g.ContentHash, dates, g.DatesHash, nullStr(g.FirstDate), nullStr(g.LastDate),
		g.DateCount, nullTS(g.CalendarSyncedAt), ts(created), ts(stamp(g.UpdatedAt)),
	)
	if err != nil {
		return fmt.Errorf("insert schedule group %s: %w", g.ID, err)
	}
	return nil
}

// UpdateScheduleGroupDates replaces a group's dates and clears its sync stamp.
func (s *Store) UpdateScheduleGroupDates(ctx context.Context, id string, r types.DateRange, at time.Time) error {
	dates, err := encodeDates(r.Dates)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `
UPDATE schedule_groups SET dates = ?, dates_hash = ?, first_date = ?, last_date = ?, date_count = ?,
    calendar_synced_at = NULL, updated_at = ?
WHERE id = ?`,
		dates, r.DatesHash, nullStr(r.FirstDate), nullStr(r.LastDate), r.DateCount, ts(at), id,
	)
	if err != nil {
		return fmt.Errorf("update schedule group %s: %w", id, err)
	}
	return mustAffect(res, "schedule group "+id)
}

// InsertCalendarStream stores a new calendar stream.
func (s *Store) InsertCalendarStream(ctx context.Context, cs types.CalendarStream) error {
	dates, err := encodeDates(cs.Dates)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
INSERT INTO calendar_streams (id, waste_type, dates_hash, dates, first_date, last_date, date_count,
    calendar_id, calendar_synced_at, pending_clean_started_at, pending_clean_until,
    pending_clean_notice_sent_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cs.ID, string(cs.WasteType), cs.DatesHash, dates, nullStr(cs.FirstDate), nullStr(cs.LastDate), cs.DateCount,
		nullStr(cs.CalendarID), nullTS(cs.CalendarSyncedAt), nullTS(cs.PendingCleanStartedAt),
		nullTS(cs.PendingCleanUntil), nullTS(cs.PendingCleanNoticeSentAt),
		ts(stamp(cs.CreatedAt)), ts(stamp(cs.UpdatedAt)),
	)
	if err != nil {
		return fmt.Errorf("insert calendar stream %s: %w", cs.ID, err)
	}
	return nil
}

// UpdateStreamPattern rewrites a stream's pattern fields and clears its
// pending-clean timers. The sync stamp is cleared only when requested.
func (s *Store) UpdateStreamPattern(ctx context.Context, u provider.PatternUpdate, at time.Time) error {
	dates, err := encodeDates(u.Range.Dates)
	if err != nil {
		return err
	}
	q := `
UPDATE calendar_streams SET dates_hash = ?, dates = ?, first_date = ?, last_date = ?, date_count = ?,
    pending_clean_started_at = NULL, pending_clean_until = NULL, pending_clean_notice_sent_at = NULL,
    updated_at = ?`
	if u.ClearSynced {
		q += `, calendar_synced_at = NULL`
	}
	q += ` WHERE id = ?`
	res, err := s.exec(ctx, q,
		u.Range.DatesHash, dates, nullStr(u.Range.FirstDate), nullStr(u.Range.LastDate), u.Range.DateCount,
		ts(at), u.StreamID,
	)
	if err != nil {
		return fmt.Errorf("update stream pattern %s: %w", u.StreamID, err)
	}
	return mustAffect(res, "calendar stream "+u.StreamID)
}

// MarkStreamPendingClean starts the deprecation grace period and resets the
// notice stamp.
func (s *Store) MarkStreamPendingClean(ctx context.Context, id string, startedAt, until time.Time) error {
	res, err := s.exec(ctx, `
UPDATE calendar_streams SET pending_clean_started_at = ?, pending_clean_until = ?,
    pending_clean_notice_sent_at = NULL, updated_at = ?
WHERE id = ?`,
		ts(startedAt), ts(until), ts(startedAt), id,
	)
	if err != nil {
		return fmt.Errorf("mark pending clean %s: %w", id, err)
	}
	return mustAffect(res, "calendar stream "+id)
}

// SetStreamCalendarID binds an external calendar to a stream. Event rows
// tracked against a previous calendar are dropped and the sync stamp cleared
// so the next pass repopulates the new calendar.
func (s *Store) SetStreamCalendarID(ctx context.Context, id, calendarID string, at time.Time) error {
	return s.WithTx(ctx, func(tx provider.Provider) error {
		st := tx.(*Store)
		var prev sql.NullString
		if err := st.queryRow(ctx, `SELECT calendar_id FROM calendar_streams WHERE id = ?`, id).Scan(&prev); err != nil {
			return notFound(err, "calendar stream "+id)
		}
		if prev.Valid && prev.String == calendarID {
			return nil
		}
		if _, err := st.exec(ctx, `DELETE FROM calendar_stream_events WHERE calendar_stream_id = ?`, id); err != nil {
			return fmt.Errorf("clear events of %s: %w", id, err)
		}
		if _, err := st.exec(ctx, `
UPDATE calendar_streams SET calendar_id = ?, calendar_synced_at = NULL, updated_at = ? WHERE id = ?`,
			calendarID, ts(at), id,
		); err != nil {
			return fmt.Errorf("set calendar id %s: %w", id, err)
		}
		return nil
	})
}

// MarkStreamSynced stamps calendar_synced_at.
func (s *Store) MarkStreamSynced(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx, `UPDATE calendar_streams SET calendar_synced_at = ?, updated_at = ? WHERE id = ?`,
		ts(at), ts(at), id)
	if err != nil {
		return fmt.Errorf("mark synced %s: %w", id, err)
	}
	return mustAffect(res, "calendar stream "+id)
}

// MarkStreamNoticeSent stamps pending_clean_notice_sent_at.
func (s *Store) MarkStreamNoticeSent(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx, `
UPDATE calendar_streams SET pending_clean_notice_sent_at = ?, updated_at = ? WHERE id = ?`,
		ts(at), ts(at), id)
	if err != nil {
		return fmt.Errorf("mark notice sent %s: %w", id, err)
	}
	return mustAffect(res, "calendar stream "+id)
}

// DeleteCalendarStream removes a stream with its event rows and any links.
func (s *Store) DeleteCalendarStream(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx provider.Provider) error {
		st := tx.(*Store)
		if _, err := st.exec(ctx, `DELETE FROM calendar_stream_events WHERE calendar_stream_id = ?`, id); err != nil {
			return fmt.Errorf("delete events of %s: %w", id, err)
		}
		if _, err := st.exec(ctx, `DELETE FROM group_calendar_links WHERE calendar_stream_id = ?`, id); err != nil {
			return fmt.Errorf("delete links of %s: %w", id, err)
		}
		res, err := st.exec(ctx, `DELETE FROM calendar_streams WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete calendar stream %s: %w", id, err)
		}
		return mustAffect(res, "calendar stream "+id)
	})
}

// UpsertLink points a schedule group at a stream, replacing any prior link.
func (s *Store) UpsertLink(ctx context.Context, groupID, streamID string, at time.Time) error {
	now := ts(at)
	_, err := s.exec(ctx, `
INSERT INTO group_calendar_links (schedule_group_id, calendar_stream_id, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (schedule_group_id) DO UPDATE SET
    calendar_stream_id = excluded.calendar_stream_id,
    updated_at = excluded.updated_at`,
		groupID, streamID, now, now,
	)
	if err != nil {
		return fmt.Errorf("link %s -> %s: %w", groupID, streamID, err)
	}
	return nil
}

// PutStreamEvent inserts or replaces the event row for one stream date.
func (s *Store) PutStreamEvent(ctx context.Context, ev types.StreamEvent) error {
	now := ts(stamp(ev.UpdatedAt))
	_, err := s.exec(ctx, `
INSERT INTO calendar_stream_events (calendar_stream_id, date, event_id, status, error_message, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (calendar_stream_id, date) DO UPDATE SET
    event_id = excluded.event_id,
    status = excluded.status,
    error_message = excluded.error_message,
    updated_at = excluded.updated_at`,
		ev.CalendarStreamID, ev.Date, nullStr(ev.EventID), string(ev.Status), nullStr(ev.ErrorMessage), now, now,
	)
	if err != nil {
		return fmt.Errorf("put event %s/%s: %w", ev.CalendarStreamID, ev.Date, err)
	}
	return nil
}

// DeleteStreamEvent removes the event row for one stream date. Missing rows
// are not an error.
func (s *Store) DeleteStreamEvent(ctx context.Context, streamID, date string) error {
	if _, err := s.exec(ctx, `DELETE FROM calendar_stream_events WHERE calendar_stream_id = ? AND date = ?`,
		streamID, date); err != nil {
		return fmt.Errorf("delete event %s/%s: %w", streamID, date, err)
	}
	return nil
}

// RecordFetch appends an ingest audit row.
func (s *Store) RecordFetch(ctx context.Context, rec types.FetchRecord) error {
	var verrs any
	if len(rec.ValidationErrors) > 0 {
		b, err := json.Marshal(rec.ValidationErrors)
		if err != nil {
			return fmt.Errorf("encode validation errors: %w", err)
		}
		verrs = string(b)
	}
	_, err := s.exec(ctx, `
INSERT INTO data_fetches (id, source_url, status, validation_errors, record_count, fetched_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SourceURL, string(rec.Status), verrs, rec.RecordCount, ts(stamp(rec.FetchedAt)),
	)
	if err != nil {
		return fmt.Errorf("record fetch %s: %w", rec.ID, err)
	}
	return nil
}
