package calsync

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dwsmith1983/wastecal/internal/calendar"
	"github.com/dwsmith1983/wastecal/internal/lifecycle"
	"github.com/dwsmith1983/wastecal/internal/metrics"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

const noticeSummary = "⚠️ Svarbu: atnaujinkite kalendoriaus prenumeratą"

// CleanupReport summarizes one deprecation sweep.
type CleanupReport struct {
	Notices int      `json:"notices"`
	Deleted []string `json:"deleted,omitempty"`
	Kept    []string `json:"kept,omitempty"`
	Failed  int      `json:"failed"`
}

// PostCleanupNotice posts a short series of resubscribe notices onto the
// still-live calendar of a retiring stream and stamps the notice time. A
// stream that never got a calendar has nobody to notify and is left as is.
func (s *Syncer) PostCleanupNotice(ctx context.Context, streamID string) error {
	cs, err := s.provider.GetCalendarStream(ctx, streamID)
	if err != nil {
		return fmt.Errorf("loading stream %s: %w", streamID, err)
	}
	if !cs.PendingClean() {
		return fmt.Errorf("stream %s: %w", streamID, ErrNotPendingClean)
	}
	if cs.CalendarID == "" {
		return nil
	}

	now := s.now().In(s.cfg.Location)
	days := 1
	if cs.PendingCleanUntil != nil {
		days = max(1, int(math.Ceil(cs.PendingCleanUntil.Sub(now).Hours()/24)))
	}
	desc := fmt.Sprintf("Šio adreso atliekų grafikas pasikeitė. "+
		"Prašome atnaujinti prenumeratą svetainėje (nemenkom.lt). "+
		"Šis kalendorius bus pašalintas po %d dienų.", days)

	for i := range noticeDays {
		d := now.AddDate(0, 0, i).Format(types.DateLayout)
		start, err := s.at(d, noticeStartHour)
		if err != nil {
			return err
		}
		end, err := s.at(d, noticeEndHour)
		if err != nil {
			return err
		}
		if _, err := s.client.InsertEvent(ctx, cs.CalendarID, calendar.Event{
			Summary:     noticeSummary,
			Description: desc,
			Start:       start,
			End:         end,
		}); err != nil {
			return fmt.Errorf("posting notice %d for %s: %w", i+1, streamID, err)
		}
	}

	if err := s.provider.MarkStreamNoticeSent(ctx, streamID, s.now()); err != nil {
		return err
	}
	metrics.NoticesPosted.Add(ctx, 1)
	s.logger.Info("cleanup notice posted", "stream", streamID, "calendar", cs.CalendarID)
	return nil
}

// DeleteCalendarForStream deletes a retiring stream's external calendar and
// its local record, but only while no schedule group links to it. It
// reports whether anything was deleted.
func (s *Syncer) DeleteCalendarForStream(ctx context.Context, streamID string) (bool, error) {
	cs, err := s.provider.GetCalendarStream(ctx, streamID)
	if err != nil {
		return false, fmt.Errorf("loading stream %s: %w", streamID, err)
	}
	if err := lifecycle.Transition(lifecycle.StateOf(cs), types.StreamDeleted); err != nil {
		return false, fmt.Errorf("stream %s: %w: %v", streamID, ErrNotPendingClean, err)
	}

	n, err := s.provider.CountLinks(ctx, streamID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.logger.Info("retiring stream regained members, keeping calendar", "stream", streamID, "links", n)
		return false, nil
	}

	if cs.CalendarID != "" {
		if err := s.client.Delete(ctx, cs.CalendarID); err != nil && !errors.Is(err, calendar.ErrNotFound) {
			return false, fmt.Errorf("deleting calendar %s: %w", cs.CalendarID, err)
		}
		metrics.CalendarsDeleted.Add(ctx, 1)
	}
	if err := s.provider.DeleteCalendarStream(ctx, streamID); err != nil {
		return false, err
	}
	s.logger.Info("retired stream deleted", "stream", streamID, "calendar", cs.CalendarID)
	return true, nil
}

// RunCleanup walks every pending-clean stream: it posts the notice once and
// deletes the stream after its grace period. Failures are logged, alerted
// and retried on the next sweep.
func (s *Syncer) RunCleanup(ctx context.Context) (CleanupReport, error) {
	var rep CleanupReport
	streams, err := s.provider.ListStreamsPendingCleanup(ctx)
	if err != nil {
		return rep, err
	}
	now := s.now()

	for _, cs := range streams {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if cs.CalendarID != "" && cs.PendingCleanNoticeSentAt == nil {
			// A failed notice does not hold back deletion once the grace
			// period is over.
			if err := s.PostCleanupNotice(ctx, cs.ID); err != nil {
				s.cleanupFailed(&rep, cs.ID, "notice", err)
			} else {
				rep.Notices++
			}
		}
		if cs.PendingCleanUntil == nil || now.Before(*cs.PendingCleanUntil) {
			continue
		}
		deleted, err := s.DeleteCalendarForStream(ctx, cs.ID)
		if err != nil {
			s.cleanupFailed(&rep, cs.ID, "delete", err)
			continue
		}
		if deleted {
			rep.Deleted = append(rep.Deleted, cs.ID)
		} else {
			rep.Kept = append(rep.Kept, cs.ID)
		}
	}
	return rep, nil
}

func (s *Syncer) cleanupFailed(rep *CleanupReport, streamID, step string, err error) {
	rep.Failed++
	s.logger.Error("cleanup step failed", "stream", streamID, "step", step, "error", err)
	s.fireAlert(types.Alert{
		Level:    types.AlertLevelWarning,
		Category: types.AlertCategoryCleanupFailed,
		StreamID: streamID,
		Message:  fmt.Sprintf("cleanup %s for stream %s failed: %v", step, streamID, err),
	})
}

// OrphanReport lists provider calendars that no stream tracks.
type OrphanReport struct {
	Orphans []calendar.Calendar `json:"orphans"`
	Deleted int                 `json:"deleted"`
	Failed  int                 `json:"failed"`
	DryRun  bool                `json:"dryRun"`
}

// CleanupOrphanedCalendars finds calendars at the provider that no stream
// references, typically left behind by a failed Phase 1 persist, and deletes
// them unless dryRun is set. The account's primary calendar is never touched.
func (s *Syncer) CleanupOrphanedCalendars(ctx context.Context, dryRun bool) (OrphanReport, error) {
	rep := OrphanReport{DryRun: dryRun}
	all, err := s.client.List(ctx)
	if err != nil {
		return rep, fmt.Errorf("listing calendars: %w", err)
	}
	tracked, err := s.provider.ListTrackedCalendarIDs(ctx)
	if err != nil {
		return rep, err
	}
	for _, c := range all {
		if c.Primary || tracked[c.ID] {
			continue
		}
		rep.Orphans = append(rep.Orphans, c)
	}
	if dryRun {
		return rep, nil
	}

	for _, c := range rep.Orphans {
		if err := s.client.Delete(ctx, c.ID); err != nil && !errors.Is(err, calendar.ErrNotFound) {
			rep.Failed++
			s.logger.Error("failed to delete orphaned calendar", "calendar", c.ID, "name", c.Summary, "error", err)
			continue
		}
		rep.Deleted++
		metrics.CalendarsDeleted.Add(ctx, 1)
		s.logger.Info("orphaned calendar deleted", "calendar", c.ID, "name", c.Summary)
	}
	return rep, nil
}
