package calsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/wastecal/internal/calendar"
	"github.com/dwsmith1983/wastecal/internal/metrics"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// SyncResult counts what one Phase 2 pass did.
type SyncResult struct {
	StreamID     string `json:"streamId"`
	CalendarID   string `json:"calendarId"`
	Added        int    `json:"added"`
	Deleted      int    `json:"deleted"`
	Retried      int    `json:"retried"`
	Failed       int    `json:"failed"`
	DeleteErrors int    `json:"deleteErrors"`
	Unchanged    int    `json:"unchanged"`
}

// Plan is the per-date diff between a stream's dates and its tracked events.
type Plan struct {
	Add       []string
	Delete    []string
	Retry     []string
	Unchanged []string
}

// Diff computes the sync plan. Dates present on both sides are unchanged
// unless their event is in error, in which case they are retried.
func Diff(current []string, existing []types.StreamEvent) Plan {
	cur := make(map[string]bool, len(current))
	for _, d := range current {
		cur[d] = true
	}
	have := make(map[string]types.StreamEvent, len(existing))
	for _, ev := range existing {
		have[ev.Date] = ev
	}

	var p Plan
	for d := range cur {
		ev, ok := have[d]
		switch {
		case !ok:
			p.Add = append(p.Add, d)
		case ev.Status == types.EventError:
			p.Retry = append(p.Retry, d)
		default:
			p.Unchanged = append(p.Unchanged, d)
		}
	}
	for d := range have {
		if !cur[d] {
			p.Delete = append(p.Delete, d)
		}
	}
	sort.Strings(p.Add)
	sort.Strings(p.Delete)
	sort.Strings(p.Retry)
	sort.Strings(p.Unchanged)
	return p
}

// SyncCalendarStream applies the add/delete/retry diff for one stream and
// stamps calendar_synced_at once the pass completes. Per-date provider
// failures are recorded on the event row and do not fail the pass; storage
// errors do, after every in-flight date has recorded its outcome.
func (s *Syncer) SyncCalendarStream(ctx context.Context, streamID string) (*SyncResult, error) {
	ctx, span := s.tracer.Start(ctx, "calsync.SyncCalendarStream",
		trace.WithAttributes(attribute.String("stream.id", streamID)))
	defer span.End()

	res, err := s.syncStream(ctx, streamID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("events.added", res.Added),
		attribute.Int("events.deleted", res.Deleted),
		attribute.Int("events.retried", res.Retried),
		attribute.Int("events.failed", res.Failed),
	)
	return res, nil
}

func (s *Syncer) syncStream(ctx context.Context, streamID string) (*SyncResult, error) {
	cs, err := s.provider.GetCalendarStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("loading stream %s: %w", streamID, err)
	}
	if cs.PendingClean() {
		return nil, fmt.Errorf("stream %s: %w", streamID, ErrPendingClean)
	}
	if cs.CalendarID == "" {
		return nil, fmt.Errorf("stream %s: %w", streamID, ErrNoCalendar)
	}

	existing, err := s.provider.ListStreamEvents(ctx, streamID)
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]types.StreamEvent, len(existing))
	for _, ev := range existing {
		byDate[ev.Date] = ev
	}
	plan := Diff(cs.Dates, existing)
	s.logger.Info("syncing stream",
		"stream", streamID,
		"add", len(plan.Add),
		"delete", len(plan.Delete),
		"retry", len(plan.Retry),
		"unchanged", len(plan.Unchanged),
	)

	res := &SyncResult{StreamID: streamID, CalendarID: cs.CalendarID, Unchanged: len(plan.Unchanged)}
	// mu serializes event-row writes, counters and errs for this pass.
	var (
		mu   sync.Mutex
		errs []error
	)
	// Once the provider call has returned, its outcome is recorded even if
	// ctx is cancelled: a created event with no row is re-inserted next pass.
	store := context.WithoutCancel(ctx)

	// A plain group: a storage error on one date must not cancel siblings
	// whose external call is already in flight.
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for _, date := range plan.Delete {
		ev := byDate[date]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			var callErr error
			if ev.EventID != "" {
				callErr = s.client.DeleteEvent(ctx, cs.CalendarID, ev.EventID)
				if errors.Is(callErr, calendar.ErrNotFound) {
					callErr = nil
				}
			}

			mu.Lock()
			defer mu.Unlock()
			// The local row is removed even when the provider delete failed, so
			// failed deletes never pile up as a retry backlog. The price is a
			// possibly orphaned external event, which is logged and alerted.
			if err := s.provider.DeleteStreamEvent(store, streamID, date); err != nil {
				errs = append(errs, fmt.Errorf("date %s: %w", date, err))
				return nil
			}
			if callErr != nil {
				res.DeleteErrors++
				s.logger.Error("failed to delete event", "stream", streamID, "date", date, "event", ev.EventID, "error", callErr)
				s.fireAlert(types.Alert{
					Level:    types.AlertLevelWarning,
					Category: types.AlertCategoryOrphanedEvent,
					StreamID: streamID,
					Message:  fmt.Sprintf("event %s on %s may remain on calendar %s: %v", ev.EventID, date, cs.CalendarID, callErr),
					Details:  map[string]interface{}{"calendarId": cs.CalendarID, "eventId": ev.EventID, "date": date},
				})
				return nil
			}
			res.Deleted++
			metrics.EventsDeleted.Add(store, 1)
			return nil
		})
	}

	insert := func(date string, retry bool) func() error {
		return func() error {
			if ctx.Err() != nil {
				return nil
			}
			ev, err := s.pickupEvent(cs.WasteType, date)
			var eventID string
			if err == nil {
				eventID, err = s.client.InsertEvent(ctx, cs.CalendarID, ev)
			}

			mu.Lock()
			defer mu.Unlock()
			row := types.StreamEvent{CalendarStreamID: streamID, Date: date, UpdatedAt: s.now()}
			if err != nil {
				row.Status = types.EventError
				row.ErrorMessage = err.Error()
			} else {
				row.Status = types.EventCreated
				row.EventID = eventID
			}
			if perr := s.provider.PutStreamEvent(store, row); perr != nil {
				if err == nil {
					s.logger.Error("created event has no local row", "stream", streamID, "date", date, "event", eventID, "error", perr)
				}
				errs = append(errs, fmt.Errorf("date %s: %w", date, perr))
				return nil
			}
			switch {
			case err != nil:
				res.Failed++
				metrics.EventErrors.Add(store, 1)
				s.logger.Error("failed to create event", "stream", streamID, "date", date, "error", err)
			case retry:
				res.Retried++
				metrics.EventsRetried.Add(store, 1)
			default:
				res.Added++
				metrics.EventsAdded.Add(store, 1)
			}
			return nil
		}
	}
	for _, date := range plan.Add {
		g.Go(insert(date, false))
	}
	for _, date := range plan.Retry {
		g.Go(insert(date, true))
	}

	_ = g.Wait()
	if len(errs) > 0 {
		return nil, fmt.Errorf("syncing stream %s: %w", streamID, errors.Join(errs...))
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("syncing stream %s: %w", streamID, err)
	}

	if err := s.provider.MarkStreamSynced(ctx, streamID, s.now()); err != nil {
		return nil, fmt.Errorf("marking stream %s synced: %w", streamID, err)
	}
	s.logger.Info("stream synced",
		"stream", streamID,
		"added", res.Added,
		"deleted", res.Deleted,
		"retried", res.Retried,
		"failed", res.Failed,
	)
	return res, nil
}

func (s *Syncer) pickupEvent(wt types.WasteType, date string) (calendar.Event, error) {
	start, err := s.at(date, s.cfg.StartHour)
	if err != nil {
		return calendar.Event{}, err
	}
	end, err := s.at(date, s.cfg.EndHour)
	if err != nil {
		return calendar.Event{}, err
	}
	return calendar.Event{
		Summary:     s.registry.Summary(wt),
		Description: s.registry.Description(wt),
		Start:       start,
		End:         end,
		Reminders:   s.cfg.Reminders,
	}, nil
}
