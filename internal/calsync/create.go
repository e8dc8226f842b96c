package calsync

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/wastecal/internal/calendar"
	"github.com/dwsmith1983/wastecal/internal/lifecycle"
	"github.com/dwsmith1983/wastecal/internal/metrics"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// CreateResult describes the outcome of Phase 1 for one stream.
type CreateResult struct {
	CalendarID       string `json:"calendarId"`
	Name             string `json:"name,omitempty"`
	SubscriptionLink string `json:"subscriptionLink"`
	Existing         bool   `json:"existing"`
	// Warning is set when the calendar exists at the provider but could not be
	// recorded locally. CalendarID then names the untracked calendar.
	Warning string `json:"warning,omitempty"`
}

// CreateCalendarForStream makes sure the stream has a live, public external
// calendar. A stored calendar that still resolves is reused; one that no
// longer exists is replaced.
func (s *Syncer) CreateCalendarForStream(ctx context.Context, streamID string) (*CreateResult, error) {
	ctx, span := s.tracer.Start(ctx, "calsync.CreateCalendarForStream",
		trace.WithAttributes(attribute.String("stream.id", streamID)))
	defer span.End()

	res, err := s.createCalendar(ctx, streamID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("calendar.id", res.CalendarID), attribute.Bool("calendar.existing", res.Existing))
	return res, nil
}

func (s *Syncer) createCalendar(ctx context.Context, streamID string) (*CreateResult, error) {
	cs, err := s.provider.GetCalendarStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("loading stream %s: %w", streamID, err)
	}
	if lifecycle.StateOf(cs) == types.StreamPendingClean {
		return nil, fmt.Errorf("stream %s: %w", streamID, ErrPendingClean)
	}

	if cs.CalendarID != "" {
		cal, err := s.client.Get(ctx, cs.CalendarID)
		switch {
		case err == nil:
			if err := s.client.EnsurePublic(ctx, cs.CalendarID); err != nil {
				s.logger.Warn("could not ensure calendar is public", "stream", streamID, "calendar", cs.CalendarID, "error", err)
			}
			return &CreateResult{
				CalendarID:       cs.CalendarID,
				Name:             cal.Summary,
				SubscriptionLink: s.client.SubscriptionLink(cs.CalendarID),
				Existing:         true,
			}, nil
		case errors.Is(err, calendar.ErrNotFound):
			s.logger.Warn("stored calendar no longer exists, recreating", "stream", streamID, "calendar", cs.CalendarID)
		default:
			return nil, fmt.Errorf("checking calendar %s: %w", cs.CalendarID, err)
		}
	}

	area, err := s.provider.AdminAreaForStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("resolving area for %s: %w", streamID, err)
	}
	if area == "" {
		area = s.cfg.DefaultArea
	}
	label := s.registry.Label(cs.WasteType)
	name := fmt.Sprintf("%s - %s - %s", area, label, shortID(streamID))

	calID, err := s.client.Create(ctx, calendar.Calendar{
		Summary:     name,
		Description: fmt.Sprintf("Buitinių atliekų surinkimo grafikas: %s seniūnija, %s. Automatiškai atnaujinamas.", area, label),
		TimeZone:    s.cfg.Location.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating calendar for %s: %w", streamID, err)
	}
	metrics.CalendarsCreated.Add(ctx, 1)

	if err := s.client.EnsurePublic(ctx, calID); err != nil {
		s.logger.Warn("failed to make calendar public, may need manual sharing", "stream", streamID, "calendar", calID, "error", err)
	}

	res := &CreateResult{
		CalendarID:       calID,
		Name:             name,
		SubscriptionLink: s.client.SubscriptionLink(calID),
	}
	if err := s.provider.SetStreamCalendarID(ctx, streamID, calID, s.now()); err != nil {
		res.Warning = fmt.Sprintf("calendar %s created but not recorded for stream %s: %v", calID, streamID, err)
		s.logger.Error("calendar created but not tracked", "stream", streamID, "calendar", calID, "error", err)
		s.fireAlert(types.Alert{
			Level:    types.AlertLevelWarning,
			Category: types.AlertCategoryUntrackedCalendar,
			StreamID: streamID,
			Message:  res.Warning,
			Details:  map[string]interface{}{"calendarId": calID},
		})
		return res, nil
	}

	s.logger.Info("calendar created", "stream", streamID, "calendar", calID, "name", name)
	return res, nil
}
