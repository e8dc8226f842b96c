package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dwsmith1983/wastecal/internal/fingerprint"
	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// LocationCalendar resolves the calendar a location's subscribers should use
// for one waste type. The status is derived only from the linked stream's
// calendar_id and calendar_synced_at. A location whose group is not yet
// linked reports pending.
func (e *Engine) LocationCalendar(ctx context.Context, locationID int64, wasteType types.WasteType) (*types.LocationCalendar, error) {
	wasteType = e.wasteTypeOrDefault(wasteType)
	loc, err := e.provider.GetLocation(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("loading location %d: %w", locationID, err)
	}

	groupID := fingerprint.ScheduleGroupID(loc.ContentHash, wasteType)
	g, err := e.provider.GetScheduleGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("loading %s schedule of location %d: %w", wasteType, locationID, err)
	}

	out := &types.LocationCalendar{
		LocationID:      locationID,
		WasteType:       wasteType,
		ScheduleGroupID: groupID,
		Dates:           g.Dates,
		CalendarStatus:  types.StatusOf("", nil),
	}

	streamID, err := e.provider.GetLinkedStreamID(ctx, groupID)
	if errors.Is(err, provider.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	cs, err := e.provider.GetCalendarStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("loading stream %s: %w", streamID, err)
	}

	out.CalendarStreamID = cs.ID
	out.CalendarStatus = types.StatusOf(cs.CalendarID, cs.CalendarSyncedAt)
	if cs.CalendarID != "" {
		id := cs.CalendarID
		out.CalendarID = &id
		if e.linkFunc != nil {
			link := e.linkFunc(id)
			out.SubscriptionLink = &link
		}
	}
	return out, nil
}
