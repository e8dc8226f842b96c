package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dwsmith1983/wastecal/internal/fingerprint"
	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// FindOrCreateScheduleGroup returns the stable id of the group for
// (contentHash, wasteType), creating it or refreshing its dates as needed.
// A changed date set clears calendar_synced_at; an unchanged one is a no-op.
func (e *Engine) FindOrCreateScheduleGroup(ctx context.Context, dates []time.Time, wasteType types.WasteType, contentHash string) (string, error) {
	return e.findOrCreateScheduleGroup(ctx, e.provider, dates, wasteType, contentHash)
}

func (e *Engine) findOrCreateScheduleGroup(ctx context.Context, p provider.Provider, dates []time.Time, wasteType types.WasteType, contentHash string) (string, error) {
	wasteType = e.wasteTypeOrDefault(wasteType)
	id := fingerprint.ScheduleGroupID(contentHash, wasteType)
	r := fingerprint.Range(dates)
	now := e.now()

	g, err := p.GetScheduleGroup(ctx, id)
	switch {
	case errors.Is(err, provider.ErrNotFound):
		err = p.InsertScheduleGroup(ctx, types.ScheduleGroup{
			ID:          id,
			WasteType:   wasteType,
			ContentHash: contentHash,
			DateRange:   r,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return "", fmt.Errorf("creating schedule group %s: %w", id, err)
		}
		e.logger.Debug("schedule group created", "group", id, "wasteType", wasteType, "dates", r.DateCount)
		return id, nil
	case err != nil:
		return "", fmt.Errorf("loading schedule group %s: %w", id, err)
	}

	if g.DatesHash == r.DatesHash {
		return id, nil
	}
	if err := p.UpdateScheduleGroupDates(ctx, id, r, now); err != nil {
		return "", fmt.Errorf("updating schedule group %s: %w", id, err)
	}
	e.logger.Info("schedule group dates changed", "group", id, "from", g.DatesHash, "to", r.DatesHash)
	return id, nil
}
