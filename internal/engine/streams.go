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

// StreamRequest selects or creates a calendar stream for a date pattern.
type StreamRequest struct {
	Dates     []time.Time
	WasteType types.WasteType
	// ExcludeStreamID is never returned, even when its pattern matches. The
	// reconciler sets it to the stream being split so that former members
	// cannot be re-absorbed by it.
	ExcludeStreamID string
}

// FindOrCreateCalendarStream returns the oldest live stream with the
// requested (waste type, dates hash), or creates one with a random id.
func (e *Engine) FindOrCreateCalendarStream(ctx context.Context, req StreamRequest) (string, error) {
	cs, _, err := e.allocate(ctx, e.provider, e.wasteTypeOrDefault(req.WasteType), fingerprint.Range(req.Dates), req.ExcludeStreamID)
	if err != nil {
		return "", err
	}
	return cs.ID, nil
}

// allocate reports whether the returned stream was created by this call.
func (e *Engine) allocate(ctx context.Context, p provider.Provider, wt types.WasteType, r types.DateRange, exclude string) (*types.CalendarStream, bool, error) {
	cs, err := p.FindStreamByPattern(ctx, provider.PatternQuery{
		WasteType:       wt,
		DatesHash:       r.DatesHash,
		ExcludeStreamID: exclude,
	})
	if err == nil {
		return cs, false, nil
	}
	if !errors.Is(err, provider.ErrNotFound) {
		return nil, false, fmt.Errorf("finding stream for %s/%s: %w", wt, r.DatesHash, err)
	}

	now := e.now()
	cs = &types.CalendarStream{
		ID:        e.newID(),
		WasteType: wt,
		DateRange: r,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.InsertCalendarStream(ctx, *cs); err != nil {
		return nil, false, fmt.Errorf("creating stream for %s/%s: %w", wt, r.DatesHash, err)
	}
	e.logger.Info("calendar stream created", "stream", cs.ID, "wasteType", wt, "datesHash", r.DatesHash)
	return cs, true, nil
}
