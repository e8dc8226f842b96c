package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dwsmith1983/wastecal/internal/fingerprint"
	"github.com/dwsmith1983/wastecal/internal/metrics"
	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Linked      int      `json:"linked"`
	Created     int      `json:"created"`
	Updated     int      `json:"updated"`
	Invalidated int      `json:"invalidated"`
	Revived     int      `json:"revived"`
	Split       []string `json:"split,omitempty"`
	Merged      []string `json:"merged,omitempty"`
	Orphaned    []string `json:"orphaned,omitempty"`
}

// Retired lists every stream that entered pending-clean during the pass.
func (r ReconcileReport) Retired() []string {
	out := make([]string, 0, len(r.Split)+len(r.Orphaned))
	out = append(out, r.Split...)
	return append(out, r.Orphaned...)
}

type bucket struct {
	hash      string
	wasteType types.WasteType
	dates     []string
	groups    []string
}

// ReconcileCalendarStreams re-derives stream membership from the current
// schedule groups. It splits streams whose members diverged, folds duplicate
// patterns onto the oldest stream, links new groups and retires orphans. The
// whole pass is one transaction.
func (e *Engine) ReconcileCalendarStreams(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	err := e.withLock(ctx, func() error {
		return e.provider.WithTx(ctx, func(tx provider.Provider) error {
			var err error
			rep, err = e.reconcile(ctx, tx)
			return err
		})
	})
	if err != nil {
		return ReconcileReport{}, err
	}
	e.logReport(rep)
	e.countReport(ctx, rep)
	return rep, nil
}

func (e *Engine) reconcile(ctx context.Context, p provider.Provider) (ReconcileReport, error) {
	var rep ReconcileReport
	now := e.now()
	until := now.Add(e.grace)

	links, err := p.ListLinks(ctx)
	if err != nil {
		return rep, err
	}
	order, byStream := groupByStream(links)

	var single, splits []string
	for _, id := range order {
		if len(bucketize(byStream[id])) > 1 {
			splits = append(splits, id)
		} else {
			single = append(single, id)
		}
	}

	// In-place refresh first so that allocation below sees current patterns.
	for _, id := range single {
		l := byStream[id][0]
		cs, err := p.GetCalendarStream(ctx, id)
		if err != nil {
			return rep, fmt.Errorf("loading stream %s: %w", id, err)
		}
		changed := cs.DatesHash != l.DatesHash
		if !changed && !cs.PendingClean() {
			continue
		}
		err = p.UpdateStreamPattern(ctx, provider.PatternUpdate{
			StreamID:    id,
			Range:       fingerprint.RangeOf(l.Dates),
			ClearSynced: changed,
		}, now)
		if err != nil {
			return rep, fmt.Errorf("refreshing stream %s: %w", id, err)
		}
		rep.Updated++
		if changed {
			rep.Invalidated++
		}
		if cs.PendingClean() {
			rep.Revived++
			e.logger.Info("stream regained members", "stream", id)
		}
	}

	// Retire every stream being split before allocating, so no bucket can land
	// on a stream that is itself about to be abandoned.
	for _, id := range splits {
		if err := p.MarkStreamPendingClean(ctx, id, now, until); err != nil {
			return rep, fmt.Errorf("retiring split stream %s: %w", id, err)
		}
	}
	for _, id := range splits {
		buckets := bucketize(byStream[id])
		targets := make([]string, 0, len(buckets))
		for _, b := range buckets {
			target, created, err := e.allocate(ctx, p, b.wasteType, fingerprint.RangeOf(b.dates), id)
			if err != nil {
				return rep, err
			}
			if created {
				rep.Created++
			}
			for _, gid := range b.groups {
				if err := p.UpsertLink(ctx, gid, target.ID, now); err != nil {
					return rep, err
				}
			}
			targets = append(targets, target.ID)
		}
		rep.Split = append(rep.Split, id)
		e.logger.Info("stream split", "stream", id, "buckets", len(buckets), "targets", targets)
		e.fireAlert(types.Alert{
			Level:    types.AlertLevelInfo,
			Category: types.AlertCategoryStreamSplit,
			StreamID: id,
			Message:  fmt.Sprintf("stream %s split into %d streams; retiring after %s", id, len(buckets), e.grace),
			Details:  map[string]interface{}{"targets": targets, "pendingCleanUntil": until},
		})
	}

	unlinked, err := p.ListUnlinkedScheduleGroups(ctx)
	if err != nil {
		return rep, err
	}
	for _, g := range unlinked {
		target, created, err := e.allocate(ctx, p, g.WasteType, g.DateRange, "")
		if err != nil {
			return rep, err
		}
		if created {
			rep.Created++
		}
		if err := p.UpsertLink(ctx, g.ID, target.ID, now); err != nil {
			return rep, err
		}
		rep.Linked++
	}

	if len(single) > 0 {
		merged, err := e.mergeDuplicates(ctx, p, single)
		if err != nil {
			return rep, err
		}
		rep.Merged = merged
	}

	orphans, err := p.ListOrphanStreamIDs(ctx)
	if err != nil {
		return rep, err
	}
	for _, id := range orphans {
		if err := p.MarkStreamPendingClean(ctx, id, now, until); err != nil {
			return rep, fmt.Errorf("retiring orphan stream %s: %w", id, err)
		}
		rep.Orphaned = append(rep.Orphaned, id)
	}
	return rep, nil
}

// mergeDuplicates moves the members of a live stream onto an older live
// stream with the same pattern. The emptied stream is left for the orphan
// sweep.
func (e *Engine) mergeDuplicates(ctx context.Context, p provider.Provider, candidates []string) ([]string, error) {
	links, err := p.ListLinks(ctx)
	if err != nil {
		return nil, err
	}
	_, members := groupByStream(links)
	now := e.now()

	var merged []string
	for _, id := range candidates {
		cs, err := p.GetCalendarStream(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading stream %s: %w", id, err)
		}
		if cs.PendingClean() || len(members[id]) == 0 {
			continue
		}
		other, err := p.FindStreamByPattern(ctx, provider.PatternQuery{
			WasteType:       cs.WasteType,
			DatesHash:       cs.DatesHash,
			ExcludeStreamID: id,
		})
		if errors.Is(err, provider.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !older(other, cs) {
			continue
		}
		for _, l := range members[id] {
			if err := p.UpsertLink(ctx, l.ScheduleGroupID, other.ID, now); err != nil {
				return nil, err
			}
		}
		members[other.ID] = append(members[other.ID], members[id]...)
		delete(members, id)
		merged = append(merged, id)
		e.logger.Info("stream merged", "stream", id, "into", other.ID)
	}
	return merged, nil
}

func older(a, b *types.CalendarStream) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func groupByStream(links []types.GroupLink) ([]string, map[string][]types.GroupLink) {
	var order []string
	by := make(map[string][]types.GroupLink)
	for _, l := range links {
		if _, ok := by[l.CalendarStreamID]; !ok {
			order = append(order, l.CalendarStreamID)
		}
		by[l.CalendarStreamID] = append(by[l.CalendarStreamID], l)
	}
	return order, by
}

// bucketize groups a stream's links by dates hash, sorted by hash.
func bucketize(links []types.GroupLink) []bucket {
	idx := make(map[string]int)
	var out []bucket
	for _, l := range links {
		i, ok := idx[l.DatesHash]
		if !ok {
			i = len(out)
			idx[l.DatesHash] = i
			out = append(out, bucket{hash: l.DatesHash, wasteType: l.WasteType, dates: l.Dates})
		}
		out[i].groups = append(out[i].groups, l.ScheduleGroupID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].hash < out[j].hash })
	return out
}

func (e *Engine) countReport(ctx context.Context, rep ReconcileReport) {
	metrics.StreamsSplit.Add(ctx, int64(len(rep.Split)))
	metrics.StreamsRetired.Add(ctx, int64(len(rep.Retired())))
}

func (e *Engine) logReport(rep ReconcileReport) {
	e.logger.Info("reconcile complete",
		"linked", rep.Linked,
		"created", rep.Created,
		"updated", rep.Updated,
		"invalidated", rep.Invalidated,
		"revived", rep.Revived,
		"split", len(rep.Split),
		"merged", len(rep.Merged),
		"orphaned", len(rep.Orphaned),
	)
}
