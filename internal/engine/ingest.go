package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/wastecal/internal/fingerprint"
	"github.com/dwsmith1983/wastecal/internal/metrics"
	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// ValidationError rejects an ingest batch before anything is written.
type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Error() string {
	const shown = 3
	head := v.Problems
	if len(head) > shown {
		head = head[:shown]
	}
	msg := fmt.Sprintf("ingest rejected: %d problem(s): %s", len(v.Problems), strings.Join(head, "; "))
	if len(v.Problems) > shown {
		msg += "; ..."
	}
	return msg
}

// IngestReport describes a committed ingest batch.
type IngestReport struct {
	FetchID     string          `json:"fetchId"`
	Records     int             `json:"records"`
	LocationIDs []int64         `json:"locationIds"`
	Reconcile   ReconcileReport `json:"reconcile"`
}

// WriteLocationSchedule stores one normalized record: its schedule group and
// its location row. It does not reconcile; batch callers should use Ingest.
func (e *Engine) WriteLocationSchedule(ctx context.Context, rec types.Record) (int64, error) {
	if problems := e.validateRecord(0, rec); len(problems) > 0 {
		return 0, &ValidationError{Problems: problems}
	}
	var id int64
	err := e.provider.WithTx(ctx, func(tx provider.Provider) error {
		var err error
		id, err = e.writeRecord(ctx, tx, rec)
		return err
	})
	return id, err
}

// Ingest validates a whole batch, writes every record and reconciles once,
// all in one transaction. Every call leaves one fetch audit row, whatever
// the outcome.
func (e *Engine) Ingest(ctx context.Context, b types.Batch) (IngestReport, error) {
	rep := IngestReport{FetchID: ulid.Make().String(), Records: len(b.Records)}

	if problems := e.validateBatch(b); len(problems) > 0 {
		verr := &ValidationError{Problems: problems}
		e.recordFetch(ctx, rep.FetchID, b, types.FetchValidationError, problems)
		metrics.IngestRejected.Add(ctx, 1)
		e.logger.Warn("ingest rejected", "source", b.SourceURL, "problems", len(problems))
		e.fireAlert(types.Alert{
			Level:    types.AlertLevelWarning,
			Category: types.AlertCategoryIngestRejected,
			Message:  verr.Error(),
			Details:  map[string]interface{}{"source": b.SourceURL, "fetchId": rep.FetchID},
		})
		return rep, verr
	}

	err := e.withLock(ctx, func() error {
		return e.provider.WithTx(ctx, func(tx provider.Provider) error {
			ids := make([]int64, 0, len(b.Records))
			for i, rec := range b.Records {
				id, err := e.writeRecord(ctx, tx, rec)
				if err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
				ids = append(ids, id)
			}
			r, err := e.reconcile(ctx, tx)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			rep.LocationIDs = ids
			rep.Reconcile = r
			return tx.RecordFetch(ctx, types.FetchRecord{
				ID:          rep.FetchID,
				SourceURL:   b.SourceURL,
				Status:      types.FetchSuccess,
				RecordCount: len(b.Records),
				FetchedAt:   e.now(),
			})
		})
	})
	if err != nil {
		e.recordFetch(ctx, rep.FetchID, b, types.FetchFailed, []string{err.Error()})
		metrics.IngestRejected.Add(ctx, 1)
		return IngestReport{FetchID: rep.FetchID, Records: rep.Records}, fmt.Errorf("ingest %s: %w", b.SourceURL, err)
	}

	e.logger.Info("ingest committed", "source", b.SourceURL, "records", rep.Records, "fetch", rep.FetchID)
	e.logReport(rep.Reconcile)
	e.countReport(ctx, rep.Reconcile)
	metrics.IngestBatches.Add(ctx, 1)
	return rep, nil
}

func (e *Engine) writeRecord(ctx context.Context, p provider.Provider, rec types.Record) (int64, error) {
	contentHash := fingerprint.ContentHash(rec.RawSource)
	if _, err := e.findOrCreateScheduleGroup(ctx, p, rec.Dates, rec.WasteType, contentHash); err != nil {
		return 0, err
	}
	return p.UpsertLocation(ctx, types.Location{
		AdminArea:    rec.AdminArea,
		Settlement:   rec.Settlement,
		Street:       rec.Street,
		HouseNumbers: rec.HouseNumbers,
		ContentHash:  contentHash,
		UpdatedAt:    e.now(),
	})
}

func (e *Engine) validateBatch(b types.Batch) []string {
	problems := append([]string(nil), b.ParseErrors...)
	for i, rec := range b.Records {
		problems = append(problems, e.validateRecord(i, rec)...)
	}
	return problems
}

func (e *Engine) validateRecord(i int, rec types.Record) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf("record %d: "+format, append([]any{i}, args...)...))
	}
	if strings.TrimSpace(rec.AdminArea) == "" {
		add("empty admin area")
	}
	if strings.TrimSpace(rec.Settlement) == "" {
		add("empty settlement")
	}
	if rec.RawSource == "" {
		add("missing raw source string")
	}
	if wt := e.wasteTypeOrDefault(rec.WasteType); !e.registry.Known(wt) {
		add("unknown waste type %q", wt)
	}
	for _, d := range rec.Dates {
		if d.IsZero() {
			add("zero pickup date")
			break
		}
	}
	return problems
}

func (e *Engine) recordFetch(ctx context.Context, id string, b types.Batch, status types.FetchStatus, problems []string) {
	err := e.provider.RecordFetch(context.WithoutCancel(ctx), types.FetchRecord{
		ID:               id,
		SourceURL:        b.SourceURL,
		Status:           status,
		ValidationErrors: problems,
		RecordCount:      len(b.Records),
		FetchedAt:        e.now(),
	})
	if err != nil {
		e.logger.Error("failed to record fetch", "fetch", id, "status", status, "error", err)
	}
}
