package lambda

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"github.com/dwsmith1983/wastecal/internal/calsync"
	"github.com/dwsmith1983/wastecal/internal/engine"
	"github.com/dwsmith1983/wastecal/internal/watcher"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// DetailTypeCleanup selects the deprecation sweep. Any other scheduled event,
// including the plain EventBridge "Scheduled Event", runs a sync pass.
const DetailTypeCleanup = "wastecal.cleanup"

// Actions reported in WorkerResult.
const (
	ActionSync    = "sync"
	ActionCleanup = "cleanup"
)

// WorkerResult is returned by HandleScheduled.
type WorkerResult struct {
	Action  string                 `json:"action"`
	Sync    *watcher.PassReport    `json:"sync,omitempty"`
	Cleanup *calsync.CleanupReport `json:"cleanup,omitempty"`
}

// HandleScheduled runs one worker pass for an EventBridge scheduled event.
func HandleScheduled(ctx context.Context, d *Deps, ev events.CloudWatchEvent) (WorkerResult, error) {
	if ev.DetailType == DetailTypeCleanup {
		rep, err := d.Worker.Cleanup(ctx)
		if err != nil {
			return WorkerResult{Action: ActionCleanup}, fmt.Errorf("cleanup sweep: %w", err)
		}
		d.Logger.Info("cleanup sweep done", "event", ev.ID, "notices", rep.Notices, "deleted", len(rep.Deleted), "failed", rep.Failed)
		return WorkerResult{Action: ActionCleanup, Cleanup: &rep}, nil
	}

	rep, err := d.Worker.RunOnce(ctx)
	if err != nil {
		return WorkerResult{Action: ActionSync}, fmt.Errorf("sync pass: %w", err)
	}
	d.Logger.Info("sync pass done", "event", ev.ID, "streams", rep.Streams, "synced", rep.Synced, "failed", rep.Failed, "skipped", rep.Skipped)
	return WorkerResult{Action: ActionSync, Sync: &rep}, nil
}

// IngestResult is returned by HandleIngest. A rejected batch is reported in
// Problems rather than as an invocation error so the scraper does not retry it.
type IngestResult struct {
	Report   *engine.IngestReport `json:"report,omitempty"`
	FetchID  string               `json:"fetchId,omitempty"`
	Problems []string             `json:"problems,omitempty"`
}

// HandleIngest stores one scraped batch and reconciles it.
func HandleIngest(ctx context.Context, d *Deps, b types.Batch) (IngestResult, error) {
	rep, err := d.Ingester.Ingest(ctx, b)
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		d.Logger.Warn("batch rejected", "source", b.SourceURL, "fetch", rep.FetchID, "problems", len(verr.Problems))
		return IngestResult{FetchID: rep.FetchID, Problems: verr.Problems}, nil
	case err != nil:
		return IngestResult{FetchID: rep.FetchID}, fmt.Errorf("ingest: %w", err)
	}
	d.Logger.Info("batch ingested", "source", b.SourceURL, "fetch", rep.FetchID, "records", rep.Records)
	return IngestResult{Report: &rep, FetchID: rep.FetchID}, nil
}
