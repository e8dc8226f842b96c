// Package lambda provides shared initialization and handlers for the wastecal
// Lambda functions.
package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dwsmith1983/wastecal/internal/app"
	"github.com/dwsmith1983/wastecal/internal/calsync"
	"github.com/dwsmith1983/wastecal/internal/engine"
	"github.com/dwsmith1983/wastecal/internal/watcher"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

const defaultConfigDir = "/var/task"

// Worker is the part of the background watcher driven by scheduled events.
type Worker interface {
	RunOnce(ctx context.Context) (watcher.PassReport, error)
	Cleanup(ctx context.Context) (calsync.CleanupReport, error)
}

// Ingester stores a scraped batch and reconciles it.
type Ingester interface {
	Ingest(ctx context.Context, b types.Batch) (engine.IngestReport, error)
}

// Deps holds shared dependencies for Lambda handlers.
type Deps struct {
	App      *app.App
	Worker   Worker
	Ingester Ingester
	Logger   *slog.Logger
}

// Init loads wastecal.yaml and wires the worker.
// Reads: WASTECAL_CONFIG_DIR (default /var/task)
func Init(ctx context.Context) (*Deps, error) {
	dir := envOrDefault("WASTECAL_CONFIG_DIR", defaultConfigDir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("WASTECAL_CONFIG_DIR %q is not a directory", dir)
	}

	a, err := app.Load(ctx, dir, app.WithJSONLogs())
	if err != nil {
		return nil, err
	}
	if err := a.RequireCalendar(); err != nil {
		a.Close()
		return nil, err
	}
	return &Deps{
		App:      a,
		Worker:   a.NewWatcher(),
		Ingester: a.Engine,
		Logger:   a.Logger,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
