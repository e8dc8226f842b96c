package lambda

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/wastecal/internal/app"
	"github.com/dwsmith1983/wastecal/internal/calsync"
	"github.com/dwsmith1983/wastecal/internal/config"
	"github.com/dwsmith1983/wastecal/internal/engine"
	"github.com/dwsmith1983/wastecal/internal/watcher"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

type fakeWorker struct {
	syncs, cleanups int
	err             error
}

func (f *fakeWorker) RunOnce(context.Context) (watcher.PassReport, error) {
	f.syncs++
	return watcher.PassReport{Streams: 2, Synced: 1, Failed: 1}, f.err
}

func (f *fakeWorker) Cleanup(context.Context) (calsync.CleanupReport, error) {
	f.cleanups++
	return calsync.CleanupReport{Notices: 1, Deleted: []string{"cs-1"}}, f.err
}

type fakeIngester struct {
	rep engine.IngestReport
	err error
}

func (f *fakeIngester) Ingest(context.Context, types.Batch) (engine.IngestReport, error) {
	return f.rep, f.err
}

func testDeps(w Worker, in Ingester) *Deps {
	return &Deps{Worker: w, Ingester: in, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestInit_MissingConfigDir(t *testing.T) {
	t.Setenv("WASTECAL_CONFIG_DIR", filepath.Join(t.TempDir(), "nope"))

	_, err := Init(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WASTECAL_CONFIG_DIR")
}

func TestInit_RequiresCalendar(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName),
		[]byte("provider: sqlite\nsqlite:\n  path: ./wastecal.db\nlog:\n  level: error\n"), 0o644))
	t.Setenv("WASTECAL_CONFIG_DIR", dir)

	_, err := Init(t.Context())
	assert.ErrorIs(t, err, app.ErrNoCalendar)
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_KEY", "custom")
	assert.Equal(t, "custom", envOrDefault("TEST_KEY", "fallback"))

	t.Setenv("TEST_KEY", "")
	assert.Equal(t, "fallback", envOrDefault("TEST_KEY", "fallback"))
}

func TestHandleScheduled_Sync(t *testing.T) {
	w := &fakeWorker{}
	res, err := HandleScheduled(t.Context(), testDeps(w, nil), events.CloudWatchEvent{ID: "e1", DetailType: "Scheduled Event"})
	require.NoError(t, err)
	assert.Equal(t, ActionSync, res.Action)
	require.NotNil(t, res.Sync)
	assert.Equal(t, 1, res.Sync.Failed)
	assert.Nil(t, res.Cleanup)
	assert.Equal(t, 1, w.syncs)
	assert.Zero(t, w.cleanups)
}

func TestHandleScheduled_Cleanup(t *testing.T) {
	w := &fakeWorker{}
	res, err := HandleScheduled(t.Context(), testDeps(w, nil), events.CloudWatchEvent{DetailType: DetailTypeCleanup})
	require.NoError(t, err)
	assert.Equal(t, ActionCleanup, res.Action)
	require.NotNil(t, res.Cleanup)
	assert.Equal(t, []string{"cs-1"}, res.Cleanup.Deleted)
	assert.Zero(t, w.syncs)
}

func TestHandleScheduled_Error(t *testing.T) {
	w := &fakeWorker{err: errors.New("store down")}
	_, err := HandleScheduled(t.Context(), testDeps(w, nil), events.CloudWatchEvent{})
	assert.ErrorContains(t, err, "sync pass: store down")

	_, err = HandleScheduled(t.Context(), testDeps(w, nil), events.CloudWatchEvent{DetailType: DetailTypeCleanup})
	assert.ErrorContains(t, err, "cleanup sweep: store down")
}

func TestHandleIngest(t *testing.T) {
	in := &fakeIngester{rep: engine.IngestReport{FetchID: "f1", Records: 3}}
	res, err := HandleIngest(t.Context(), testDeps(nil, in), types.Batch{SourceURL: "https://example.test"})
	require.NoError(t, err)
	assert.Equal(t, "f1", res.FetchID)
	require.NotNil(t, res.Report)
	assert.Equal(t, 3, res.Report.Records)
	assert.Empty(t, res.Problems)
}

func TestHandleIngest_Rejected(t *testing.T) {
	in := &fakeIngester{
		rep: engine.IngestReport{FetchID: "f2"},
		err: &engine.ValidationError{Problems: []string{"record 0: empty admin area"}},
	}
	res, err := HandleIngest(t.Context(), testDeps(nil, in), types.Batch{})
	require.NoError(t, err)
	assert.Nil(t, res.Report)
	assert.Equal(t, "f2", res.FetchID)
	assert.Equal(t, []string{"record 0: empty admin area"}, res.Problems)
}

func TestHandleIngest_Failure(t *testing.T) {
	in := &fakeIngester{err: engine.ErrLocked}
	_, err := HandleIngest(t.Context(), testDeps(nil, in), types.Batch{})
	assert.ErrorIs(t, err, engine.ErrLocked)
}
