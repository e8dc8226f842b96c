package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/wastecal/internal/app"
	"github.com/dwsmith1983/wastecal/internal/config"
	"github.com/dwsmith1983/wastecal/internal/wastetype"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

const storeOnlyConfig = `provider: sqlite
sqlite:
  path: ./wastecal.db
log:
  level: error
`

func project(t *testing.T, cfg string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(cfg), 0o644))
	return dir
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInit_ScaffoldsLoadableProject(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vilnius")

	out, err := execute(t, NewInitCmd(), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Project scaffolded")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, types.StoreSQLite, cfg.Provider)
	assert.Equal(t, types.CalendarICSFeed, cfg.Calendar.Backend)
	assert.True(t, cfg.Watcher.Enabled)

	reg := wastetype.NewRegistry()
	for _, d := range cfg.WasteTypeDirs {
		require.NoError(t, reg.LoadDir(d))
	}
	assert.True(t, reg.Known("tekstile"))

	b, err := loadBatch(filepath.Join(dir, "batch.example.yaml"))
	require.NoError(t, err)
	require.Len(t, b.Records, 2)
	assert.Len(t, b.Records[0].Dates, 3)
}

func TestInit_GoogleBackend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "p")
	_, err := execute(t, NewInitCmd(), dir, "--backend", "google")
	require.NoError(t, err)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, types.CalendarGoogle, cfg.Calendar.Backend)
}

func TestInit_Errors(t *testing.T) {
	_, err := execute(t, NewInitCmd(), t.TempDir(), "--backend", "outlook")
	assert.ErrorContains(t, err, `unknown calendar backend "outlook"`)

	dir := t.TempDir()
	_, err = execute(t, NewInitCmd(), dir)
	require.NoError(t, err)
	_, err = execute(t, NewInitCmd(), dir)
	assert.ErrorContains(t, err, "already exists")
}

func TestIngestReconcileStatus(t *testing.T) {
	dir := project(t, storeOnlyConfig)
	batch := filepath.Join(dir, "batch.json")
	require.NoError(t, os.WriteFile(batch, []byte(`{
  "sourceUrl": "https://example.test/grafikas.xlsx",
  "records": [
    {"adminArea": "Nemenčinė", "settlement": "Pikeliškės", "rawSource": "Pikeliškės",
     "dates": ["2026-01-08T00:00:00Z", "2026-01-22T00:00:00Z"]},
    {"adminArea": "Nemenčinė", "settlement": "Kalviškės", "rawSource": "Kalviškės",
     "dates": ["2026-01-08T00:00:00Z", "2026-01-22T00:00:00Z"]}
  ]
}`), 0o644))

	out, err := execute(t, NewIngestCmd(), batch, "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 2 record(s)")
	assert.Contains(t, out, "created=1")

	out, err = execute(t, NewReconcileCmd(), "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "created=0")

	out, err = execute(t, NewStatusCmd(), "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "uncreated")
	assert.Contains(t, out, "links=2")
	assert.Contains(t, out, "2026-01-08..2026-01-22")
	assert.Contains(t, out, "success")

	out, err = execute(t, NewStatusCmd(), "1", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Location 1 (bendros)")
	assert.Contains(t, out, "pending")
}

func TestIngest_Rejected(t *testing.T) {
	dir := project(t, storeOnlyConfig)
	batch := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(batch, []byte("sourceUrl: x\nrecords:\n  - settlement: A\n    rawSource: A\n"), 0o644))

	out, err := execute(t, NewIngestCmd(), batch, "--dir", dir)
	require.Error(t, err)
	assert.Contains(t, out, "Batch rejected")
	assert.Contains(t, out, "record 0: empty admin area")
}

func TestCalendarCommandsRequireCalendar(t *testing.T) {
	dir := project(t, storeOnlyConfig)

	_, err := execute(t, NewSyncCmd(), "--dir", dir)
	assert.ErrorIs(t, err, app.ErrNoCalendar)

	_, err = execute(t, NewCleanupCmd(), "--dir", dir)
	assert.ErrorIs(t, err, app.ErrNoCalendar)
}

func TestStatus_InvalidLocation(t *testing.T) {
	dir := project(t, storeOnlyConfig)
	_, err := execute(t, NewStatusCmd(), "abc", "--dir", dir)
	assert.ErrorContains(t, err, `invalid location id "abc"`)
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "b.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("sourceUrl: s\nrecords:\n  - adminArea: A\n    settlement: B\n    rawSource: B\n    dates: [2026-03-29]\n"), 0o644))

	b, err := loadBatch(yamlPath)
	require.NoError(t, err)
	require.Len(t, b.Records, 1)
	assert.Equal(t, "2026-03-29", b.Records[0].Dates[0].Format("2006-01-02"))

	badPath := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(badPath, []byte("{"), 0o644))
	_, err = loadBatch(badPath)
	assert.ErrorContains(t, err, "parsing batch")

	_, err = loadBatch(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "reading batch")
}
