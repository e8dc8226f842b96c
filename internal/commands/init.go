package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "init [project-dir]",
		Short: "Initialize a new wastecal project",
		Long:  "Creates wastecal.yaml, a waste type directory and an example ingest batch.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.OutOrStdout(), args[0], backend)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "icsfeed", "Calendar backend to scaffold (google or icsfeed)")
	return cmd
}

const calendarGoogle = `calendar:
  backend: google
  timeZone: Europe/Vilnius
  eventStartHour: 7
  eventEndHour: 9
  reminders:
    - method: popup
      minutes: 720
  google:
    credentialsFile: ./service-account.json
`

const calendarICSFeed = `calendar:
  backend: icsfeed
  timeZone: Europe/Vilnius
  eventStartHour: 7
  eventEndHour: 9
  reminders:
    - method: popup
      minutes: 720
  icsfeed:
    bucket: wastecal-feeds
    baseUrl: http://localhost:3000/feeds
`

const projectConfig = `provider: sqlite
sqlite:
  path: ./wastecal.db
%sengine:
  pendingCleanGrace: 96h
watcher:
  enabled: true
  interval: 5m
  cleanupSchedule: "@every 1h"
server:
  addr: ":3000"
wasteTypeDirs:
  - ./wastetypes
alerts:
  - type: console
log:
  level: info
`

const exampleWasteType = `name: tekstile
label: Tekstilė
eventSummary: Tekstilės surinkimas
eventDescription: Išneškite tekstilės maišą
`

const exampleBatch = `sourceUrl: https://example.test/grafikas.xlsx
records:
  - adminArea: Nemenčinė
    settlement: Pikeliškės
    rawSource: Pikeliškės
    wasteType: bendros
    dates: [2026-01-08, 2026-01-22, 2026-02-05]
  - adminArea: Nemenčinė
    settlement: Kalviškės
    street: Ąžuolų g.
    rawSource: Kalviškės (Ąžuolų g.)
    wasteType: bendros
    dates: [2026-01-08, 2026-01-22, 2026-02-05]
`

func runInit(out io.Writer, dir, backend string) error {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)

	var cal string
	switch backend {
	case "google":
		cal = calendarGoogle
	case "icsfeed":
		cal = calendarICSFeed
	default:
		return fmt.Errorf("unknown calendar backend %q", backend)
	}

	_, _ = bold.Fprintf(out, "Initializing wastecal project: %s\n", dir)

	if err := os.MkdirAll(filepath.Join(dir, "wastetypes"), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{"wastecal.yaml", fmt.Sprintf(projectConfig, cal)},
		{filepath.Join("wastetypes", "tekstile.yaml"), exampleWasteType},
		{"batch.example.yaml", exampleBatch},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	_, _ = green.Fprintln(out, "  ✓ Project scaffolded")

	fmt.Fprintln(out)
	_, _ = bold.Fprintln(out, "Next steps:")
	fmt.Fprintf(out, "  cd %s\n", dir)
	fmt.Fprintln(out, "  wastecal ingest batch.example.yaml")
	fmt.Fprintln(out, "  wastecal sync")
	fmt.Fprintln(out, "  wastecal serve")
	return nil
}
