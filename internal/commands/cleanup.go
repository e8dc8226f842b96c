package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/wastecal/internal/app"
)

// NewCleanupCmd creates the cleanup command.
func NewCleanupCmd() *cobra.Command {
	var (
		dir     string
		orphans bool
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run the deprecation sweep for retiring calendar streams",
		Long: `Posts resubscribe notices on retiring calendars and deletes the ones whose
grace period has ended. With --orphans, provider calendars no stream tracks are
listed and deleted instead (--dry-run only lists them).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd.Context(), cmd.OutOrStdout(), dir, orphans, dryRun)
		},
	}
	addDirFlag(cmd, &dir)
	cmd.Flags().BoolVar(&orphans, "orphans", false, "Delete provider calendars no stream references")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "With --orphans, list without deleting")
	return cmd
}

func runCleanup(ctx context.Context, out io.Writer, dir string, orphans, dryRun bool) error {
	a, err := app.Load(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.RequireCalendar(); err != nil {
		return err
	}

	if orphans {
		rep, err := a.Syncer.CleanupOrphanedCalendars(ctx, dryRun)
		if err != nil {
			return err
		}
		for _, c := range rep.Orphans {
			fmt.Fprintf(out, "  orphan %s %q\n", c.ID, c.Summary)
		}
		if dryRun {
			_, _ = color.New(color.FgYellow).Fprintf(out, "→ %d orphaned calendar(s), nothing deleted (--dry-run)\n", len(rep.Orphans))
			return nil
		}
		_, _ = color.New(color.FgGreen).Fprintf(out, "✓ Deleted %d orphaned calendar(s), %d failed\n", rep.Deleted, rep.Failed)
		return nil
	}

	rep, err := a.NewWatcher().Cleanup(ctx)
	if err != nil {
		return err
	}
	for _, id := range rep.Deleted {
		fmt.Fprintf(out, "  deleted %s\n", id)
	}
	for _, id := range rep.Kept {
		fmt.Fprintf(out, "  kept    %s\n", id)
	}
	c := color.New(color.FgGreen)
	if rep.Failed > 0 {
		c = color.New(color.FgRed)
	}
	_, _ = c.Fprintf(out, "Cleanup: %d notice(s), %d deleted, %d failed\n", rep.Notices, len(rep.Deleted), rep.Failed)
	return nil
}
