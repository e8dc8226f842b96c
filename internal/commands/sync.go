package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/wastecal/internal/app"
)

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	var dir, streamID string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one calendar sync pass",
		Long: `Creates missing calendars and reconciles their events for every stream that
needs it, exactly as one background worker pass would. With --stream only that
stream is synced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), cmd.OutOrStdout(), dir, streamID)
		},
	}
	addDirFlag(cmd, &dir)
	cmd.Flags().StringVar(&streamID, "stream", "", "Sync a single calendar stream")
	return cmd
}

func runSync(ctx context.Context, out io.Writer, dir, streamID string) error {
	a, err := app.Load(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.RequireCalendar(); err != nil {
		return err
	}

	if streamID != "" {
		return syncOne(ctx, out, a, streamID)
	}

	rep, err := a.NewWatcher().RunOnce(ctx)
	if err != nil {
		return err
	}
	if rep.Skipped {
		_, _ = color.New(color.FgYellow).Fprintln(out, "→ Sync skipped, another worker holds the lock")
		return nil
	}
	c := color.New(color.FgGreen)
	if rep.Failed > 0 {
		c = color.New(color.FgRed)
	}
	_, _ = c.Fprintf(out, "Synced %d/%d stream(s), %d failed\n", rep.Synced, rep.Streams, rep.Failed)
	if rep.Failed > 0 {
		return fmt.Errorf("%d stream(s) failed to sync", rep.Failed)
	}
	return nil
}

func syncOne(ctx context.Context, out io.Writer, a *app.App, streamID string) error {
	created, err := a.Syncer.CreateCalendarForStream(ctx, streamID)
	if err != nil {
		return err
	}
	if created.Warning != "" {
		return fmt.Errorf("stream %s: %s", streamID, created.Warning)
	}
	verb := "created"
	if created.Existing {
		verb = "existing"
	}
	fmt.Fprintf(out, "  calendar %s (%s)\n", created.CalendarID, verb)
	fmt.Fprintf(out, "  subscribe: %s\n", created.SubscriptionLink)

	res, err := a.Syncer.SyncCalendarStream(ctx, streamID)
	if err != nil {
		return err
	}
	_, _ = color.New(color.FgGreen).Fprintf(out, "✓ %s: added=%d deleted=%d retried=%d unchanged=%d failed=%d\n",
		streamID, res.Added, res.Deleted, res.Retried, res.Unchanged, res.Failed)
	return nil
}
