package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/wastecal/internal/app"
	"github.com/dwsmith1983/wastecal/internal/lifecycle"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var dir, wasteType string

	cmd := &cobra.Command{
		Use:   "status [location-id]",
		Short: "Show calendar stream states, or the calendar of one location",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.Load(ctx, dir)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) > 0 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid location id %q", args[0])
				}
				return showLocation(ctx, cmd.OutOrStdout(), a, id, types.WasteType(wasteType))
			}
			return showStreams(ctx, cmd.OutOrStdout(), a)
		},
	}
	addDirFlag(cmd, &dir)
	cmd.Flags().StringVar(&wasteType, "waste-type", "", "Waste type of the location calendar (default bendros)")
	return cmd
}

func stateString(s types.StreamState) string {
	switch s {
	case types.StreamSynced:
		return color.GreenString(string(s))
	case types.StreamPendingClean:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func showStreams(ctx context.Context, out io.Writer, a *app.App) error {
	streams, err := a.Store.ListCalendarStreams(ctx)
	if err != nil {
		return fmt.Errorf("listing streams: %w", err)
	}
	if len(streams) == 0 {
		fmt.Fprintln(out, "No calendar streams.")
		return nil
	}

	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(out, "Calendar streams:")
	fmt.Fprintln(out)
	for i := range streams {
		cs := &streams[i]
		links, err := a.Store.CountLinks(ctx, cs.ID)
		if err != nil {
			return fmt.Errorf("counting links of %s: %w", cs.ID, err)
		}
		fmt.Fprintf(out, "  %-38s %-12s %-26s links=%-3d dates=%d %s..%s\n",
			cs.ID, cs.WasteType, stateString(lifecycle.StateOf(cs)), links, cs.DateCount, cs.FirstDate, cs.LastDate)
		if cs.PendingCleanUntil != nil {
			fmt.Fprintf(out, "      retires at %s\n", cs.PendingCleanUntil.Format(time.RFC3339))
		}
	}
	fmt.Fprintln(out)

	fetches, err := a.Store.ListFetches(ctx, 5)
	if err != nil {
		return fmt.Errorf("listing fetches: %w", err)
	}
	if len(fetches) > 0 {
		_, _ = bold.Fprintln(out, "Recent ingests:")
		for _, f := range fetches {
			fmt.Fprintf(out, "  %s  %-16s records=%-4d %s\n", f.FetchedAt.Format(time.RFC3339), f.Status, f.RecordCount, f.SourceURL)
		}
	}
	return nil
}

func showLocation(ctx context.Context, out io.Writer, a *app.App, id int64, wt types.WasteType) error {
	lc, err := a.Engine.LocationCalendar(ctx, id, wt)
	if err != nil {
		return err
	}
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(out, "Location %d (%s)\n", lc.LocationID, lc.WasteType)
	fmt.Fprintf(out, "  Schedule group: %s\n", lc.ScheduleGroupID)
	if lc.CalendarStreamID != "" {
		fmt.Fprintf(out, "  Stream:         %s\n", lc.CalendarStreamID)
	}
	fmt.Fprintf(out, "  Status:         %s\n", lc.CalendarStatus.Status)
	if lc.SubscriptionLink != nil {
		fmt.Fprintf(out, "  Subscribe:      %s\n", *lc.SubscriptionLink)
	}
	fmt.Fprintf(out, "  Dates:          %d\n", len(lc.Dates))
	for _, d := range lc.Dates {
		fmt.Fprintf(out, "    %s\n", d)
	}
	return nil
}
