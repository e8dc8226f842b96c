package main

import (
	"context"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/wastecal/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "wastecal",
		Short: "Waste collection schedules as subscribable calendars",
		Long: `wastecal turns parsed waste collection schedules into shared, subscribable
calendars. Locations with the same pickup dates share one calendar stream;
when schedules diverge, streams are split and retired streams are announced
and deleted after a grace period.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewIngestCmd(),
		commands.NewReconcileCmd(),
		commands.NewSyncCmd(),
		commands.NewCleanupCmd(),
		commands.NewStatusCmd(),
		commands.NewServeCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
