package commands

import (
	"context"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/wastecal/internal/app"
)

// NewReconcileCmd creates the reconcile command.
func NewReconcileCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-run calendar stream reconciliation without ingesting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), cmd.OutOrStdout(), dir)
		},
	}
	addDirFlag(cmd, &dir)
	return cmd
}

func runReconcile(ctx context.Context, out io.Writer, dir string) error {
	a, err := app.Load(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.Engine.ReconcileCalendarStreams(ctx)
	if err != nil {
		return err
	}
	_, _ = color.New(color.FgGreen).Fprintln(out, "✓ Reconciled")
	printReconcile(out, rep)
	return nil
}
