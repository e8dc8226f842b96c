package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/wastecal/internal/app"
	"github.com/dwsmith1983/wastecal/internal/engine"
)

// NewIngestCmd creates the ingest command.
func NewIngestCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "ingest <batch-file>",
		Short: "Ingest a normalized schedule batch and reconcile calendar streams",
		Long:  "Reads a JSON or YAML batch (\"-\" for JSON on stdin), writes every record and reconciles in one transaction.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd.OutOrStdout(), dir, args[0])
		},
	}
	addDirFlag(cmd, &dir)
	return cmd
}

func runIngest(ctx context.Context, out io.Writer, dir, path string) error {
	batch, err := loadBatch(path)
	if err != nil {
		return err
	}
	a, err := app.Load(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.Engine.Ingest(ctx, batch)
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		_, _ = color.New(color.FgRed).Fprintf(out, "Batch rejected (fetch %s):\n", rep.FetchID)
		for _, p := range verr.Problems {
			fmt.Fprintf(out, "  - %s\n", p)
		}
		return err
	}
	if err != nil {
		return err
	}

	_, _ = color.New(color.FgGreen).Fprintf(out, "✓ Ingested %d record(s) (fetch %s)\n", rep.Records, rep.FetchID)
	printReconcile(out, rep.Reconcile)
	return nil
}

func printReconcile(out io.Writer, rep engine.ReconcileReport) {
	fmt.Fprintf(out, "  linked=%d created=%d updated=%d invalidated=%d revived=%d\n",
		rep.Linked, rep.Created, rep.Updated, rep.Invalidated, rep.Revived)
	yellow := color.New(color.FgYellow)
	for _, id := range rep.Split {
		_, _ = yellow.Fprintf(out, "  split:    %s\n", id)
	}
	for _, id := range rep.Merged {
		_, _ = yellow.Fprintf(out, "  merged:   %s\n", id)
	}
	for _, id := range rep.Orphaned {
		_, _ = yellow.Fprintf(out, "  orphaned: %s\n", id)
	}
}
