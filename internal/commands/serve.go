package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/wastecal/internal/app"
	"github.com/dwsmith1983/wastecal/internal/server"
	"github.com/dwsmith1983/wastecal/internal/watcher"
)

const defaultAddr = ":3000"

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the background sync worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), dir)
		},
	}
	addDirFlag(cmd, &dir)
	return cmd
}

func runServe(ctx context.Context, dir string) error {
	a, err := app.Load(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	// Watcher
	var w *watcher.Watcher
	if a.Config.Watcher != nil && a.Config.Watcher.Enabled {
		if err := a.RequireCalendar(); err != nil {
			return fmt.Errorf("watcher enabled: %w", err)
		}
		w = a.NewWatcher()
	}

	// Server
	addr := defaultAddr
	opts := []server.Option{server.WithLogger(a.Logger)}
	if sc := a.Config.Server; sc != nil {
		if sc.Addr != "" {
			addr = sc.Addr
		}
		opts = append(opts, server.WithAPIKey(sc.APIKey), server.WithMaxBody(sc.MaxRequestBody))
	}
	if a.Feeds != nil {
		opts = append(opts, server.WithFeeds(a.Feeds))
	}
	srv := server.New(addr, a.Engine, a.Store, opts...)

	if w != nil {
		w.Start(ctx)
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if w != nil {
			w.Stop(context.Background())
		}
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if w != nil {
			w.Stop(shutdownCtx)
		}
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		color.Green("Server stopped gracefully")
		return nil
	}
}
