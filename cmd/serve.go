package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/vecview/internal/server"
	"github.com/Yates-Labs/vecview/internal/watch"
)

var (
	serveAddr  string
	watchServe bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the console as a JSON HTTP API",
	Long: `Start an HTTP server exposing collections, the filename mapping,
collection views, raw content, deletes and Prometheus metrics.

Examples:
  vecview serve
  vecview serve --addr :8080 --watch`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :7860)")
	serveCmd.Flags().BoolVar(&watchServe, "watch", false, "Reload when the chromem directory changes on disk")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	addr := app.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	if watchServe || app.cfg.Chromem.Watch {
		stop, err := startWatcher(ctx)
		if err != nil {
			return err
		}
		defer stop()
	}

	srv := server.New(app.console, server.WithAddr(addr), server.WithLogger(app.logger))
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s\n", srv.Addr())
	return srv.Run(ctx)
}

// startWatcher reloads the console whenever the database directory changes.
func startWatcher(ctx context.Context) (func(), error) {
	var dir string
	if p, ok := app.client.(interface{ Path() string }); ok {
		dir = p.Path()
	}
	if dir == "" {
		app.logger.Warn("watching is only supported for a persistent chromem database")
		return func() {}, nil
	}

	w, err := watch.New(dir, app.console.Reload, watch.WithLogger(app.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			app.logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
	}()

	return func() {
		cancel()
		<-done
		_ = w.Close()
	}, nil
}
