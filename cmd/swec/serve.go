package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tarneaux/swec"
	"github.com/tarneaux/swec/config"
	"github.com/tarneaux/swec/internal/server"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// serveCmd starts the swec status server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status server",
	Long: `Start the swec status server.

The server will:
  - Recover state from the data directory's snapshot and journal
  - Serve the read-only API on the public address
  - Serve the read-write API and /metrics on the private address

The server runs until interrupted (Ctrl+C) or receives SIGTERM; shutdown
takes a final snapshot so restart replays nothing.

Example:
  swec serve -c config.yaml
  swec serve --config /etc/swec/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine, err := swec.New(
		swec.WithDataDir(cfg.DataDir),
		swec.WithHistoryLimit(cfg.HistoryLimit),
		swec.WithSnapshotInterval(cfg.SnapshotInterval.Duration()),
		swec.WithSnapshotThreshold(cfg.SnapshotThreshold),
		swec.WithSubscriberBuffer(cfg.SubscriberBuffer),
		swec.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}

	logger.Info("engine recovered",
		"data_dir", cfg.DataDir,
		"seq", engine.Seq(),
		"checkers", engine.Len(),
	)

	public := server.New(engine, server.Config{
		Addr:     cfg.PublicAddr,
		Writable: false,
		Version:  version,
		Logger:   logger.With("listener", "public"),
	})
	private := server.New(engine, server.Config{
		Addr:     cfg.PrivateAddr,
		Writable: true,
		Version:  version,
		Metrics:  engine.MetricsHandler(),
		Logger:   logger.With("listener", "private"),
	})

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 3)
	go func() { errChan <- engine.Run(ctx) }()
	go func() { errChan <- public.Start(ctx) }()
	go func() { errChan <- private.Start(ctx) }()

	logger.Info("serving",
		"public_addr", cfg.PublicAddr,
		"private_addr", cfg.PrivateAddr,
	)

	remaining := 3
	var firstErr error
	done := ctx.Done()
	var timeout <-chan time.Time
	for remaining > 0 {
		select {
		case err := <-errChan:
			remaining--
			if err != nil && firstErr == nil {
				firstErr = err
				stop() // take the other components down too
			}
		case <-done:
			// signal received, give the rest of shutdown a deadline
			done = nil
			timeout = time.After(shutdownTimeout)
		case <-timeout:
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			remaining = 0
		}
	}

	if err := engine.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr != nil {
		return fmt.Errorf("server error: %w", firstErr)
	}
	logger.Info("shutdown complete")
	return nil
}
