// Package main is the entry point for the swec-checker CLI.
//
// swec-checker probes a single HTTP target on an interval and reports
// the results to a swec server's private API.
//
// Usage:
//
//	swec-checker --api http://127.0.0.1:8081 --name blog \
//	  --url https://blog.example.com --interval 30s
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
	"github.com/tarneaux/swec/client"
	"github.com/tarneaux/swec/internal/probe"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagAPI         string
	flagName        string
	flagDescription string
	flagURL         string
	flagGroup       string
	flagInterval    time.Duration
	flagTimeout     time.Duration
	flagVerbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "swec-checker",
	Short: "Probe one HTTP target and report its status",
	Long: `swec-checker probes a single HTTP target on a fixed interval and
reports each result to a swec server.

On startup it registers the checker's spec with the server (creating it
if the server does not know it yet), then probes until interrupted.

Example:
  swec-checker --api http://127.0.0.1:8081 --name blog \
    --description "Company blog" --url https://blog.example.com \
    --group websites --interval 30s --timeout 5s`,
	RunE: runChecker,
}

func init() {
	rootCmd.Flags().StringVar(&flagAPI, "api", "http://127.0.0.1:8081", "base URL of the writable status API")
	rootCmd.Flags().StringVar(&flagName, "name", "", "checker name (required)")
	rootCmd.Flags().StringVar(&flagDescription, "description", "", "checker description (defaults to the name)")
	rootCmd.Flags().StringVar(&flagURL, "url", "", "target URL to probe (required)")
	rootCmd.Flags().StringVar(&flagGroup, "group", "", "checker group")
	rootCmd.Flags().DurationVar(&flagInterval, "interval", 30*time.Second, "time between probes")
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", 5*time.Second, "per-probe timeout")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log every probe result")
	_ = rootCmd.MarkFlagRequired("name")
	_ = rootCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("swec-checker %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})
}

func runChecker(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	api, err := client.New(flagAPI)
	if err != nil {
		return fmt.Errorf("invalid --api: %w", err)
	}

	description := flagDescription
	if description == "" {
		description = flagName
	}
	spec := swec.Spec{
		Description: description,
		URL:         flagURL,
		Group:       flagGroup,
	}

	runner, err := probe.NewRunner(api, flagName, spec, flagInterval, flagTimeout, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("checker starting",
		"checker", flagName,
		"url", flagURL,
		"interval", flagInterval.String(),
	)

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("checker error: %w", err)
	}
	logger.Info("checker stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
