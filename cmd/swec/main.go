// Package main is the entry point for the swec server CLI.
//
// swec can be embedded as a library or run as a standalone binary with
// YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	swec serve -c config.yaml    # Start the status server
//	swec validate -c config.yaml # Validate configuration
//	swec version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "swec",
	Short: "A simple web endpoint checker server",
	Long: `swec is a status backend for uptime checkers.

It accepts status reports from checker processes on a private API,
keeps a rolling history per checker, persists every change durably,
and streams live updates to watchers over a public read-only API.

Quick start:
  1. Create a config file (swec.yaml)
  2. Run: swec serve -c swec.yaml
  3. Point checkers at the private API, readers at the public one

Example config:
  data_dir: /var/lib/swec
  public_addr: ":8080"
  private_addr: "127.0.0.1:8081"`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this swec binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("swec %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
