package main

import (
	"github.com/spf13/cobra"

	"github.com/tarneaux/swec/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a swec configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  swec validate -c config.yaml
  swec validate --config /etc/swec/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	cmd.Printf("Config is valid\n")
	cmd.Printf("  data_dir:     %s\n", cfg.DataDir)
	cmd.Printf("  public_addr:  %s\n", cfg.PublicAddr)
	cmd.Printf("  private_addr: %s\n", cfg.PrivateAddr)
	cmd.Printf("  snapshots:    every %s or %d entries\n",
		cfg.SnapshotInterval.Duration(), cfg.SnapshotThreshold)

	return nil
}
