/*
main.go - Application entry point

PURPOSE:
  Command line for the pilot earnings engine: runs the HTTP server and
  offers a few operator commands against the same database.

COMMANDS:
  serve      Start the HTTP API (graceful shutdown on SIGINT/SIGTERM)
  board      Print a day's board as JSON
  scenario   Load a demo scenario into the database

CONFIGURATION:
  --config points at an optional YAML file. Every key can be overridden by
  an EARNINGS_ environment variable, e.g. EARNINGS_DB_PATH=:memory:.
  See config/config.go for keys and defaults.

EXAMPLES:
  # Run with file database
  earnings serve --config ./earnings.yaml

  # Run with in-memory database
  EARNINGS_DB_DRIVER=memory earnings serve

  # Inspect a day
  earnings board --date 2025-03-10

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/earnings-engine/config"
	"github.com/warp/earnings-engine/logging"
)

var (
	configPath string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:           "earnings",
	Short:         "Daily pilot earnings engine",
	Long:          `Computes daily pilot earnings from field tasks, gates downtime approvals and reconciles saved records.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logging.Init(loaded.App.Env, loaded.Log.Level); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(scenarioCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
