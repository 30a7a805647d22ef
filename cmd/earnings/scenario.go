package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/earnings-engine/api"
	"github.com/warp/earnings-engine/logging"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario [id]",
	Short: "Load a demo scenario into the database (wipes it first)",
	Long: `Resets the database and loads one of the demo scenarios.
Without an id, lists the available scenarios.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			for _, s := range api.Scenarios() {
				fmt.Fprintf(out, "%-24s %s\n", s.ID, s.Description)
			}
			return nil
		}
		if cfg.DB.Driver == "memory" {
			return fmt.Errorf("scenario needs a persistent db driver, got %q", cfg.DB.Driver)
		}

		a, err := newApp(cfg, logging.GetLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		sc, err := api.SeedScenario(cmd.Context(), a.svc, a.store, args[0])
		if err != nil {
			return err
		}
		logging.Component("scenario").Infow("scenario loaded", "scenario", sc.ID, "date", sc.Date)
		fmt.Fprintf(out, "Loaded %s for %s: %s\n", sc.ID, sc.Date, sc.Description)
		return nil
	},
}
