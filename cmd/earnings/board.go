package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/earnings-engine/api"
	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/logging"
)

var boardDate string

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Print a day's earnings board as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		date := earnings.Today()
		if boardDate != "" {
			d, err := earnings.ParseDate(boardDate)
			if err != nil {
				return err
			}
			date = d
		}

		a, err := newApp(cfg, logging.GetLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		board, err := a.svc.Board(cmd.Context(), date)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(api.NewBoardDTO(board))
	},
}

func init() {
	boardCmd.Flags().StringVar(&boardDate, "date", "", "Day to print, YYYY-MM-DD (default today)")
}
