package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hnsc-omics/omics-cli/internal/ledger"
)

var (
	runsSource string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runs, err := ledger.NewRunLog(pool).List(ctx, runsSource, runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}

		for _, r := range runs {
			finished := "running"
			if r.FinishedAt != nil {
				finished = r.FinishedAt.Format("2006-01-02 15:04:05")
			}
			line := fmt.Sprintf("%s  %-12s %-11s attempts=%d  started=%s  finished=%s",
				r.RunID, r.Source, r.Stage, r.Attempts,
				r.StartedAt.Format("2006-01-02 15:04:05"), finished)
			if r.ErrorSummary != nil {
				line += fmt.Sprintf("  loaded=%d integrated=%d quarantined=%d failed=%d",
					r.ErrorSummary.Loaded, r.ErrorSummary.Integrated,
					r.ErrorSummary.Quarantined, r.ErrorSummary.Failed)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsSource, "source", "", "restrict to one source (default all)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
