package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hnsc-omics/omics-cli/internal/ledger"
	"github.com/hnsc-omics/omics-cli/internal/model"
)

var statusSource string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger entry counts per stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		counts, err := ledger.New(pool).CountByStage(ctx, statusSource)
		if err != nil {
			return err
		}
		if len(counts) == 0 {
			fmt.Println("ledger is empty")
			return nil
		}

		stages := make([]string, 0, len(counts))
		for s := range counts {
			stages = append(stages, string(s))
		}
		sort.Strings(stages)

		for _, s := range stages {
			fmt.Printf("%-12s %d\n", s, counts[model.Stage(s)])
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusSource, "source", "", "restrict to one source (default all)")
	rootCmd.AddCommand(statusCmd)
}
