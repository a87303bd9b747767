package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hnsc-omics/omics-cli/internal/ledger"
)

var reconcileSource string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Advance loaded records whose references have landed",
	Long: `Sweeps ledger entries held at loaded and advances to integrated
those whose referenced samples have since been loaded. Entries still
gated are reported with a consistency warning.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := ledger.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "reconcile: migrate")
		}

		docs, err := openDocstore(ctx)
		if err != nil {
			return err
		}
		defer docs.Close(ctx) //nolint:errcheck

		orch, _, err := buildOrchestrator(pool, docs)
		if err != nil {
			return err
		}

		report, summary, err := orch.Reconcile(ctx, reconcileSource)
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}

		out, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Printf("advanced %d, held %d\n%s\n", report.Advanced, len(report.Held), out)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileSource, "source", "", "restrict to one source (default all)")
	rootCmd.AddCommand(reconcileCmd)
}
