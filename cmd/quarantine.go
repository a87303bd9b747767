package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hnsc-omics/omics-cli/internal/ledger"
)

var (
	quarantineSource  string
	quarantineRequeue bool
)

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "List or requeue quarantined records",
	Long: `Lists ledger entries parked in quarantine with the reason each was
parked. With --requeue, releases them back to pending so the next
ingest run re-attempts them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if quarantineRequeue {
			docs, err := openDocstore(ctx)
			if err != nil {
				return err
			}
			defer docs.Close(ctx) //nolint:errcheck

			orch, _, err := buildOrchestrator(pool, docs)
			if err != nil {
				return err
			}
			released, err := orch.RequeueQuarantined(ctx, quarantineSource)
			if err != nil {
				return err
			}
			fmt.Printf("released %d entries\n", released)
			return nil
		}

		entries, err := ledger.New(pool).Quarantined(ctx, quarantineSource)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("quarantine is empty")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-12s %-18s %s  %s\n",
				e.MappingID[:12], e.Source, e.Kind, e.NaturalKey, e.ErrorReason)
		}
		return nil
	},
}

func init() {
	quarantineCmd.Flags().StringVar(&quarantineSource, "source", "", "restrict to one source (default all)")
	quarantineCmd.Flags().BoolVar(&quarantineRequeue, "requeue", false, "release quarantined entries back to pending")
	rootCmd.AddCommand(quarantineCmd)
}
