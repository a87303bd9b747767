package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hnsc-omics/omics-cli/internal/ledger"
	"github.com/hnsc-omics/omics-cli/internal/loader"
	"github.com/hnsc-omics/omics-cli/internal/model"
	"github.com/hnsc-omics/omics-cli/internal/resilience"
)

// Reconcile sweeps entries held at loaded and advances those whose
// referenced samples have since landed. Entries still held produce
// consistency warnings in the returned summary.
func (o *Orchestrator) Reconcile(ctx context.Context, source string) (*loader.ReconcileReport, *model.RunSummary, error) {
	report, err := o.loader.Reconcile(ctx, source)
	if err != nil {
		return nil, nil, err
	}

	summary := &model.RunSummary{Integrated: report.Advanced}
	for _, held := range report.Held {
		summary.Loaded++
		summary.Warnings++
		summary.AddError(model.CategoryLedger, (&resilience.LedgerConsistencyError{
			MappingID:  held.MappingID,
			Referenced: held.SampleKey,
		}).Error())
	}

	zap.L().Info("reconciliation complete",
		zap.String("source", source),
		zap.Int("advanced", report.Advanced),
		zap.Int("held", len(report.Held)),
	)
	return report, summary, nil
}

// RequeueQuarantined releases quarantined entries back to pending so
// the next run re-attempts them. Returns the number released.
func (o *Orchestrator) RequeueQuarantined(ctx context.Context, source string) (int, error) {
	entries, err := o.ledger.Quarantined(ctx, source)
	if err != nil {
		return 0, err
	}

	released := 0
	for i := range entries {
		m := entries[i]
		err := o.ledger.SetStage(ctx, &m, model.StagePending, "")
		if err != nil {
			if eris.Is(err, ledger.ErrStaleEntry) {
				continue
			}
			return released, err
		}
		released++
	}
	zap.L().Info("quarantine requeued",
		zap.String("source", source),
		zap.Int("released", released),
	)
	return released, nil
}
