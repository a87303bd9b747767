// Package pipeline orchestrates the full ingestion run: validate raw
// payloads, parse them into canonical records, harmonize the batch, and
// drive every record through the loading protocol. Each record is
// isolated; one bad payload never aborts the run.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hnsc-omics/omics-cli/internal/adapter"
	"github.com/hnsc-omics/omics-cli/internal/harmonize"
	"github.com/hnsc-omics/omics-cli/internal/ledger"
	"github.com/hnsc-omics/omics-cli/internal/loader"
	"github.com/hnsc-omics/omics-cli/internal/model"
	"github.com/hnsc-omics/omics-cli/internal/rawtree"
	"github.com/hnsc-omics/omics-cli/internal/resilience"
	"github.com/hnsc-omics/omics-cli/internal/template"
)

// defaultConcurrency bounds parallel record loads.
const defaultConcurrency = 4

// errEntryConcluded reports that a concurrent run drove the entry to a
// terminal stage between our read and write; this run must not move it
// again. Quarantined entries in particular are only released by an
// explicit requeue.
var errEntryConcluded = eris.New("pipeline: entry concluded concurrently")

// RawRecord is one raw hierarchical payload handed to the orchestrator,
// tagged with the template that governs it.
type RawRecord struct {
	Source     string
	TemplateID string
	Tree       *rawtree.Tree
}

// Orchestrator wires the stage implementations together.
type Orchestrator struct {
	templates   *template.Set
	adapters    *adapter.Registry
	harmonizer  *harmonize.Harmonizer
	loader      *loader.Loader
	ledger      *ledger.Ledger
	runLog      *ledger.RunLog
	concurrency int
}

// New creates an Orchestrator. Concurrency <= 0 selects the default.
func New(templates *template.Set, adapters *adapter.Registry, h *harmonize.Harmonizer, l *loader.Loader, led *ledger.Ledger, runLog *ledger.RunLog, concurrency int) *Orchestrator {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Orchestrator{
		templates:   templates,
		adapters:    adapters,
		harmonizer:  h,
		loader:      l,
		ledger:      led,
		runLog:      runLog,
		concurrency: concurrency,
	}
}

// Run ingests a batch of raw payloads for one source and returns the
// run summary. The summary always accounts for every record; it is
// never a bare success flag.
func (o *Orchestrator) Run(ctx context.Context, source string, raws []RawRecord) (*model.RunSummary, *model.PipelineRun, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("source", source))

	run, err := o.runLog.Start(ctx, source)
	if err != nil {
		return nil, nil, err
	}
	log.Info("run started", zap.String("run_id", run.RunID), zap.Int("raw_records", len(raws)))

	summary := &model.RunSummary{}
	start := time.Now()

	records, err := o.validateAndParse(ctx, run, source, raws, summary)
	if err != nil {
		_ = o.runLog.Finish(ctx, run.RunID, model.StageFailed, summary)
		return summary, run, err
	}

	_ = o.runLog.SetStage(ctx, run.RunID, model.StageHarmonizing)
	records, warnings := o.harmonizer.Harmonize(records)
	summary.Warnings += len(warnings)
	for _, w := range warnings {
		summary.AddError(model.CategoryResolution, (&resilience.ResolutionWarning{Identifier: w.Identifier}).Error())
	}

	_ = o.runLog.SetStage(ctx, run.RunID, model.StageLoading)
	if err := o.loadAll(ctx, source, records, summary); err != nil {
		_ = o.runLog.Finish(ctx, run.RunID, model.StageFailed, summary)
		return summary, run, err
	}

	finalStage := model.StageIntegrated
	if summary.Failed > 0 {
		finalStage = model.StageFailed
	}
	if err := o.runLog.Finish(ctx, run.RunID, finalStage, summary); err != nil {
		log.Error("failed to record run completion", zap.Error(err))
	}

	log.Info("run complete",
		zap.String("run_id", run.RunID),
		zap.Int("loaded", summary.Loaded),
		zap.Int("integrated", summary.Integrated),
		zap.Int("quarantined", summary.Quarantined),
		zap.Int("failed", summary.Failed),
		zap.Int("warnings", summary.Warnings),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary, run, nil
}

// validateAndParse runs the validating and parsing stages over the raw
// batch. A payload failing validation is parked in quarantine under a
// payload-derived key; a payload failing parse marks the run summary
// but never aborts its siblings.
func (o *Orchestrator) validateAndParse(ctx context.Context, run *model.PipelineRun, source string, raws []RawRecord, summary *model.RunSummary) ([]model.CanonicalRecord, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("source", source))

	_ = o.runLog.SetStage(ctx, run.RunID, model.StageValidating)

	var records []model.CanonicalRecord
	for _, raw := range raws {
		tpl, err := o.templates.Get(raw.TemplateID)
		if err != nil {
			// A missing template is a configuration fault: the whole run
			// for this source aborts rather than silently skipping.
			return nil, err
		}

		res := template.Validate(raw.Tree, tpl)
		if !res.OK() {
			reasons := strings.Join(res.Reasons(), "; ")
			summary.Quarantined++
			summary.AddError(model.CategoryValidation, reasons)
			if err := o.quarantineRaw(ctx, source, tpl, raw, reasons); err != nil {
				log.Error("failed to quarantine payload", zap.Error(err))
			}
			continue
		}

		a, err := o.adapters.Get(source)
		if err != nil {
			return nil, err
		}
		parsed, err := a.Parse(res, tpl)
		if err != nil {
			summary.Failed++
			summary.AddError(model.CategoryValidation, err.Error())
			log.Warn("parse failed", zap.String("template", raw.TemplateID), zap.Error(err))
			continue
		}
		if len(parsed) == 0 {
			log.Debug("payload yielded no records", zap.String("template", raw.TemplateID))
		}
		records = append(records, parsed...)
	}

	_ = o.runLog.SetStage(ctx, run.RunID, model.StageParsed)
	return records, nil
}

// quarantineRaw parks a payload that failed validation. The entry is
// keyed by a digest of the payload so re-submitting the same broken
// payload lands on the same entry.
func (o *Orchestrator) quarantineRaw(ctx context.Context, source string, tpl *template.Template, raw RawRecord, reason string) error {
	m := &model.EntityMapping{
		MappingID:       model.MappingID(source, tpl.Kind, "raw:"+raw.Tree.Digest()),
		Source:          source,
		Kind:            tpl.Kind,
		NaturalKey:      "raw:" + raw.Tree.Digest(),
		IntegrationType: model.IntegrationDirect,
		LastStage:       model.StagePending,
	}
	m, err := o.ledger.Ensure(ctx, m)
	if err != nil {
		return err
	}
	if m.LastStage == model.StageQuarantined {
		return nil
	}
	if err := o.ledger.SetStage(ctx, m, model.StageQuarantined, reason); err != nil && !eris.Is(err, ledger.ErrStaleEntry) {
		return err
	}
	return nil
}

// loadAll drives every harmonized record through the loading protocol
// with bounded concurrency.
func (o *Orchestrator) loadAll(ctx context.Context, source string, records []model.CanonicalRecord, summary *model.RunSummary) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i := range records {
		rec := records[i]
		g.Go(func() error {
			stage, errReason, cat := o.loadOne(gctx, &rec)
			mu.Lock()
			summary.Count(stage)
			if errReason != "" {
				summary.AddError(cat, errReason)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrapf(err, "pipeline: load batch for %s", source)
	}
	return nil
}

// loadOne runs the per-record state machine from wherever the ledger
// left the record. Returns the record's terminal stage for this run and
// an error reason when it did not land.
func (o *Orchestrator) loadOne(ctx context.Context, rec *model.CanonicalRecord) (model.Stage, string, model.ErrorCategory) {
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("source", rec.Source),
		zap.String("natural_key", rec.NaturalKey),
	)

	m, err := o.ledger.Ensure(ctx, model.NewEntityMapping(rec))
	if err != nil {
		return model.StageFailed, err.Error(), model.CategoryLedger
	}

	switch {
	case m.LastStage == model.StageIntegrated:
		// Replay of a fully landed record: the store upsert below would
		// be a no-op anyway, skip it.
		return model.StageIntegrated, "", ""
	case m.LastStage == model.StageQuarantined:
		// Parked entries are only released by an explicit requeue.
		return model.StageQuarantined, "", ""
	}

	// Stage is persisted before the store write so a crash leaves the
	// entry at loading and a resumed run replays the upsert.
	for _, next := range []model.Stage{model.StageHarmonized, model.StageLoading} {
		if err := o.advance(ctx, m, next); err != nil {
			if eris.Is(err, errEntryConcluded) {
				// A sibling run landed or parked the entry; report its stage.
				return m.LastStage, "", ""
			}
			return model.StageFailed, err.Error(), model.CategoryLedger
		}
	}

	if _, err := o.loader.Load(ctx, rec, m); err != nil {
		if eris.Is(err, loader.ErrEntryQuarantined) {
			return model.StageQuarantined, "", ""
		}
		return o.routeLoadFailure(ctx, m, err, log)
	}

	integrated, err := o.loader.Integrate(ctx, m)
	if err != nil {
		log.Warn("integration check failed", zap.Error(err))
		return model.StageLoaded, err.Error(), model.CategoryLedger
	}
	if integrated {
		return model.StageIntegrated, "", ""
	}
	return model.StageLoaded, "", ""
}

// advance moves the entry to the given stage, tolerating entries that
// are already past it (resume) and concurrent writers (later run wins).
// A refreshed entry found at a terminal stage returns errEntryConcluded
// so the caller stops instead of driving it further.
func (o *Orchestrator) advance(ctx context.Context, m *model.EntityMapping, stage model.Stage) error {
	if m.LastStage.AtLeast(stage) {
		return nil
	}
	err := o.ledger.SetStage(ctx, m, stage, "")
	if err == nil {
		return nil
	}
	if !eris.Is(err, ledger.ErrStaleEntry) {
		return err
	}
	fresh, gerr := o.ledger.Get(ctx, m.MappingID)
	if gerr != nil {
		return gerr
	}
	if fresh == nil {
		return eris.Errorf("pipeline: ledger entry %s vanished", m.MappingID)
	}
	*m = *fresh
	if m.LastStage.Terminal() {
		return errEntryConcluded
	}
	if m.LastStage.AtLeast(stage) {
		return nil
	}
	return o.ledger.SetStage(ctx, m, stage, "")
}

// routeLoadFailure maps a typed load error onto the record's terminal
// stage for this run: permanent store rejections are quarantined for
// review, transient exhaustion fails the record so a later run retries.
func (o *Orchestrator) routeLoadFailure(ctx context.Context, m *model.EntityMapping, err error, log *zap.Logger) (model.Stage, string, model.ErrorCategory) {
	var pse *resilience.PermanentStoreError
	if eris.As(err, &pse) {
		log.Warn("store rejected record, quarantining", zap.Error(err))
		if serr := o.ledger.SetStage(ctx, m, model.StageQuarantined, err.Error()); serr != nil && !eris.Is(serr, ledger.ErrStaleEntry) {
			log.Error("failed to quarantine entry", zap.Error(serr))
		}
		return model.StageQuarantined, err.Error(), model.CategoryPermanent
	}

	cat := model.CategoryTransient
	if !resilience.IsTransient(err) {
		cat = model.CategoryLedger
	}
	log.Warn("load failed after retries", zap.Error(err))
	if serr := o.ledger.SetStage(ctx, m, model.StageFailed, err.Error()); serr != nil && !eris.Is(serr, ledger.ErrStaleEntry) {
		log.Error("failed to mark entry failed", zap.Error(serr))
	}
	return model.StageFailed, err.Error(), cat
}
