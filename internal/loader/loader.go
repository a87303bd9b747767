// Package loader routes harmonized records into the relational or
// document store and keeps the entity mapping ledger in step. The store
// write always lands before the ledger update, so a crash between the
// two leaves the record at loading and a replay re-upserts the same key.
package loader

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hnsc-omics/omics-cli/internal/docstore"
	"github.com/hnsc-omics/omics-cli/internal/ledger"
	"github.com/hnsc-omics/omics-cli/internal/model"
	"github.com/hnsc-omics/omics-cli/internal/relstore"
	"github.com/hnsc-omics/omics-cli/internal/resilience"
)

// Store names used for circuit breakers and error reporting.
const (
	StoreRelational = "relational"
	StoreDocument   = "document"
)

// casAttempts bounds how often a lost optimistic check is retried
// against a freshly read entry before giving up.
const casAttempts = 3

// ErrEntryQuarantined reports that a concurrent run quarantined the
// entry while the store write was in flight. The write itself landed
// and is idempotent, but the ledger entry stays parked until an
// explicit requeue.
var ErrEntryQuarantined = eris.New("loader: entry quarantined concurrently")

// Loader writes records to their destination store and advances their
// ledger entries.
type Loader struct {
	rel      *relstore.Store
	docs     docstore.Store
	ledger   *ledger.Ledger
	breakers *resilience.ServiceBreakers
	retry    resilience.RetryConfig
}

// New creates a Loader. Each store gets its own circuit breaker so an
// outage on one side does not block the other.
func New(rel *relstore.Store, docs docstore.Store, led *ledger.Ledger, retry resilience.RetryConfig, cb resilience.CircuitBreakerConfig) *Loader {
	cb.ShouldTrip = resilience.IsTransient
	return &Loader{
		rel:      rel,
		docs:     docs,
		ledger:   led,
		breakers: resilience.NewServiceBreakers(cb),
		retry:    retry,
	}
}

// Load writes one record to its store and marks the entry loaded. The
// returned flag reports whether the store write inserted a new row or
// document. Transient store failures are retried with backoff inside
// the store's circuit breaker; the error returned after exhausting
// retries is typed so the caller can route the record.
func (l *Loader) Load(ctx context.Context, rec *model.CanonicalRecord, m *model.EntityMapping) (bool, error) {
	var (
		inserted bool
		relRef   *model.RelationalRef
		docRef   *model.DocumentRef
	)

	store := StoreRelational
	if rec.StorageClass == model.SemiStructured {
		store = StoreDocument
	}

	cfg := l.retry
	cfg.OnRetry = resilience.RetryLogger(store, "upsert")

	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return l.breakers.Get(store).Execute(ctx, func(ctx context.Context) error {
			var werr error
			switch store {
			case StoreDocument:
				collection := model.CollectionForKind(rec.Kind)
				inserted, werr = l.docs.UpsertDocument(ctx, collection, rec.NaturalKey, rec.Document())
				if werr == nil {
					docRef = &model.DocumentRef{Collection: collection, Key: rec.NaturalKey}
				}
			default:
				relRef, inserted, werr = l.rel.UpsertRecord(ctx, rec)
			}
			return classifyStoreError(store, werr)
		})
	})
	if err != nil {
		return false, err
	}

	if err := l.markLoaded(ctx, m, relRef, docRef); err != nil {
		return false, err
	}
	return inserted, nil
}

// markLoaded advances the entry to loaded, re-reading and retrying when
// a concurrent run touched it first. The later write wins; the store
// write it describes is idempotent, so overwriting the ledger entry is
// safe. The one exception is a concurrent quarantine, which must not be
// released here.
func (l *Loader) markLoaded(ctx context.Context, m *model.EntityMapping, relRef *model.RelationalRef, docRef *model.DocumentRef) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		err := l.ledger.MarkLoaded(ctx, m, relRef, docRef)
		if err == nil {
			return nil
		}
		if !eris.Is(err, ledger.ErrStaleEntry) {
			return err
		}

		fresh, gerr := l.ledger.Get(ctx, m.MappingID)
		if gerr != nil {
			return gerr
		}
		if fresh == nil {
			return eris.Errorf("loader: ledger entry %s vanished", m.MappingID)
		}
		if fresh.LastStage == model.StageQuarantined {
			*m = *fresh
			return ErrEntryQuarantined
		}
		zap.L().Debug("ledger entry changed concurrently, retrying",
			zap.String("mapping_id", m.MappingID),
			zap.String("stage", string(fresh.LastStage)),
		)
		*m = *fresh
	}
	return eris.Errorf("loader: could not mark %s loaded after %d attempts", m.MappingID, casAttempts)
}

// Integrate advances a loaded entry to integrated when its referential
// gate is satisfied: either the record carries no sample reference, or
// the referenced sample's own entry has reached loaded. Returns false
// with no error when the gate is not yet satisfied; the entry stays at
// loaded for a later reconciliation pass.
func (l *Loader) Integrate(ctx context.Context, m *model.EntityMapping) (bool, error) {
	if !m.LastStage.AtLeast(model.StageLoaded) {
		return false, eris.Errorf("loader: cannot integrate %s at stage %s", m.MappingID, m.LastStage)
	}
	if m.LastStage == model.StageIntegrated {
		return true, nil
	}

	if m.SampleKey != "" {
		sample, err := l.ledger.GetByIdentity(ctx, m.Source, model.KindSample, m.SampleKey)
		if err != nil {
			return false, err
		}
		if sample == nil || !sample.Loaded() {
			return false, nil
		}
	}

	if err := l.ledger.SetStage(ctx, m, model.StageIntegrated, ""); err != nil {
		if eris.Is(err, ledger.ErrStaleEntry) {
			// A concurrent run advanced or rewrote the entry; its view wins.
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Advanced int                   `json:"advanced"`
	Held     []model.EntityMapping `json:"held,omitempty"`
}

// Reconcile sweeps entries parked at loaded and advances those whose
// referenced samples have since landed. Entries still gated are
// returned for reporting; they carry a consistency warning, not an
// error.
func (l *Loader) Reconcile(ctx context.Context, source string) (*ReconcileReport, error) {
	entries, err := l.ledger.ListByStage(ctx, source, model.StageLoaded)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{}
	for i := range entries {
		m := entries[i]
		ok, err := l.Integrate(ctx, &m)
		if err != nil {
			return nil, err
		}
		if ok {
			report.Advanced++
			continue
		}
		report.Held = append(report.Held, m)
		zap.L().Warn("entry held at loaded, referenced sample not yet loaded",
			zap.String("mapping_id", m.MappingID),
			zap.String("sample_key", m.SampleKey),
		)
	}
	return report, nil
}

// BreakerStates exposes per-store circuit state for status reporting.
func (l *Loader) BreakerStates() map[string]resilience.CircuitState {
	return l.breakers.States()
}

// classifyStoreError wraps a raw store error in the typed taxonomy so
// retry and routing decisions are uniform across drivers.
func classifyStoreError(store string, err error) error {
	if err == nil {
		return nil
	}
	if resilience.IsTransient(err) {
		return &resilience.TransientStoreError{Store: store, Err: err}
	}
	return &resilience.PermanentStoreError{Store: store, Err: err}
}
