// Package harmonize performs cross-source identifier resolution, unit
// normalization, and in-batch deduplication of canonical records. The
// whole pass is idempotent: harmonizing an already-harmonized batch is a
// no-op.
package harmonize

import (
	"go.uber.org/zap"

	"github.com/hnsc-omics/omics-cli/internal/model"
)

// Warning reports a non-fatal resolution failure. The affected record
// proceeds tagged unresolved; it is never dropped.
type Warning struct {
	NaturalKey string `json:"natural_key"`
	Identifier string `json:"identifier"`
}

// Harmonizer applies the static synonym table and unit rules.
type Harmonizer struct {
	genes *SynonymTable
}

// New creates a Harmonizer with the given synonym table; nil means the
// built-in default table.
func New(genes *SynonymTable) *Harmonizer {
	if genes == nil {
		genes = DefaultSynonymTable()
	}
	return &Harmonizer{genes: genes}
}

// Harmonize resolves identifiers, normalizes units, deduplicates exact
// repeats by natural key (keeping the most recently observed typed
// fields, merging attributes additively), and synthesizes derived
// sample stubs for sample keys referenced but absent from the batch.
func (h *Harmonizer) Harmonize(records []model.CanonicalRecord) ([]model.CanonicalRecord, []Warning) {
	var warnings []Warning

	// Pass 1: per-record resolution and normalization.
	resolved := make([]model.CanonicalRecord, len(records))
	for i, rec := range records {
		r := rec
		if r.GeneSymbol != "" {
			if entry, ok := h.genes.Resolve(r.GeneSymbol); ok {
				r.GeneSymbol = entry.Symbol
				r.Unresolved = false
				if r.Kind == model.KindGene {
					r.SetAttr("ensembl_gene_id", entry.EnsemblGeneID)
					r.SetAttr("uniprot_id", entry.UniprotID)
				}
			} else if !r.Unresolved {
				// Fail closed: tag and pass through.
				r.Unresolved = true
				warnings = append(warnings, Warning{
					NaturalKey: r.NaturalKey,
					Identifier: r.GeneSymbol,
				})
			}
		}
		normalizeUnits(&r)
		resolved[i] = r
	}

	// Pass 2: dedupe by identity, first-seen order, latest wins.
	index := make(map[string]int)
	var out []model.CanonicalRecord
	for _, r := range resolved {
		id := r.Identity()
		if pos, seen := index[id]; seen {
			merged := mergeDuplicate(out[pos], r)
			out[pos] = merged
			continue
		}
		index[id] = len(out)
		out = append(out, r)
	}

	// Pass 3: derived sample stubs. A sample is created when first
	// referenced by any omics record; linkage resolves at load time.
	samples := make(map[string]bool)
	for _, r := range out {
		if r.Kind == model.KindSample {
			samples[r.Source+"|"+r.NaturalKey] = true
		}
	}
	for _, r := range out {
		if !r.HasSampleRef() {
			continue
		}
		key := r.Source + "|" + r.SampleKey
		if samples[key] {
			continue
		}
		samples[key] = true
		zap.L().Debug("synthesizing referenced sample",
			zap.String("source", r.Source),
			zap.String("sample_key", r.SampleKey),
		)
		out = append(out, model.CanonicalRecord{
			Source:          r.Source,
			Kind:            model.KindSample,
			NaturalKey:      r.SampleKey,
			StorageClass:    model.DefaultStorageClass(model.KindSample),
			IntegrationType: model.IntegrationDerived,
		})
	}

	return out, warnings
}

// mergeDuplicate keeps the later observation's typed fields and merges
// attributes additively on top of them.
func mergeDuplicate(old, latest model.CanonicalRecord) model.CanonicalRecord {
	merged := latest
	merged.MergeAttributes(old.Attributes)
	if merged.Value == nil {
		merged.Value = old.Value
	}
	if merged.Platform == "" {
		merged.Platform = old.Platform
	}
	if merged.TissueType == "" {
		merged.TissueType = old.TissueType
	}
	if merged.ClinicalKey == "" {
		merged.ClinicalKey = old.ClinicalKey
	}
	merged.IntegrationType = model.IntegrationAggregated
	return merged
}

// normalizeUnits applies per-kind value rules. Methylation beta values
// arriving on a percent scale are rescaled into [0,1] and clamped;
// count-like values never go negative.
func normalizeUnits(r *model.CanonicalRecord) {
	if r.Value == nil {
		return
	}
	v := *r.Value
	switch r.Kind {
	case model.KindMethylation:
		if v > 1 && v <= 100 {
			v = v / 100
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
	case model.KindExpression, model.KindMicroRNA, model.KindChromatin:
		if v < 0 {
			v = 0
		}
	}
	r.Value = model.Float64Ptr(v)
}
