package adapter

import (
	"strings"

	"github.com/hnsc-omics/omics-cli/internal/model"
	"github.com/hnsc-omics/omics-cli/internal/rawtree"
	"github.com/hnsc-omics/omics-cli/internal/template"
)

// GEO parses GEO-style sample payloads: one raw record per sample, with
// series metadata, a library strategy, and an optional per-gene value
// table. The library strategy decides which omics kind the value table
// becomes.
type GEO struct{}

// NewGEO creates the GEO adapter.
func NewGEO() *GEO { return &GEO{} }

func (a *GEO) SourceName() string { return "geo" }

func (a *GEO) SupportedKinds() []model.RecordKind {
	return []model.RecordKind{
		model.KindSample, model.KindExpression, model.KindMethylation,
		model.KindChromatin, model.KindMicroRNA, model.KindSingleCell,
		model.KindSpatial,
	}
}

func (a *GEO) Parse(v *template.ValidationResult, tpl *template.Template) ([]model.CanonicalRecord, error) {
	sampleID := fieldString(v, "sample_id")
	if sampleID == "" {
		// Validation guarantees presence for the sample template; other
		// kinds may legitimately carry no sample payload.
		return nil, nil
	}

	kind, assay := ClassifyLibraryStrategy(fieldString(v, "library_strategy"))

	sample := model.CanonicalRecord{
		Source:          a.SourceName(),
		Kind:            model.KindSample,
		NaturalKey:      sampleID,
		StorageClass:    model.DefaultStorageClass(model.KindSample),
		Platform:        fieldString(v, "platform"),
		TissueType:      fieldString(v, "tissue"),
		IntegrationType: model.IntegrationDirect,
	}
	if title := fieldString(v, "title"); title != "" {
		sample.SetAttr("title", title)
	}
	if series := fieldString(v, "series_id"); series != "" {
		sample.SetAttr("series_id", series)
	}
	for i, c := range fieldSlice(v, "characteristics") {
		key, val := splitCharacteristic(rawtree.Stringify(c), i)
		sample.SetAttr(key, val)
	}
	sample.MergeAttributes(v.Extra)

	records := []model.CanonicalRecord{sample}

	values := fieldSlice(v, "values")
	if len(values) == 0 {
		return records, nil
	}

	switch kind {
	case model.KindSingleCell, model.KindSpatial:
		// Nested matrices stay whole: one semi-structured record per
		// sample, payload preserved under attributes.
		rec := model.CanonicalRecord{
			Source:          a.SourceName(),
			Kind:            kind,
			NaturalKey:      sampleID + keySuffix(kind),
			StorageClass:    model.DefaultStorageClass(kind),
			SampleKey:       sampleID,
			Platform:        sample.Platform,
			IntegrationType: model.IntegrationDirect,
		}
		rec.SetAttr("matrix", values)
		records = append(records, rec)
	default:
		for _, raw := range values {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			gene := rawtree.Stringify(entry["gene"])
			if gene == "" {
				continue
			}
			val, haveVal := rawtree.Float64(entry["value"])
			rec := model.CanonicalRecord{
				Source:          a.SourceName(),
				Kind:            kind,
				NaturalKey:      sampleID + "_" + gene + keySuffix(kind),
				StorageClass:    model.DefaultStorageClass(kind),
				SampleKey:       sampleID,
				GeneSymbol:      gene,
				Unit:            unitFor(kind),
				Assay:           assay,
				IntegrationType: model.IntegrationDirect,
			}
			if haveVal {
				rec.Value = model.Float64Ptr(val)
			}
			records = append(records, rec)
		}
	}

	return records, nil
}

// ClassifyLibraryStrategy maps a GEO library strategy string to the
// record kind its data table represents. Unrecognized strategies default
// to bulk expression.
func ClassifyLibraryStrategy(strategy string) (model.RecordKind, model.AssayKind) {
	s := strings.ToLower(strings.TrimSpace(strategy))
	switch {
	case strings.Contains(s, "single cell"), strings.Contains(s, "scrna"):
		return model.KindSingleCell, ""
	case strings.Contains(s, "spatial"), strings.Contains(s, "visium"):
		return model.KindSpatial, ""
	case strings.Contains(s, "mirna"), strings.Contains(s, "small rna"):
		return model.KindMicroRNA, ""
	case strings.Contains(s, "bisulfite"), strings.Contains(s, "methyl"):
		return model.KindMethylation, ""
	case strings.Contains(s, "atac"):
		return model.KindChromatin, model.AssayATAC
	case strings.Contains(s, "chip"):
		return model.KindChromatin, model.AssayChIP
	default:
		return model.KindExpression, ""
	}
}

func keySuffix(kind model.RecordKind) string {
	switch kind {
	case model.KindExpression:
		return "_TPM"
	case model.KindMethylation:
		return "_Beta"
	case model.KindChromatin:
		return "_Peak"
	case model.KindMicroRNA:
		return "_Counts"
	case model.KindSingleCell:
		return "_scMatrix"
	case model.KindSpatial:
		return "_spMatrix"
	default:
		return ""
	}
}

func unitFor(kind model.RecordKind) string {
	switch kind {
	case model.KindExpression:
		return "tpm"
	case model.KindMethylation:
		return "beta"
	case model.KindChromatin:
		return "peak_score"
	case model.KindMicroRNA:
		return "counts"
	default:
		return ""
	}
}

// splitCharacteristic turns a "key: value" GEO characteristic line into
// an attribute pair. Lines without a separator get a positional key.
func splitCharacteristic(line string, idx int) (string, string) {
	if k, v, found := strings.Cut(line, ":"); found {
		key := strings.ToLower(strings.TrimSpace(k))
		key = strings.ReplaceAll(key, " ", "_")
		if key != "" {
			return "characteristic_" + key, strings.TrimSpace(v)
		}
	}
	return "characteristic_" + string(rune('0'+idx%10)), strings.TrimSpace(line)
}
