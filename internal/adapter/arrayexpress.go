package adapter

import (
	"github.com/hnsc-omics/omics-cli/internal/model"
	"github.com/hnsc-omics/omics-cli/internal/rawtree"
	"github.com/hnsc-omics/omics-cli/internal/template"
)

// ArrayExpress parses functional-genomics archive payloads: methylation
// probe tables and chromatin accessibility/binding peak tables keyed by
// assay type.
type ArrayExpress struct{}

// NewArrayExpress creates the ArrayExpress adapter.
func NewArrayExpress() *ArrayExpress { return &ArrayExpress{} }

func (a *ArrayExpress) SourceName() string { return "arrayexpress" }

func (a *ArrayExpress) SupportedKinds() []model.RecordKind {
	return []model.RecordKind{
		model.KindSample, model.KindMethylation, model.KindChromatin,
	}
}

func (a *ArrayExpress) Parse(v *template.ValidationResult, tpl *template.Template) ([]model.CanonicalRecord, error) {
	sampleID := fieldString(v, "sample_id")
	if sampleID == "" {
		return nil, nil
	}

	sample := model.CanonicalRecord{
		Source:          a.SourceName(),
		Kind:            model.KindSample,
		NaturalKey:      sampleID,
		StorageClass:    model.DefaultStorageClass(model.KindSample),
		Platform:        fieldString(v, "platform"),
		TissueType:      fieldString(v, "tissue"),
		IntegrationType: model.IntegrationDirect,
	}
	sample.MergeAttributes(v.Extra)
	records := []model.CanonicalRecord{sample}

	assayType := fieldString(v, "assay_type")
	kind, assay := classifyAssay(assayType)

	for _, raw := range fieldSlice(v, "measurements") {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		target := rawtree.Stringify(entry["target"])
		if target == "" {
			continue
		}
		val, haveVal := rawtree.Float64(entry["value"])

		rec := model.CanonicalRecord{
			Source:          a.SourceName(),
			Kind:            kind,
			NaturalKey:      sampleID + "_" + target + keySuffix(kind),
			StorageClass:    model.DefaultStorageClass(kind),
			SampleKey:       sampleID,
			GeneSymbol:      target,
			Unit:            unitFor(kind),
			Assay:           assay,
			IntegrationType: model.IntegrationDirect,
		}
		if haveVal {
			rec.Value = model.Float64Ptr(val)
		}
		if region := rawtree.Stringify(entry["region"]); region != "" {
			rec.SetAttr("region", region)
		}
		records = append(records, rec)
	}

	return records, nil
}

func classifyAssay(assayType string) (model.RecordKind, model.AssayKind) {
	switch assayType {
	case "atac":
		return model.KindChromatin, model.AssayATAC
	case "chip":
		return model.KindChromatin, model.AssayChIP
	default:
		return model.KindMethylation, ""
	}
}
