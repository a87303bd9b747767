package adapter

import (
	"github.com/hnsc-omics/omics-cli/internal/model"
	"github.com/hnsc-omics/omics-cli/internal/rawtree"
	"github.com/hnsc-omics/omics-cli/internal/template"
)

// CPTAC parses proteomics-consortium payloads: one raw record per case,
// carrying clinical metadata and gene-keyed abundance tables.
type CPTAC struct{}

// NewCPTAC creates the CPTAC adapter.
func NewCPTAC() *CPTAC { return &CPTAC{} }

func (a *CPTAC) SourceName() string { return "cptac" }

func (a *CPTAC) SupportedKinds() []model.RecordKind {
	return []model.RecordKind{
		model.KindClinicalMetadata, model.KindSample, model.KindGene,
		model.KindExpression,
	}
}

func (a *CPTAC) Parse(v *template.ValidationResult, tpl *template.Template) ([]model.CanonicalRecord, error) {
	caseID := fieldString(v, "case_id")
	if caseID == "" {
		return nil, nil
	}

	var records []model.CanonicalRecord

	clinicalKey := caseID + "_clinical"
	clinical := model.CanonicalRecord{
		Source:          a.SourceName(),
		Kind:            model.KindClinicalMetadata,
		NaturalKey:      clinicalKey,
		StorageClass:    model.DefaultStorageClass(model.KindClinicalMetadata),
		IntegrationType: model.IntegrationDirect,
	}
	for _, field := range []string{"diagnosis", "stage", "vital_status", "age", "sex"} {
		if val, ok := v.Fields[field]; ok {
			clinical.SetAttr(field, val)
		}
	}
	clinical.MergeAttributes(v.Extra)
	records = append(records, clinical)

	sample := model.CanonicalRecord{
		Source:          a.SourceName(),
		Kind:            model.KindSample,
		NaturalKey:      caseID,
		StorageClass:    model.DefaultStorageClass(model.KindSample),
		ClinicalKey:     clinicalKey,
		TissueType:      fieldString(v, "tissue"),
		Platform:        fieldString(v, "platform"),
		IntegrationType: model.IntegrationDirect,
	}
	records = append(records, sample)

	for _, raw := range fieldSlice(v, "abundances") {
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
			Kind:            model.KindExpression,
			NaturalKey:      caseID + "_" + gene + "_Abundance",
			StorageClass:    model.DefaultStorageClass(model.KindExpression),
			SampleKey:       caseID,
			GeneSymbol:      gene,
			Unit:            "log2_abundance",
			IntegrationType: model.IntegrationDirect,
		}
		if haveVal {
			rec.Value = model.Float64Ptr(val)
		}
		records = append(records, rec)

		// Gene catalog entry, enriched later by the harmonizer's
		// cross-identifier table.
		records = append(records, model.CanonicalRecord{
			Source:          a.SourceName(),
			Kind:            model.KindGene,
			NaturalKey:      gene,
			StorageClass:    model.DefaultStorageClass(model.KindGene),
			GeneSymbol:      gene,
			IntegrationType: model.IntegrationDirect,
		})
	}

	return records, nil
}
