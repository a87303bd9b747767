package model

// RecordKind identifies the omics or clinical entity a canonical record
// represents.
type RecordKind string

const (
	KindGene             RecordKind = "gene"
	KindClinicalMetadata RecordKind = "clinical_metadata"
	KindSample           RecordKind = "sample"
	KindExpression       RecordKind = "expression"
	KindMethylation      RecordKind = "methylation"
	KindChromatin        RecordKind = "chromatin"
	KindMicroRNA         RecordKind = "mirna"
	KindSingleCell       RecordKind = "single_cell"
	KindSpatial          RecordKind = "spatial"
)

// AllKinds lists every record kind the engine knows about.
func AllKinds() []RecordKind {
	return []RecordKind{
		KindGene, KindClinicalMetadata, KindSample, KindExpression,
		KindMethylation, KindChromatin, KindMicroRNA, KindSingleCell,
		KindSpatial,
	}
}

// StorageClass decides which store a record lands in.
type StorageClass string

const (
	// Structured records upsert into the relational store.
	Structured StorageClass = "structured"
	// SemiStructured records upsert into the document store.
	SemiStructured StorageClass = "semi_structured"
)

// AssayKind distinguishes chromatin records by assay type.
type AssayKind string

const (
	AssayATAC AssayKind = "atac"
	AssayChIP AssayKind = "chip"
)

// CanonicalRecord is the engine's internal, source-independent
// representation of one omics or clinical fact. Natural keys are unique
// within a source+kind pair; cross-source identity is resolved only
// through the entity mapping ledger, never by key collision.
type CanonicalRecord struct {
	Source       string       `json:"source"`
	Kind         RecordKind   `json:"kind"`
	NaturalKey   string       `json:"natural_key"`
	StorageClass StorageClass `json:"storage_class"`

	// Back-references by natural key. SampleKey links omics records to
	// their specimen; ClinicalKey links a sample to clinical metadata
	// (at most one, linkage is 1:1).
	SampleKey   string `json:"sample_key,omitempty"`
	ClinicalKey string `json:"clinical_key,omitempty"`

	// Typed fields promoted per kind.
	GeneSymbol string    `json:"gene_symbol,omitempty"`
	Platform   string    `json:"platform,omitempty"`
	TissueType string    `json:"tissue_type,omitempty"`
	Assay      AssayKind `json:"assay,omitempty"`
	Value      *float64  `json:"value,omitempty"`
	Unit       string    `json:"unit,omitempty"`

	// Attributes holds fields not yet promoted to typed columns,
	// including unknown fields preserved by the validator.
	Attributes map[string]any `json:"attributes,omitempty"`

	// Set by the harmonizer.
	Unresolved      bool            `json:"unresolved,omitempty"`
	IntegrationType IntegrationType `json:"integration_type,omitempty"`
}

// Identity returns the (source, kind, naturalKey) triple as a single
// string, matching the ledger's mapping identity.
func (r *CanonicalRecord) Identity() string {
	return r.Source + "|" + string(r.Kind) + "|" + r.NaturalKey
}

// HasSampleRef reports whether this record declares a cross-store
// relationship to a sample that must be resolvable before the record can
// be considered integrated.
func (r *CanonicalRecord) HasSampleRef() bool {
	return r.SampleKey != "" && r.Kind != KindSample
}

// SetAttr stores an attribute, allocating the map on first use.
func (r *CanonicalRecord) SetAttr(key string, val any) {
	if r.Attributes == nil {
		r.Attributes = make(map[string]any)
	}
	r.Attributes[key] = val
}

// MergeAttributes merges attributes from other into r additively: keys
// already present with a non-nil value are never overwritten. Sample
// enrichment relies on this merge-never-clobber rule.
func (r *CanonicalRecord) MergeAttributes(other map[string]any) {
	if len(other) == 0 {
		return
	}
	if r.Attributes == nil {
		r.Attributes = make(map[string]any, len(other))
	}
	for k, v := range other {
		if existing, ok := r.Attributes[k]; ok && existing != nil {
			continue
		}
		r.Attributes[k] = v
	}
}

// Document renders the record as a nested key/value tree suitable for a
// document-store upsert.
func (r *CanonicalRecord) Document() map[string]any {
	doc := map[string]any{
		"source":      r.Source,
		"kind":        string(r.Kind),
		"natural_key": r.NaturalKey,
	}
	if r.SampleKey != "" {
		doc["sample_key"] = r.SampleKey
	}
	if r.ClinicalKey != "" {
		doc["clinical_key"] = r.ClinicalKey
	}
	if r.GeneSymbol != "" {
		doc["gene_symbol"] = r.GeneSymbol
	}
	if r.Platform != "" {
		doc["platform"] = r.Platform
	}
	if r.TissueType != "" {
		doc["tissue_type"] = r.TissueType
	}
	if r.Assay != "" {
		doc["assay"] = string(r.Assay)
	}
	if r.Value != nil {
		doc["value"] = *r.Value
	}
	if r.Unit != "" {
		doc["unit"] = r.Unit
	}
	if r.Unresolved {
		doc["unresolved"] = true
	}
	if len(r.Attributes) > 0 {
		doc["attributes"] = r.Attributes
	}
	return doc
}

// Fields renders the record's typed columns for a relational upsert.
// Attributes travel in a single JSON column.
func (r *CanonicalRecord) Fields() map[string]any {
	fields := map[string]any{
		"source": r.Source,
		"kind":   string(r.Kind),
	}
	if r.SampleKey != "" {
		fields["sample_key"] = r.SampleKey
	}
	if r.ClinicalKey != "" {
		fields["clinical_key"] = r.ClinicalKey
	}
	if r.GeneSymbol != "" {
		fields["gene_symbol"] = r.GeneSymbol
	}
	if r.Platform != "" {
		fields["platform"] = r.Platform
	}
	if r.TissueType != "" {
		fields["tissue_type"] = r.TissueType
	}
	if r.Assay != "" {
		fields["assay"] = string(r.Assay)
	}
	if r.Value != nil {
		fields["value"] = *r.Value
	}
	if r.Unit != "" {
		fields["unit"] = r.Unit
	}
	fields["unresolved"] = r.Unresolved
	return fields
}

// Float64Ptr is a convenience for building records with literal values.
func Float64Ptr(v float64) *float64 { return &v }
