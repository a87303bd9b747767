package model

// DefaultStorageClass returns the store a record kind is destined for.
// Tabular entities go to the relational store; deeply nested single-cell
// and spatial payloads go to the document store.
func DefaultStorageClass(kind RecordKind) StorageClass {
	switch kind {
	case KindSingleCell, KindSpatial:
		return SemiStructured
	default:
		return Structured
	}
}

// TableForKind returns the relational table name for a structured kind.
func TableForKind(kind RecordKind) string {
	switch kind {
	case KindGene:
		return "omics.genes"
	case KindClinicalMetadata:
		return "omics.clinical_metadata"
	case KindSample:
		return "omics.samples"
	case KindExpression:
		return "omics.expression_data"
	case KindMethylation:
		return "omics.methylation_data"
	case KindChromatin:
		return "omics.chromatin_data"
	case KindMicroRNA:
		return "omics.mirna_data"
	default:
		return "omics." + string(kind)
	}
}

// CollectionForKind returns the document collection name for a
// semi-structured kind.
func CollectionForKind(kind RecordKind) string {
	switch kind {
	case KindSingleCell:
		return "single_cell_data"
	case KindSpatial:
		return "spatial_data"
	default:
		return string(kind)
	}
}
