package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// IntegrationType is a provenance tag describing how a record relates to
// its source payload. It is set by the harmonizer and does not alter
// loader behavior.
type IntegrationType string

const (
	// IntegrationDirect marks records parsed 1:1 from a source payload.
	IntegrationDirect IntegrationType = "direct"
	// IntegrationDerived marks records synthesized from other records
	// (e.g., a sample created because an omics record referenced it).
	IntegrationDerived IntegrationType = "derived"
	// IntegrationAggregated marks records produced by merging duplicate
	// observations within a batch.
	IntegrationAggregated IntegrationType = "aggregated"
)

// RelationalRef locates a row in the relational store.
type RelationalRef struct {
	Table string `json:"table"`
	Key   string `json:"key"`
}

// DocumentRef locates a document in the document store.
type DocumentRef struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
}

// EntityMapping is one ledger entry: the authoritative cross-store index
// for a canonical record. At least one of RelationalRef/DocumentRef is
// non-nil once LastStage has reached loaded; downstream readers must not
// treat a record as loaded unless its entry says so.
type EntityMapping struct {
	MappingID       string          `json:"mapping_id"`
	Source          string          `json:"source"`
	Kind            RecordKind      `json:"kind"`
	NaturalKey      string          `json:"natural_key"`
	RelationalRef   *RelationalRef  `json:"relational_ref,omitempty"`
	DocumentRef     *DocumentRef    `json:"document_ref,omitempty"`
	SampleKey       string          `json:"sample_key,omitempty"`
	IntegrationType IntegrationType `json:"integration_type"`
	LastStage       Stage           `json:"last_stage"`
	ErrorReason     string          `json:"error_reason,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// MappingID derives the deterministic ledger key for a source+kind+
// naturalKey triple. Re-ingesting the same external record always maps
// to the same entry.
func MappingID(source string, kind RecordKind, naturalKey string) string {
	h := sha256.Sum256([]byte(source + "|" + string(kind) + "|" + naturalKey))
	return hex.EncodeToString(h[:])
}

// NewEntityMapping builds a pending ledger entry for a record. The
// sample back-reference is carried into the entry so integration gating
// can be evaluated from the ledger alone.
func NewEntityMapping(r *CanonicalRecord) *EntityMapping {
	m := &EntityMapping{
		MappingID:       MappingID(r.Source, r.Kind, r.NaturalKey),
		Source:          r.Source,
		Kind:            r.Kind,
		NaturalKey:      r.NaturalKey,
		IntegrationType: r.IntegrationType,
		LastStage:       StagePending,
	}
	if r.HasSampleRef() {
		m.SampleKey = r.SampleKey
	}
	return m
}

// Loaded reports whether the entry has reached loaded or beyond.
func (m *EntityMapping) Loaded() bool {
	return m.LastStage.AtLeast(StageLoaded)
}
