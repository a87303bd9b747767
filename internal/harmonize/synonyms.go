package harmonize

import "strings"

// GeneEntry is one row of the static synonym table: the canonical symbol
// plus cross-archive identifiers surfaced into gene record attributes.
type GeneEntry struct {
	Symbol        string
	EnsemblGeneID string
	UniprotID     string
	Aliases       []string
}

// SynonymTable resolves gene symbols and aliases to a single canonical
// identifier. Lookup is case-insensitive.
type SynonymTable struct {
	byAlias map[string]*GeneEntry
}

// NewSynonymTable indexes the given entries by symbol and alias.
func NewSynonymTable(entries []GeneEntry) *SynonymTable {
	t := &SynonymTable{byAlias: make(map[string]*GeneEntry)}
	for i := range entries {
		e := &entries[i]
		t.byAlias[strings.ToUpper(e.Symbol)] = e
		for _, a := range e.Aliases {
			t.byAlias[strings.ToUpper(a)] = e
		}
	}
	return t
}

// Resolve returns the canonical entry for a symbol or alias.
func (t *SynonymTable) Resolve(symbol string) (*GeneEntry, bool) {
	e, ok := t.byAlias[strings.ToUpper(strings.TrimSpace(symbol))]
	return e, ok
}

// DefaultSynonymTable returns the built-in table covering the genes the
// ingestion pipelines most commonly see in head-and-neck cohorts.
func DefaultSynonymTable() *SynonymTable {
	return NewSynonymTable([]GeneEntry{
		{Symbol: "TP53", EnsemblGeneID: "ENSG00000141510", UniprotID: "P04637", Aliases: []string{"p53", "TRP53", "LFS1"}},
		{Symbol: "EGFR", EnsemblGeneID: "ENSG00000146648", UniprotID: "P00533", Aliases: []string{"ERBB1", "HER1"}},
		{Symbol: "CDKN2A", EnsemblGeneID: "ENSG00000147889", UniprotID: "P42771", Aliases: []string{"p16", "INK4A", "MTS1"}},
		{Symbol: "PIK3CA", EnsemblGeneID: "ENSG00000121879", UniprotID: "P42336", Aliases: []string{"PI3K", "p110alpha"}},
		{Symbol: "NOTCH1", EnsemblGeneID: "ENSG00000148400", UniprotID: "P46531", Aliases: []string{"TAN1", "hN1"}},
		{Symbol: "MYC", EnsemblGeneID: "ENSG00000136997", UniprotID: "P01106", Aliases: []string{"c-Myc", "bHLHe39"}},
		{Symbol: "CCND1", EnsemblGeneID: "ENSG00000110092", UniprotID: "P24385", Aliases: []string{"BCL1", "PRAD1", "cyclin D1"}},
		{Symbol: "FAT1", EnsemblGeneID: "ENSG00000083857", UniprotID: "Q14517", Aliases: []string{"CDHF7"}},
		{Symbol: "HRAS", EnsemblGeneID: "ENSG00000174775", UniprotID: "P01112", Aliases: []string{"HRAS1", "c-H-ras"}},
		{Symbol: "PTEN", EnsemblGeneID: "ENSG00000171862", UniprotID: "P60484", Aliases: []string{"MMAC1", "TEP1"}},
	})
}
