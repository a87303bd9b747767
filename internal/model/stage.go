package model

import "github.com/rotisserie/eris"

// Stage is one state of the per-record pipeline state machine. Stages
// advance strictly in order; Failed is reachable from any non-terminal
// stage, Quarantined only from Validating (template mismatch) or Loading
// (store rejected the write after exhausting retries).
type Stage string

const (
	StagePending     Stage = "pending"
	StageValidating  Stage = "validating"
	StageValidated   Stage = "validated"
	StageParsing     Stage = "parsing"
	StageParsed      Stage = "parsed"
	StageHarmonizing Stage = "harmonizing"
	StageHarmonized  Stage = "harmonized"
	StageLoading     Stage = "loading"
	StageLoaded      Stage = "loaded"
	StageIntegrated  Stage = "integrated"
	StageFailed      Stage = "failed"
	StageQuarantined Stage = "quarantined"
)

var stageOrder = map[Stage]int{
	StagePending:     0,
	StageValidating:  1,
	StageValidated:   2,
	StageParsing:     3,
	StageParsed:      4,
	StageHarmonizing: 5,
	StageHarmonized:  6,
	StageLoading:     7,
	StageLoaded:      8,
	StageIntegrated:  9,
}

// ParseStage converts a stored string into a Stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if _, ok := stageOrder[st]; ok {
		return st, nil
	}
	if st == StageFailed || st == StageQuarantined {
		return st, nil
	}
	return "", eris.Errorf("unknown stage: %q", s)
}

// AtLeast reports whether s has reached or passed other in the ordered
// progression. Failed and Quarantined are outside the ordering and never
// satisfy AtLeast.
func (s Stage) AtLeast(other Stage) bool {
	si, ok := stageOrder[s]
	if !ok {
		return false
	}
	oi, ok := stageOrder[other]
	if !ok {
		return false
	}
	return si >= oi
}

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageIntegrated || s == StageFailed || s == StageQuarantined
}

// CanQuarantine reports whether a quarantine transition is legal from s.
func (s Stage) CanQuarantine() bool {
	return s == StageValidating || s == StageLoading
}
