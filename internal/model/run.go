package model

import "time"

// PipelineRun tracks one execution of the orchestrator for a given
// source + batch. Created at run start, mutated only by the
// orchestrator, retained indefinitely for audit and replay.
type PipelineRun struct {
	RunID        string      `json:"run_id"`
	Source       string      `json:"source"`
	Stage        Stage       `json:"stage"`
	Attempts     int         `json:"attempts"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	ErrorSummary *RunSummary `json:"error_summary,omitempty"`
}

// ErrorCategory groups run errors for reporting.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryResolution ErrorCategory = "resolution"
	CategoryTransient  ErrorCategory = "transient_store"
	CategoryPermanent  ErrorCategory = "permanent_store"
	CategoryLedger     ErrorCategory = "ledger_consistency"
)

// RunSummary is the orchestrator's user-visible report for one run:
// counts per terminal stage and the first N error reasons per category.
// Never a bare success/failure boolean.
type RunSummary struct {
	Loaded      int                        `json:"loaded"`
	Integrated  int                        `json:"integrated"`
	Quarantined int                        `json:"quarantined"`
	Failed      int                        `json:"failed"`
	Warnings    int                        `json:"warnings"`
	Errors      map[ErrorCategory][]string `json:"errors,omitempty"`
}

// maxReasonsPerCategory caps how many error reasons a summary retains
// for each category.
const maxReasonsPerCategory = 10

// AddError records an error reason under a category, keeping only the
// first N per category.
func (s *RunSummary) AddError(cat ErrorCategory, reason string) {
	if s.Errors == nil {
		s.Errors = make(map[ErrorCategory][]string)
	}
	if len(s.Errors[cat]) < maxReasonsPerCategory {
		s.Errors[cat] = append(s.Errors[cat], reason)
	}
}

// Count records a record's terminal stage.
func (s *RunSummary) Count(stage Stage) {
	switch stage {
	case StageLoaded:
		s.Loaded++
	case StageIntegrated:
		s.Integrated++
	case StageQuarantined:
		s.Quarantined++
	case StageFailed:
		s.Failed++
	}
}

// Total returns the number of records the summary accounts for.
func (s *RunSummary) Total() int {
	return s.Loaded + s.Integrated + s.Quarantined + s.Failed
}
