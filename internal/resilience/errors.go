package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// ValidationError reports a structural template mismatch. Recoverable
// only by fixing the template or the source; routes the record to
// quarantine, never retried.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Path + ": " + e.Reason
}

// ResolutionWarning is raised by the harmonizer when an identifier could
// not be resolved. Non-fatal: the record proceeds tagged unresolved.
type ResolutionWarning struct {
	Identifier string
}

func (e *ResolutionWarning) Error() string {
	return "unresolved identifier: " + e.Identifier
}

// TransientStoreError wraps a store timeout or connection failure that
// is safe to retry with backoff.
type TransientStoreError struct {
	Store string // "relational" or "document"
	Err   error
}

func (e *TransientStoreError) Error() string {
	return e.Store + " store: " + e.Err.Error()
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// PermanentStoreError wraps a constraint violation or malformed payload
// rejection. Routes the record to quarantine for review, never retried.
type PermanentStoreError struct {
	Store string
	Err   error
}

func (e *PermanentStoreError) Error() string {
	return e.Store + " store: " + e.Err.Error()
}

func (e *PermanentStoreError) Unwrap() error { return e.Err }

// LedgerConsistencyError reports that a referenced entity never reached
// loaded within the reconciliation window. Surfaced as a warning on the
// dependent record, not an abort.
type LedgerConsistencyError struct {
	MappingID  string
	Referenced string
}

func (e *LedgerConsistencyError) Error() string {
	return "ledger: referenced entity " + e.Referenced + " not loaded for " + e.MappingID
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientStoreError, or matches common transient network patterns
// (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var tse *TransientStoreError
	if errors.As(err, &tse) {
		return true
	}
	var pse *PermanentStoreError
	if errors.As(err, &pse) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String heuristics for errors wrapped by drivers that do not expose
	// typed causes.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"i/o timeout",
		"server closed idle connection",
		"connection timed out",
		"too many connections",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// ClassifyError categorizes an error as "transient" or "permanent" for
// run summaries.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
