// Package adapter converts validated raw records into canonical
// records. Adapters are pure functions of their input plus the template:
// no I/O, no store access.
package adapter

import (
	"github.com/rotisserie/eris"

	"github.com/hnsc-omics/omics-cli/internal/model"
	"github.com/hnsc-omics/omics-cli/internal/template"
)

// Adapter parses one external archive's validated payloads. A record
// that validates but yields zero canonical records (e.g., an empty
// supplementary payload) is not an error: Parse returns an empty slice
// and the orchestrator logs it.
type Adapter interface {
	// SourceName returns the archive this adapter handles (e.g. "geo").
	SourceName() string

	// SupportedKinds lists the record kinds this adapter can emit.
	SupportedKinds() []model.RecordKind

	// Parse converts a validated record into zero or more canonical
	// records.
	Parse(v *template.ValidationResult, tpl *template.Template) ([]model.CanonicalRecord, error)
}

// Registry holds the configured adapters keyed by source name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	reg := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		reg.adapters[a.SourceName()] = a
	}
	return reg
}

// DefaultRegistry returns the registry with every built-in adapter.
func DefaultRegistry() *Registry {
	return NewRegistry(NewGEO(), NewCPTAC(), NewArrayExpress())
}

// Get returns the adapter for a source.
func (r *Registry) Get(source string) (Adapter, error) {
	a, ok := r.adapters[source]
	if !ok {
		return nil, eris.Errorf("adapter: no adapter registered for source %q", source)
	}
	return a, nil
}

// Sources returns the registered source names.
func (r *Registry) Sources() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// fieldString reads a declared single-valued field as a string.
func fieldString(v *template.ValidationResult, name string) string {
	raw, ok := v.Fields[name]
	if !ok {
		return ""
	}
	s, _ := raw.(string)
	return s
}

// fieldSlice reads a declared repeated field.
func fieldSlice(v *template.ValidationResult, name string) []any {
	raw, ok := v.Fields[name]
	if !ok {
		return nil
	}
	s, _ := raw.([]any)
	return s
}
