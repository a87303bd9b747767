// Package template loads per-source field templates and validates raw
// hierarchical records against them. Templates are configuration, not
// code: adding a source means adding a YAML file, not touching the
// validator.
package template

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/hnsc-omics/omics-cli/internal/model"
)

// FieldType constrains the scalar type a declared field may hold.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeBool   FieldType = "bool"
	TypeAny    FieldType = "any"
)

// FieldSpec declares one field a source payload is expected to carry.
type FieldSpec struct {
	// Path is a JSONPath expression into the raw tree.
	Path string `yaml:"path"`
	// Type is the expected scalar type of each matched value.
	Type FieldType `yaml:"type"`
	// Required fields produce a violation when absent or empty.
	Required bool `yaml:"required"`
	// Repeated fields may match multiple values; single-valued fields
	// produce a violation when they match more than one.
	Repeated bool `yaml:"repeated"`
}

// Template enumerates the declared fields for one source+kind.
type Template struct {
	Source string               `yaml:"source"`
	Kind   model.RecordKind     `yaml:"kind"`
	Fields map[string]FieldSpec `yaml:"fields"`
}

// ID returns the template identifier used by raw sources, "source/kind".
func (t *Template) ID() string {
	return t.Source + "/" + string(t.Kind)
}

// Set holds all loaded templates keyed by ID.
type Set struct {
	templates map[string]*Template
}

// LoadDir reads every .yaml template under dir.
func LoadDir(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "template: read dir %s", dir)
	}

	set := &Set{templates: make(map[string]*Template)}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		tpl, err := loadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if _, dup := set.templates[tpl.ID()]; dup {
			return nil, eris.Errorf("template: duplicate template %s in %s", tpl.ID(), name)
		}
		set.templates[tpl.ID()] = tpl
	}
	return set, nil
}

// NewSet builds a Set from already-constructed templates. Used by tests
// and embedded defaults.
func NewSet(templates ...*Template) *Set {
	set := &Set{templates: make(map[string]*Template, len(templates))}
	for _, t := range templates {
		set.templates[t.ID()] = t
	}
	return set
}

// Get returns the template for an ID, or an error if the source was
// configured without one. A missing template aborts the whole run for
// that source, not just one record.
func (s *Set) Get(id string) (*Template, error) {
	tpl, ok := s.templates[id]
	if !ok {
		return nil, eris.Errorf("template: no template for %s", id)
	}
	return tpl, nil
}

// IDs returns the sorted set of loaded template IDs.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.templates))
	for id := range s.templates {
		ids = append(ids, id)
	}
	return ids
}

func loadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "template: read %s", path)
	}

	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, eris.Wrapf(err, "template: parse %s", path)
	}

	if tpl.Source == "" || tpl.Kind == "" {
		return nil, eris.Errorf("template: %s missing source or kind", path)
	}
	for name, spec := range tpl.Fields {
		if spec.Path == "" {
			return nil, eris.Errorf("template: %s field %q has no path", path, name)
		}
	}
	return &tpl, nil
}
