package template

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/hnsc-omics/omics-cli/internal/rawtree"
)

// Violation is one structural problem found during validation.
type Violation struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ValidationResult carries either an accepted field set or the list of
// violations. Violations never raise; the caller decides whether to
// skip, quarantine, or abort the record.
type ValidationResult struct {
	// Fields maps declared field names to their matched value (or []any
	// for repeated fields).
	Fields map[string]any
	// Extra holds leaf paths present in the payload but not declared by
	// the template, preserved for the record's attribute mapping.
	Extra map[string]any
	// Violations lists structural mismatches. Empty means accepted.
	Violations []Violation
}

// OK reports whether the record passed validation.
func (r *ValidationResult) OK() bool { return len(r.Violations) == 0 }

// Reasons renders the violations as strings for logging and summaries.
func (r *ValidationResult) Reasons() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.Path + ": " + v.Reason
	}
	return out
}

// Validate checks a raw record against a template. Validation is
// structural only: presence, type, and cardinality. Unknown fields are
// preserved under Extra rather than dropped, so sources can add fields
// without breaking ingestion.
func Validate(tree *rawtree.Tree, tpl *Template) *ValidationResult {
	res := &ValidationResult{
		Fields: make(map[string]any),
	}

	consumed := make(map[string]bool)

	for name, spec := range tpl.Fields {
		expr, err := jp.ParseString(spec.Path)
		if err != nil {
			res.Violations = append(res.Violations, Violation{
				Path:   spec.Path,
				Reason: "invalid path expression",
			})
			continue
		}

		matches := expr.Get(tree.Root())
		for _, loc := range expr.Locate(tree.Root(), 0) {
			markConsumed(loc.String(), consumed)
		}

		if len(matches) == 0 {
			if spec.Required {
				res.Violations = append(res.Violations, Violation{
					Path:   spec.Path,
					Reason: "required field missing",
				})
			}
			continue
		}

		if !spec.Repeated && len(matches) > 1 {
			res.Violations = append(res.Violations, Violation{
				Path:   spec.Path,
				Reason: fmt.Sprintf("expected single value, found %d", len(matches)),
			})
			continue
		}

		var bad bool
		for _, m := range matches {
			if reason, ok := checkType(m, spec.Type); !ok {
				res.Violations = append(res.Violations, Violation{
					Path:   spec.Path,
					Reason: reason,
				})
				bad = true
				break
			}
		}
		if bad {
			continue
		}

		if spec.Required && !spec.Repeated && isEmpty(matches[0]) {
			res.Violations = append(res.Violations, Violation{
				Path:   spec.Path,
				Reason: "required field empty",
			})
			continue
		}

		if spec.Repeated {
			res.Fields[name] = matches
		} else {
			res.Fields[name] = matches[0]
		}
	}

	// Everything the template did not claim is preserved.
	for path, val := range tree.Leaves() {
		if !leafConsumed(path, consumed) {
			if res.Extra == nil {
				res.Extra = make(map[string]any)
			}
			res.Extra[path] = val
		}
	}

	return res
}

func checkType(v any, ft FieldType) (string, bool) {
	switch ft {
	case TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Sprintf("expected string, got %T", v), false
		}
	case TypeNumber:
		if _, ok := rawtree.Float64(v); !ok {
			return fmt.Sprintf("expected number, got %T", v), false
		}
	case TypeBool:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("expected bool, got %T", v), false
		}
	case TypeAny, "":
		// Anything goes.
	default:
		return fmt.Sprintf("unknown declared type %q", ft), false
	}
	return "", true
}

func isEmpty(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// markConsumed records a located match path (e.g. "$.series.title" or
// "$.samples[2].id") and all its descendants as claimed by the template.
func markConsumed(located string, consumed map[string]bool) {
	p := strings.TrimPrefix(located, "$")
	p = strings.TrimPrefix(p, ".")
	p = strings.ReplaceAll(p, "[", ".")
	p = strings.ReplaceAll(p, "]", "")
	p = strings.ReplaceAll(p, "'", "")
	if p != "" {
		consumed[p] = true
	}
}

// leafConsumed reports whether a dotted leaf path or any of its
// ancestors was claimed by a template field.
func leafConsumed(path string, consumed map[string]bool) bool {
	if consumed[path] {
		return true
	}
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '.' && consumed[path[:i]] {
			return true
		}
	}
	return false
}
