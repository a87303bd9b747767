// Package rawtree represents raw source payloads as a generic
// hierarchical tree consumed uniformly by the validator and the source
// adapters, addressed by JSONPath-style field paths.
package rawtree

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strconv"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/rotisserie/eris"
)

// Tree wraps one raw hierarchical record. The underlying value is a
// nesting of map[string]any, []any, and scalar leaves.
type Tree struct {
	root any
}

// New wraps an already-decoded value tree.
func New(root any) *Tree {
	return &Tree{root: root}
}

// FromJSON decodes a JSON payload into a tree.
func FromJSON(r io.Reader) (*Tree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "rawtree: read payload")
	}
	root, err := oj.Parse(data)
	if err != nil {
		return nil, eris.Wrap(err, "rawtree: parse json")
	}
	return &Tree{root: root}, nil
}

// Root returns the underlying value tree.
func (t *Tree) Root() any { return t.root }

// Get evaluates a JSONPath expression against the tree and returns all
// matches.
func (t *Tree) Get(path string) ([]any, error) {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rawtree: invalid path %q", path)
	}
	return x.Get(t.root), nil
}

// First returns the first match for a path, or (nil, false) when the
// path resolves to nothing.
func (t *Tree) First(path string) (any, bool) {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, false
	}
	v, ok := x.FirstFound(t.root)
	if !ok {
		return nil, false
	}
	return v, true
}

// FirstString returns the first match for a path rendered as a string.
// Numeric scalars are formatted; missing paths return "".
func (t *Tree) FirstString(path string) string {
	v, ok := t.First(path)
	if !ok {
		return ""
	}
	return Stringify(v)
}

// Set writes a value at a path, creating intermediate containers as
// needed.
func (t *Tree) Set(path string, value any) error {
	x, err := jp.ParseString(path)
	if err != nil {
		return eris.Wrapf(err, "rawtree: invalid path %q", path)
	}
	if err := x.Set(t.root, value); err != nil {
		return eris.Wrapf(err, "rawtree: set %q", path)
	}
	return nil
}

// Leaves returns every leaf in the tree as a dotted path → value map.
// Array elements are addressed by index. Used by the validator to
// preserve fields a template does not declare.
func (t *Tree) Leaves() map[string]any {
	leaves := make(map[string]any)
	collectLeaves("", t.root, leaves)
	return leaves
}

// LeafPaths returns the sorted set of leaf paths.
func (t *Tree) LeafPaths() []string {
	leaves := t.Leaves()
	paths := make([]string, 0, len(leaves))
	for p := range leaves {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func collectLeaves(prefix string, node any, out map[string]any) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			collectLeaves(p, child, out)
		}
	case []any:
		for i, child := range v {
			p := strconv.Itoa(i)
			if prefix != "" {
				p = prefix + "." + p
			}
			collectLeaves(p, child, out)
		}
	default:
		if prefix != "" {
			out[prefix] = v
		}
	}
}

// Digest returns a stable content hash of the tree. Map keys are
// rendered in sorted order so the same payload always digests the same.
func (t *Tree) Digest() string {
	paths := t.LeafPaths()
	leaves := t.Leaves()
	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(Stringify(leaves[p])))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Stringify renders a scalar leaf as a string.
func Stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	case nil:
		return ""
	default:
		return oj.JSON(s)
	}
}

// Float64 coerces a leaf value into a float64 when possible.
func Float64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
