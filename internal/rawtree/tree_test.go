package rawtree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *Tree {
	return New(map[string]any{
		"sample_id": "GSM1",
		"title":     "tumor biopsy",
		"characteristics": []any{
			map[string]any{"tag": "tissue", "value": "tumor"},
			map[string]any{"tag": "age", "value": int64(63)},
		},
	})
}

func TestFromJSON(t *testing.T) {
	tree, err := FromJSON(strings.NewReader(`{"sample_id":"GSM1","values":[1.5,2.5]}`))
	require.NoError(t, err)
	assert.Equal(t, "GSM1", tree.FirstString("$.sample_id"))

	vals, err := tree.Get("$.values[*]")
	require.NoError(t, err)
	assert.Len(t, vals, 2)
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON(strings.NewReader(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse json")
}

func TestFirst(t *testing.T) {
	tree := sampleTree()

	v, ok := tree.First("$.sample_id")
	require.True(t, ok)
	assert.Equal(t, "GSM1", v)

	_, ok = tree.First("$.missing")
	assert.False(t, ok)

	assert.Equal(t, "", tree.FirstString("$.missing"))
}

func TestGet_NestedPath(t *testing.T) {
	tree := sampleTree()

	tags, err := tree.Get("$.characteristics[*].tag")
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"tissue", "age"}, tags)
}

func TestGet_InvalidPath(t *testing.T) {
	_, err := sampleTree().Get("$[")
	require.Error(t, err)
}

func TestSet(t *testing.T) {
	tree := sampleTree()

	require.NoError(t, tree.Set("$.values", []any{map[string]any{"gene": "TP53", "value": 8.25}}))
	vals, err := tree.Get("$.values[*].gene")
	require.NoError(t, err)
	assert.Equal(t, []any{"TP53"}, vals)

	// Overwrites in place.
	require.NoError(t, tree.Set("$.sample_id", "GSM2"))
	assert.Equal(t, "GSM2", tree.FirstString("$.sample_id"))

	require.Error(t, tree.Set("$[", nil))
}

func TestLeaves(t *testing.T) {
	tree := sampleTree()
	leaves := tree.Leaves()

	assert.Equal(t, "GSM1", leaves["sample_id"])
	assert.Equal(t, "tumor", leaves["characteristics.0.value"])
	assert.Equal(t, int64(63), leaves["characteristics.1.value"])

	paths := tree.LeafPaths()
	assert.True(t, sortedStrings(paths))
	assert.Contains(t, paths, "characteristics.0.tag")
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestDigest_StableAcrossKeyOrder(t *testing.T) {
	a := New(map[string]any{"x": "1", "y": "2"})
	b := New(map[string]any{"y": "2", "x": "1"})
	assert.Equal(t, a.Digest(), b.Digest())
	assert.Len(t, a.Digest(), 16)
}

func TestDigest_DistinguishesContent(t *testing.T) {
	a := New(map[string]any{"x": "1"})
	b := New(map[string]any{"x": "2"})
	c := New(map[string]any{"z": "1"})
	assert.NotEqual(t, a.Digest(), b.Digest())
	assert.NotEqual(t, a.Digest(), c.Digest())
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "hello", Stringify("hello"))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "63", Stringify(int64(63)))
	assert.Equal(t, "1.5", Stringify(1.5))
	assert.Equal(t, "", Stringify(nil))
}

func TestFloat64(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{name: "float64", in: 1.5, want: 1.5, ok: true},
		{name: "int64", in: int64(3), want: 3, ok: true},
		{name: "numeric string", in: "2.25", want: 2.25, ok: true},
		{name: "non-numeric string", in: "n/a", ok: false},
		{name: "nil", in: nil, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Float64(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
