package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnsc-omics/omics-cli/internal/model"
)

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "geo_sample.yaml", `
source: geo
kind: sample
fields:
  sample_id:
    path: $.sample_id
    type: string
    required: true
  characteristics:
    path: $.characteristics[*]
    type: any
    repeated: true
`)
	writeTemplate(t, dir, "notes.txt", "not a template")

	set, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"geo/sample"}, set.IDs())

	tpl, err := set.Get("geo/sample")
	require.NoError(t, err)
	assert.Equal(t, "geo", tpl.Source)
	assert.Equal(t, model.KindSample, tpl.Kind)
	assert.True(t, tpl.Fields["sample_id"].Required)
	assert.True(t, tpl.Fields["characteristics"].Repeated)
}

func TestLoadDir_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing source",
			content: "kind: sample\nfields: {}\n",
			wantErr: "missing source or kind",
		},
		{
			name:    "field without path",
			content: "source: geo\nkind: sample\nfields:\n  x:\n    type: string\n",
			wantErr: "has no path",
		},
		{
			name:    "malformed yaml",
			content: "source: [geo\n",
			wantErr: "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeTemplate(t, dir, "bad.yaml", tt.content)
			_, err := LoadDir(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDir_Duplicate(t *testing.T) {
	dir := t.TempDir()
	tpl := "source: geo\nkind: sample\nfields: {}\n"
	writeTemplate(t, dir, "a.yaml", tpl)
	writeTemplate(t, dir, "b.yaml", tpl)

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate template")
}

func TestSetGet_Missing(t *testing.T) {
	set := NewSet()
	_, err := set.Get("geo/sample")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no template for geo/sample")
}
