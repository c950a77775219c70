package adapters

import (
	"testing"

	"github.com/brettbedarf/h5browse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayout_JSON(t *testing.T) {
	t.Parallel()

	doc := `{"children": [
		{"name": "grid", "children": [{"name": "lat", "shape": [180]}]},
		{"name": "meta", "kind": "dataset", "dtype": "string"}
	]}`

	root, err := ParseLayout([]byte(doc), ".json")
	require.NoError(t, err)

	require.Len(t, root.children, 2)
	grid := root.children[0]
	assert.Equal(t, h5browse.KindGroup, grid.Kind)
	require.Len(t, grid.children, 1)
	lat := grid.children[0]
	assert.Equal(t, h5browse.KindDataset, lat.Kind)
	assert.Equal(t, h5browse.Shape{180}, lat.Shape)
	assert.Equal(t, defaultLayoutDType, lat.DType, "dtype defaults when only shape is given")

	meta := root.children[1]
	assert.Equal(t, h5browse.KindDataset, meta.Kind)
	assert.Empty(t, meta.Shape)
	assert.Equal(t, "string", meta.DType)
}

func TestParseLayout_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		ext  string
	}{
		{"bad_yaml", "children: [", ".yaml"},
		{"unknown_ext", "children: []", ".toml"},
		{"dataset_root", "shape: [3]", ".yaml"},
		{"dataset_with_children", "children:\n  - name: d\n    dtype: int32\n    children:\n      - name: x\n", ".yaml"},
		{"empty_name", "children:\n  - kind: group\n", ".yaml"},
		{"slash_name", "children:\n  - name: a/b\n", ".yaml"},
		{"duplicate", "children:\n  - name: a\n  - name: a\n", ".yaml"},
		{"unknown_kind", "children:\n  - name: a\n    kind: link\n", ".yml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLayout([]byte(tt.doc), tt.ext)
			assert.ErrorIs(t, err, h5browse.ErrFormat)
		})
	}
}
