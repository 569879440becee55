package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/ir"
)

func TestRenderRoundTrip(t *testing.T) {
	sources := []string{"", "x", "x = 1\n", "  a = b(c, 'd e')\n\n# note\n"}
	for _, src := range sources {
		store := history.New()
		cell := commitCell(t, store, src)

		text, err := Render(store, cell)
		require.NoError(t, err)
		assert.Equal(t, src, text)
	}
}

func TestRenderTextCells(t *testing.T) {
	store := history.New()
	md := store.Add(&ir.Markdown{Text: "# hi"}, 0)

	text, err := Render(store, md)
	require.NoError(t, err)
	assert.Equal(t, "# hi", text)
}

func TestRenderUnknownChild(t *testing.T) {
	store := history.New()
	cell := store.Add(&ir.CodeCell{Tree: ir.Tree{Content: []ir.Content{ir.ChildItem(ir.Name{Kind: ir.KindSyntax, ID: 3})}}}, 0)

	_, err := Render(store, cell)
	assert.True(t, history.IsLookupError(err))
}

func TestLocateMatchesStoredPositions(t *testing.T) {
	store := history.New()
	cell := commitCell(t, store, "x = 1\n\ny = foo(2)\n")

	spans, err := Locate(store, cell)
	require.NoError(t, err)
	require.NotEmpty(t, spans)
	assert.Equal(t, cell, spans[0].Name)
	assert.Equal(t, ir.Pos{Line: 4, Col: 0}, spans[0].End)

	for _, s := range spans[1:] {
		n, err := store.Get(s.Name)
		require.NoError(t, err)
		tr := ir.TreeOf(n)
		assert.Equal(t, tr.Start, s.Start, s.Name.String())
		assert.Equal(t, tr.End, s.End, s.Name.String())
	}
}

func TestMaterializeAdoptsChildren(t *testing.T) {
	store := history.New()
	cell := commitCell(t, store, "a = 1\nb = 2\n")

	node, err := store.Get(cell)
	require.NoError(t, err)
	children := ir.TreeOf(node).Children()
	require.Len(t, children, 2)

	first, err := store.Get(children[0])
	require.NoError(t, err)
	assert.Equal(t, cell, first.Base().Parent)
	assert.Equal(t, children[1], ir.TreeOf(first).Right)

	leaves := ir.TreeOf(first).Children()
	require.Len(t, leaves, 2)
	leaf, err := store.Get(leaves[0])
	require.NoError(t, err)
	assert.Equal(t, children[0], leaf.Base().Parent)
	assert.Equal(t, "a", *ir.TreeOf(leaf).Literal)
	assert.NoError(t, store.Verify())
}

func TestCommonAffixes(t *testing.T) {
	tests := []struct {
		a, b           string
		prefix, suffix int
	}{
		{"abc", "abc", 3, 0},
		{"x = 1\n", "z = 0\nx = 1\n", 0, 6},
		{"aa", "aaa", 2, 0},
		{"héllo", "hello", 1, 3},
	}
	for _, tt := range tests {
		p, s := commonAffixes(tt.a, tt.b)
		assert.Equal(t, tt.prefix, p, "%q %q", tt.a, tt.b)
		assert.Equal(t, tt.suffix, s, "%q %q", tt.a, tt.b)
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("abc", "abc"))
	assert.InDelta(t, 5.0/6.0, Similarity("count", "counts"), 1e-9)
	assert.Equal(t, 0.0, Similarity("1", "2"))
	assert.Equal(t, 1, Distance("count", "counts"))
}
