package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/parser"
	"github.com/roach88/verdant/internal/stage"
	"github.com/roach88/verdant/internal/testutil"
)

type fixture struct {
	store    *history.Store
	stager   *stage.Stager
	resolver *Resolver
	nb       ir.Name
	cell     ir.Name
}

// newFixture commits a notebook holding one code cell parsed from text
// with the line grammar.
func newFixture(t *testing.T, text string) *fixture {
	t.Helper()
	store := history.New()
	nb := store.Add(&ir.Notebook{}, 0)

	cell := commitCell(t, store, text)
	node, err := store.Get(cell)
	require.NoError(t, err)
	node.Base().Parent = nb
	nbNode, err := store.Get(nb)
	require.NoError(t, err)
	nbNode.(*ir.Notebook).Cells = []ir.Name{cell}

	stager := stage.New(store)
	return &fixture{
		store:    store,
		stager:   stager,
		resolver: NewResolver(stager, DefaultOptions()),
		nb:       nb,
		cell:     cell,
	}
}

func commitCell(t *testing.T, store *history.Store, text string) ir.Name {
	t.Helper()
	raw := parse(t, text)
	tree, err := Materialize(store, raw, 0)
	require.NoError(t, err)
	cell := &ir.CodeCell{Tree: tree}
	name := store.Add(cell, 0)
	require.NoError(t, Adopt(store, cell.Content, name))
	return name
}

func parse(t *testing.T, text string) *parser.RawTree {
	t.Helper()
	raw, err := testutil.LineParser{}.Parse(context.Background(), text)
	require.NoError(t, err)
	return raw
}

// complete runs rp against the line grammar.
func (f *fixture) complete(t *testing.T, rp *Repair) Result {
	t.Helper()
	require.True(t, rp.Needed)
	raw, err := testutil.LineParser{}.Parse(context.Background(), rp.Text)
	res, err := rp.Complete(Response{Token: rp.Token, Tree: raw, Err: err})
	require.NoError(t, err)
	return res
}

// statements returns the statement nodes of the latest cell tree in order.
func (f *fixture) statements(t *testing.T) []ir.Node {
	t.Helper()
	cell, err := f.store.Latest(f.cell.Ref())
	require.NoError(t, err)
	var out []ir.Node
	for _, child := range ir.TreeOf(cell).Children() {
		n, err := f.store.Get(child)
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}

// leafIDs returns the artifact ids of every leaf below name, in order.
func leafIDs(t *testing.T, store *history.Store, name ir.Name) []int {
	t.Helper()
	spans, err := Locate(store, name)
	require.NoError(t, err)
	var ids []int
	for _, s := range spans {
		n, err := store.Get(s.Name)
		require.NoError(t, err)
		if tr := ir.TreeOf(n); tr != nil && tr.IsLeaf() && s.Name != name {
			ids = append(ids, s.Name.ID)
		}
	}
	return ids
}
