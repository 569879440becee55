package match

import (
	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/parser"
)

// Materialize commits every subtree below raw as a fresh Syntax artifact
// created by checkpoint and returns the tree fields for raw itself. Once
// the root is stored, pass its name and the returned content to Adopt.
func Materialize(store *history.Store, raw *parser.RawTree, checkpoint int) (ir.Tree, error) {
	entries := flattenNew([]*parser.RawTree{raw})
	names := make([]ir.Name, len(entries))
	content := func(ni int) []ir.Content {
		e := &entries[ni]
		if e.raw.Literal != nil {
			return nil
		}
		out := make([]ir.Content, 0, len(e.raw.Content))
		next := 0
		for _, item := range e.raw.Content {
			if item.Tree == nil {
				out = append(out, ir.TokenItem(item.Token))
				continue
			}
			out = append(out, ir.ChildItem(names[e.children[next]]))
			next++
		}
		return out
	}
	tree := func(ni int) ir.Tree {
		r := entries[ni].raw
		t := ir.Tree{Type: r.Type, Content: content(ni), Start: r.Start, End: r.End}
		if r.Literal != nil {
			lit := *r.Literal
			t.Literal = &lit
		}
		return t
	}

	for ni := len(entries) - 1; ni >= 1; ni-- {
		t := tree(ni)
		names[ni] = store.Add(&ir.Syntax{Tree: t}, checkpoint)
		if err := Adopt(store, t.Content, names[ni]); err != nil {
			return ir.Tree{}, err
		}
	}
	return tree(0), nil
}

// Adopt points every child in content at parent and links each child's
// Right to its next sibling. Only use it on freshly committed children.
func Adopt(store *history.Store, content []ir.Content, parent ir.Name) error {
	var prev ir.Node
	for _, c := range content {
		if c.IsToken() {
			continue
		}
		n, err := store.Get(c.Child)
		if err != nil {
			return err
		}
		n.Base().Parent = parent
		if prev != nil {
			if t := ir.TreeOf(prev); t != nil {
				t.Right = c.Child
			}
		}
		prev = n
	}
	return nil
}
