package match

import (
	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/parser"
)

// oldEntry is one committed node in pre-order.
type oldEntry struct {
	name     ir.Name
	typ      string
	literal  *string
	depth    int
	parent   int
	children []int
	ordinal  int
}

func (e *oldEntry) leaf() bool { return e.literal != nil }

// newEntry is one parsed node in pre-order.
type newEntry struct {
	raw      *parser.RawTree
	depth    int
	parent   int
	children []int
	ordinal  int
}

func (e *newEntry) leaf() bool { return e.raw.Literal != nil }

// flattenOld lists the committed trees under roots in pre-order. Leaf and
// internal nodes are numbered separately by ordinal.
func flattenOld(store *history.Store, roots []ir.Name) ([]oldEntry, error) {
	type item struct {
		name   ir.Name
		depth  int
		parent int
	}
	var out []oldEntry
	var leaves, internals int
	stack := make([]item, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, item{name: roots[i], parent: -1})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, err := store.Get(it.name)
		if err != nil {
			return nil, err
		}
		t := ir.TreeOf(n)
		if t == nil {
			continue
		}
		idx := len(out)
		e := oldEntry{name: it.name, typ: t.Type, literal: t.Literal, depth: it.depth, parent: it.parent}
		if e.leaf() {
			e.ordinal = leaves
			leaves++
		} else {
			e.ordinal = internals
			internals++
		}
		out = append(out, e)
		if it.parent >= 0 {
			out[it.parent].children = append(out[it.parent].children, idx)
		}
		children := t.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, item{name: children[i], depth: it.depth + 1, parent: idx})
		}
	}
	return out, nil
}

// flattenNew lists the parsed trees under roots in pre-order.
func flattenNew(roots []*parser.RawTree) []newEntry {
	type item struct {
		raw    *parser.RawTree
		depth  int
		parent int
	}
	var out []newEntry
	var leaves, internals int
	stack := make([]item, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, item{raw: roots[i], parent: -1})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx := len(out)
		e := newEntry{raw: it.raw, depth: it.depth, parent: it.parent}
		if e.leaf() {
			e.ordinal = leaves
			leaves++
		} else {
			e.ordinal = internals
			internals++
		}
		out = append(out, e)
		if it.parent >= 0 {
			out[it.parent].children = append(out[it.parent].children, idx)
		}
		if it.raw.Literal != nil {
			continue
		}
		for i := len(it.raw.Content) - 1; i >= 0; i-- {
			if child := it.raw.Content[i].Tree; child != nil {
				stack = append(stack, item{raw: child, depth: it.depth + 1, parent: idx})
			}
		}
	}
	return out
}

// subtrees returns the tree items of raw's content.
func subtrees(raw *parser.RawTree) []*parser.RawTree {
	var out []*parser.RawTree
	for _, item := range raw.Content {
		if item.Tree != nil {
			out = append(out, item.Tree)
		}
	}
	return out
}
