package match

import (
	"slices"

	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/parser"
	"github.com/roach88/verdant/internal/stage"
)

// builder turns matched new entries into pending or unsaved nodes.
type builder struct {
	store  *history.Store
	stager *stage.Stager
	owner  int
	m      *matcher
	names  []ir.Name

	reused, staged, created int
}

func newBuilder(r *Resolver, owner int, m *matcher) *builder {
	return &builder{
		store:  r.store,
		stager: r.stager,
		owner:  owner,
		m:      m,
		names:  make([]ir.Name, len(m.new)),
	}
}

// build materialises entries from..len-1 in reverse pre-order, so every
// child name exists before its parent's content is built. An entry whose
// match is unchanged keeps its committed name.
func (b *builder) build(from int) error {
	for ni := len(b.m.new) - 1; ni >= from; ni-- {
		raw := b.m.new[ni].raw
		want := ir.Tree{
			Type:    raw.Type,
			Content: b.content(ni),
			Start:   raw.Start,
			End:     raw.End,
		}
		if raw.Literal != nil {
			lit := *raw.Literal
			want.Literal = &lit
		}

		oi := b.m.newTo[ni]
		if oi < 0 {
			b.names[ni] = b.stager.NewUnsaved(b.owner, &ir.Syntax{Tree: want})
			b.created++
			continue
		}

		oldName := b.m.old[oi].name
		committed, err := b.store.Get(oldName)
		if err != nil {
			return err
		}
		if sameTree(ir.TreeOf(committed), &want) {
			b.names[ni] = oldName
			b.reused++
			continue
		}
		node, name, err := b.stager.Stage(b.owner, oldName)
		if err != nil {
			return err
		}
		t := ir.TreeOf(node)
		want.Right = t.Right
		*t = want
		b.names[ni] = name
		b.staged++
	}
	return nil
}

// content maps entry ni's raw content to tokens and built child names.
func (b *builder) content(ni int) []ir.Content {
	e := &b.m.new[ni]
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
		out = append(out, ir.ChildItem(b.names[e.children[next]]))
		next++
	}
	return out
}

// wrap maps the content of a fragment wrapper whose tree items were
// flattened as roots, in order.
func (b *builder) wrap(wrapper *parser.RawTree) []ir.Content {
	var roots []int
	for i := range b.m.new {
		if b.m.new[i].parent < 0 {
			roots = append(roots, i)
		}
	}
	out := make([]ir.Content, 0, len(wrapper.Content))
	next := 0
	for _, item := range wrapper.Content {
		if item.Tree == nil {
			out = append(out, ir.TokenItem(item.Token))
			continue
		}
		out = append(out, ir.ChildItem(b.names[roots[next]]))
		next++
	}
	return out
}

func (b *builder) result() Result {
	return Result{Reused: b.reused, Staged: b.staged, Created: b.created}
}

func sameTree(a, b *ir.Tree) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Type != b.Type || a.Start != b.Start || a.End != b.End {
		return false
	}
	if (a.Literal == nil) != (b.Literal == nil) {
		return false
	}
	if a.Literal != nil && *a.Literal != *b.Literal {
		return false
	}
	return slices.Equal(a.Content, b.Content)
}
