package match

import (
	"strings"

	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/ir"
)

// Render reproduces the source text of a code artifact version. Pending
// and temp names resolve through the store like committed ones.
func Render(store *history.Store, name ir.Name) (string, error) {
	n, err := store.Get(name)
	if err != nil {
		return "", err
	}
	return RenderNode(store, n)
}

// RenderNode renders n, resolving its children through store. Text
// artifacts render to their text.
func RenderNode(store *history.Store, n ir.Node) (string, error) {
	switch v := n.(type) {
	case *ir.Markdown:
		return v.Text, nil
	case *ir.RawCell:
		return v.Text, nil
	}
	t := ir.TreeOf(n)
	if t == nil {
		return "", nil
	}
	var b strings.Builder
	if err := renderTree(store, t, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// renderTree walks content with an explicit stack of pending items.
func renderTree(store *history.Store, root *ir.Tree, b *strings.Builder) error {
	if root.Literal != nil {
		b.WriteString(*root.Literal)
		return nil
	}
	stack := reversed(root.Content)
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if item.IsToken() {
			b.WriteString(item.Token)
			continue
		}
		child, err := store.Get(item.Child)
		if err != nil {
			return err
		}
		t := ir.TreeOf(child)
		if t == nil {
			continue
		}
		if t.Literal != nil {
			b.WriteString(*t.Literal)
			continue
		}
		stack = append(stack, reversed(t.Content)...)
	}
	return nil
}

func reversed(content []ir.Content) []ir.Content {
	out := make([]ir.Content, len(content))
	for i, c := range content {
		out[len(content)-1-i] = c
	}
	return out
}

// Span is the live source range of one artifact inside a rendered cell.
type Span struct {
	Name  ir.Name
	Start ir.Pos
	End   ir.Pos
}

// Locate recomputes the source range of every node below name, in
// pre-order, from the rendered text rather than stored positions.
func Locate(store *history.Store, name ir.Name) ([]Span, error) {
	type frame struct {
		name    ir.Name
		content []ir.Content
		next    int
		span    int
	}

	root, err := store.Get(name)
	if err != nil {
		return nil, err
	}
	rt := ir.TreeOf(root)
	if rt == nil {
		return nil, nil
	}

	pos := ir.Pos{Line: 1}
	spans := []Span{{Name: name, Start: pos}}
	if rt.Literal != nil {
		spans[0].End = pos.Advance(*rt.Literal)
		return spans, nil
	}
	stack := []frame{{name: name, content: rt.Content, span: 0}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.content) {
			spans[top.span].End = pos
			stack = stack[:len(stack)-1]
			continue
		}
		item := top.content[top.next]
		top.next++
		if item.IsToken() {
			pos = pos.Advance(item.Token)
			continue
		}
		child, err := store.Get(item.Child)
		if err != nil {
			return nil, err
		}
		t := ir.TreeOf(child)
		if t == nil {
			continue
		}
		spans = append(spans, Span{Name: item.Child, Start: pos})
		if t.Literal != nil {
			pos = pos.Advance(*t.Literal)
			spans[len(spans)-1].End = pos
			continue
		}
		stack = append(stack, frame{name: item.Child, content: t.Content, span: len(spans) - 1})
	}
	return spans, nil
}
