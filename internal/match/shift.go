package match

import (
	"github.com/roach88/verdant/internal/ir"
)

// shifter moves positions after an edit that ended at oldEnd and now ends
// at newEnd. Columns move only on the edit's last line.
type shifter struct {
	oldEndLine int
	lines      int
	cols       int
}

func newShifter(oldEnd, newEnd ir.Pos) shifter {
	return shifter{oldEndLine: oldEnd.Line, lines: newEnd.Line - oldEnd.Line, cols: newEnd.Col - oldEnd.Col}
}

func (s shifter) zero() bool { return s.lines == 0 && s.cols == 0 }

func (s shifter) apply(p ir.Pos) ir.Pos {
	if p.Line == s.oldEndLine {
		p.Col += s.cols
	}
	p.Line += s.lines
	return p
}

// shiftRight stages every subtree in items, with all descendants, and moves
// their live ranges by the edit's delta without re-parsing. It returns
// items with child slots pointing at the staged names.
func (b *builder) shiftRight(items []ir.Content, live map[ir.Name]Span, oldEnd, newEnd ir.Pos) ([]ir.Content, error) {
	out := make([]ir.Content, len(items))
	copy(out, items)
	sh := newShifter(oldEnd, newEnd)
	if sh.zero() {
		return out, nil
	}
	for i, item := range out {
		if item.IsToken() {
			continue
		}
		name, err := b.shiftSubtree(item.Child, live, sh)
		if err != nil {
			return nil, err
		}
		out[i] = ir.ChildItem(name)
	}
	return out, nil
}

func (b *builder) shiftSubtree(root ir.Name, live map[ir.Name]Span, sh shifter) (ir.Name, error) {
	var rootName ir.Name
	stack := []ir.Name{root}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node, staged, err := b.stager.Stage(b.owner, name)
		if err != nil {
			return ir.Name{}, err
		}
		if name == root {
			rootName = staged
		}
		t := ir.TreeOf(node)
		if t == nil {
			continue
		}
		span, ok := live[name]
		if !ok {
			span = Span{Start: t.Start, End: t.End}
		}
		t.Start = sh.apply(span.Start)
		t.End = sh.apply(span.End)
		for i, c := range t.Content {
			if c.IsToken() {
				continue
			}
			stack = append(stack, c.Child)
			t.Content[i] = ir.ChildItem(c.Child.Ref().Pending())
		}
		b.staged++
	}
	return rootName, nil
}
