package match

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/parser"
	"github.com/roach88/verdant/internal/stage"
)

// ErrStaleResponse is returned by Repair.Complete when a newer request for
// the same cell superseded the one being completed.
var ErrStaleResponse = errors.New("stale parse response")

// ErrNotNeeded is returned by Repair.Complete on a repair that needed no
// parse.
var ErrNotNeeded = errors.New("repair needs no parse")

// Response is a parser result for one repair request.
type Response struct {
	Token int
	Tree  *parser.RawTree
	Err   error
}

// Result describes a completed repair.
type Result struct {
	// Cell is the pending copy of the cell holding the rebuilt tree.
	Cell *ir.CodeCell
	// Degraded is set when the parser failed and the cell was stored as a
	// single literal leaf.
	Degraded bool
	// Reused, Staged and Created count new-tree nodes that kept their
	// committed version, got a pending copy, or got a fresh temp identity.
	Reused, Staged, Created int
}

// Resolver plans and applies tree repairs for code cells. It is not safe
// for concurrent use; the engine calls it from its event loop only.
type Resolver struct {
	stager *stage.Stager
	store  *history.Store
	opts   Options
	tokens map[int]int
}

// NewResolver returns a Resolver staging through stager.
func NewResolver(stager *stage.Stager, opts Options) *Resolver {
	return &Resolver{
		stager: stager,
		store:  stager.Store(),
		opts:   opts,
		tokens: make(map[int]int),
	}
}

// Token returns the current request token of cell.
func (r *Resolver) Token(cell ir.Ref) int {
	return r.tokens[cell.ID]
}

// Invalidate makes every outstanding request for cell stale.
func (r *Resolver) Invalidate(cell ir.Ref) {
	r.tokens[cell.ID]++
}

// Repair is a planned re-parse of one cell.
type Repair struct {
	// Needed is false when the cell already renders to the requested text.
	Needed bool
	// Token identifies this request; responses must echo it.
	Token int
	// Text is the source to submit to the parser: the whole cell, or the
	// fragment covering the edit.
	Text string

	r    *Resolver
	cell ir.Ref
	full string

	fragment bool
	slot     int
	target   ir.Name
	base     ir.Pos
	oldEnd   ir.Pos
}

// Fragment reports whether the repair re-parses a single child of the
// cell root instead of the whole cell.
func (rp *Repair) Fragment() bool { return rp.fragment }

// RepairCellAST plans bringing cell's tree in line with text. Every call
// takes a new token, making any earlier outstanding request stale.
func (r *Resolver) RepairCellAST(cell ir.Ref, text string) (*Repair, error) {
	if cell.Kind != ir.KindCodeCell {
		return nil, fmt.Errorf("repair %s: not a code cell", cell)
	}
	h, err := r.store.HistoryOf(cell)
	if err != nil {
		return nil, err
	}
	committed, ok := h.Committed().(*ir.CodeCell)
	if !ok {
		return nil, &history.LookupError{Name: cell.String(), Reason: "no committed code cell"}
	}

	r.tokens[cell.ID]++
	rp := &Repair{Token: r.tokens[cell.ID], r: r, cell: cell, full: text}

	old, err := RenderNode(r.store, committed)
	if err != nil {
		return nil, err
	}
	if old == text {
		if p, ok := h.Pending().(*ir.CodeCell); ok {
			p.Tree = committed.Clone().(*ir.CodeCell).Tree
			if err := r.stager.CleanOut(cell.ID); err != nil {
				return nil, err
			}
		}
		return rp, nil
	}
	if p := h.Pending(); p != nil {
		if cur, err := RenderNode(r.store, p); err == nil && cur == text {
			return rp, nil
		}
	}

	rp.Needed = true
	rp.Text = text
	if err := rp.localise(committed, old); err != nil {
		return nil, err
	}
	return rp, nil
}

// localise narrows the re-parse to the non-leaf root child covering the
// whole edit, if there is one.
func (rp *Repair) localise(committed *ir.CodeCell, old string) error {
	if committed.Literal != nil {
		return nil
	}
	prefix, suffix := commonAffixes(old, rp.full)
	editStart, editEnd := prefix, len(old)-suffix

	offset := 0
	for i, item := range committed.Content {
		if item.IsToken() {
			offset += len(item.Token)
			continue
		}
		text, err := Render(rp.r.store, item.Child)
		if err != nil {
			return err
		}
		end := offset + len(text)
		if offset <= editStart && editEnd <= end {
			child, err := rp.r.store.Get(item.Child)
			if err != nil {
				return err
			}
			if t := ir.TreeOf(child); t == nil || t.IsLeaf() {
				return nil
			}
			rp.fragment = true
			rp.slot = i
			rp.target = item.Child
			rp.base = ir.Pos{Line: 1}.Advance(old[:offset])
			rp.oldEnd = rp.base.Advance(text)
			rp.Text = rp.full[offset : end+len(rp.full)-len(old)]
			return nil
		}
		offset = end
	}
	return nil
}

// Complete applies resp. A parse error, or a tree that does not render
// back to the submitted text, degrades the whole cell to a literal leaf.
func (rp *Repair) Complete(resp Response) (Result, error) {
	r := rp.r
	if resp.Token != r.tokens[rp.cell.ID] {
		return Result{}, ErrStaleResponse
	}
	if !rp.Needed {
		return Result{}, ErrNotNeeded
	}

	raw := resp.Tree
	fragment := rp.fragment
	degraded := resp.Err != nil || raw == nil || raw.Render() != rp.Text
	if degraded {
		raw = parser.FailSafe(rp.full)
		fragment = false
	}

	if err := r.stager.CleanOut(rp.cell.ID); err != nil {
		return Result{}, err
	}
	node, err := r.stager.MarkAsEdited(rp.cell)
	if err != nil {
		return Result{}, err
	}
	cell, ok := node.(*ir.CodeCell)
	if !ok {
		return Result{}, &history.LookupError{Name: rp.cell.String(), Reason: "pending copy is not a code cell"}
	}
	committed, err := r.store.Committed(rp.cell)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if fragment {
		res, err = rp.completeFragment(cell, committed.(*ir.CodeCell), raw)
	} else {
		res, err = rp.completeFull(cell, committed.(*ir.CodeCell), raw)
	}
	if err != nil {
		return Result{}, err
	}
	res.Cell = cell
	res.Degraded = degraded
	return res, nil
}

func (rp *Repair) completeFull(cell, committed *ir.CodeCell, raw *parser.RawTree) (Result, error) {
	old, err := flattenOld(rp.r.store, []ir.Name{ir.NameOf(committed)})
	if err != nil {
		return Result{}, err
	}
	nw := flattenNew([]*parser.RawTree{raw})
	m := newMatcher(rp.r.opts, old, nw, rp.oldTextFunc(old))
	m.link(0, 0)
	m.run()

	b := newBuilder(rp.r, rp.cell.ID, m)
	if err := b.build(1); err != nil {
		return Result{}, err
	}

	right := cell.Right
	cell.Tree = ir.Tree{
		Type:    raw.Type,
		Content: b.content(0),
		Start:   raw.Start,
		End:     raw.End,
		Right:   right,
	}
	if raw.Literal != nil {
		lit := *raw.Literal
		cell.Literal = &lit
	}
	return b.result(), nil
}

func (rp *Repair) completeFragment(cell, committed *ir.CodeCell, raw *parser.RawTree) (Result, error) {
	translate(raw, rp.base)

	var roots []*parser.RawTree
	if raw.Literal != nil {
		roots = []*parser.RawTree{raw}
	} else {
		roots = subtrees(raw)
	}
	old, err := flattenOld(rp.r.store, []ir.Name{rp.target})
	if err != nil {
		return Result{}, err
	}
	nw := flattenNew(roots)
	m := newMatcher(rp.r.opts, old, nw, rp.oldTextFunc(old))
	m.run()

	b := newBuilder(rp.r, rp.cell.ID, m)
	if err := b.build(0); err != nil {
		return Result{}, err
	}

	var items []ir.Content
	if raw.Literal != nil {
		items = []ir.Content{ir.ChildItem(b.names[0])}
	} else {
		items = b.wrap(raw)
	}

	spans, err := Locate(rp.r.store, ir.NameOf(committed))
	if err != nil {
		return Result{}, err
	}
	live := make(map[ir.Name]Span, len(spans))
	for _, s := range spans {
		live[s.Name] = s
	}
	newEnd := rp.base.Advance(rp.Text)
	right, err := b.shiftRight(committed.Content[rp.slot+1:], live, rp.oldEnd, newEnd)
	if err != nil {
		return Result{}, err
	}

	content := slices.Clone(committed.Content[:rp.slot])
	content = append(content, items...)
	content = append(content, right...)
	cell.Type = committed.Type
	cell.Content = content
	cell.Literal = nil
	cell.Start = ir.Pos{Line: 1}
	cell.End = cell.Start.Advance(rp.full)
	return b.result(), nil
}

func (rp *Repair) oldTextFunc(old []oldEntry) func(int) string {
	cache := make(map[int]string)
	return func(i int) string {
		if s, ok := cache[i]; ok {
			return s
		}
		s, err := Render(rp.r.store, old[i].name)
		if err != nil {
			s = ""
		}
		cache[i] = s
		return s
	}
}

// translate moves fragment-relative positions to cell coordinates.
func translate(raw *parser.RawTree, base ir.Pos) {
	stack := []*parser.RawTree{raw}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t.Start = t.Start.Offset(base)
		t.End = t.End.Offset(base)
		for _, item := range t.Content {
			if item.Tree != nil {
				stack = append(stack, item.Tree)
			}
		}
	}
}
