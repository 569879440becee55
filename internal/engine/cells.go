package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/match"
	"github.com/roach88/verdant/internal/parser"
)

// stageNotebook returns the pending copy of the notebook.
func (e *Engine) stageNotebook() (*ir.Notebook, error) {
	n, err := e.stager.MarkAsEdited(e.notebook)
	if err != nil {
		return nil, err
	}
	nb, ok := n.(*ir.Notebook)
	if !ok {
		return nil, fmt.Errorf("%s is not a notebook", e.notebook)
	}
	return nb, nil
}

// cellIndex returns the position of cell in the latest notebook.
func (e *Engine) cellIndex(ev EventType, cell ir.Ref) (int, error) {
	if !e.loaded {
		return 0, invalidEvent(ev, cell.String(), "notebook not loaded")
	}
	cells, err := e.Cells()
	if err != nil {
		return 0, err
	}
	idx := slices.Index(cells, cell)
	if idx < 0 {
		return 0, invalidEvent(ev, cell.String(), "cell is not in the notebook")
	}
	return idx, nil
}

// createCell commits a brand-new cell of kind holding text, with its
// syntax tree and output artifact for code cells.
func (e *Engine) createCell(ctx context.Context, cp *checkpoint, kind ir.Kind, text string, outputs []ir.Payload) (ir.Name, error) {
	cp.created = true
	switch kind {
	case ir.KindMarkdown:
		return e.store.Add(&ir.Markdown{Text: text}, cp.id), nil
	case ir.KindRawCell:
		return e.store.Add(&ir.RawCell{Text: text}, cp.id), nil
	case ir.KindCodeCell:
	default:
		return ir.Name{}, invalidEvent(0, "", "%q is not a cell kind", kind)
	}

	raw, err := e.parser.Parse(ctx, text)
	if err != nil || raw == nil || raw.Render() != text {
		e.logger.Warn("cell stored as literal",
			"code", ErrCodeParseFailure,
			"error", err,
			"bytes", len(text),
		)
		raw = parser.FailSafe(text)
	}
	tree, err := match.Materialize(e.store, raw, cp.id)
	if err != nil {
		return ir.Name{}, err
	}

	outRaw, err := ir.NormalizePayloads(outputs)
	if err != nil {
		return ir.Name{}, err
	}
	outName := e.store.Add(&ir.Output{Raw: outRaw}, cp.id)

	name := e.store.Add(&ir.CodeCell{Tree: tree, Output: outName.Ref()}, cp.id)
	if err := match.Adopt(e.store, tree.Content, name); err != nil {
		return ir.Name{}, err
	}
	out, err := e.store.Get(outName)
	if err != nil {
		return ir.Name{}, err
	}
	out.Base().Parent = name
	e.writeBlobs(ctx, outRaw)
	return name, nil
}

// applyText brings cell in line with text and marks it for commit. Code
// cells re-parse inline; any parse still in flight becomes stale.
func (e *Engine) applyText(ctx context.Context, cp *checkpoint, cell ir.Ref, text string) error {
	delete(e.live, cell)
	cp.markAsPossiblyEdited(cell)

	if cell.Kind != ir.KindCodeCell {
		return e.stageText(cell, text)
	}

	rp, err := e.resolver.RepairCellAST(cell, text)
	if err != nil {
		return err
	}
	if !rp.Needed {
		return nil
	}
	raw, perr := e.parser.Parse(ctx, rp.Text)
	res, err := rp.Complete(match.Response{Token: rp.Token, Tree: raw, Err: perr})
	if err != nil {
		return err
	}
	e.logRepair(cell, rp, res, perr)
	return nil
}

// stageText sets the text of a markdown or raw cell on its pending copy.
func (e *Engine) stageText(cell ir.Ref, text string) error {
	current, err := e.store.Latest(cell)
	if err != nil {
		return err
	}
	if cur, err := match.RenderNode(e.store, current); err == nil && cur == text {
		return nil
	}
	n, err := e.stager.MarkAsEdited(cell)
	if err != nil {
		return err
	}
	switch v := n.(type) {
	case *ir.Markdown:
		v.Text = text
	case *ir.RawCell:
		v.Text = text
	default:
		return fmt.Errorf("%s has no text", cell)
	}
	return nil
}

// applyOutputs stages outputs as the new content of cell's output.
func (e *Engine) applyOutputs(cp *checkpoint, cell ir.Ref, outputs []ir.Payload) error {
	n, err := e.store.Latest(cell)
	if err != nil {
		return err
	}
	cc, ok := n.(*ir.CodeCell)
	if !ok || cc.Output.IsZero() {
		return nil
	}
	raw, err := ir.NormalizePayloads(outputs)
	if err != nil {
		return err
	}
	on, err := e.stager.MarkAsEdited(cc.Output)
	if err != nil {
		return err
	}
	out, ok := on.(*ir.Output)
	if !ok {
		return fmt.Errorf("%s is not an output", cc.Output)
	}
	out.Raw = raw
	cp.markAsPossiblyEdited(cc.Output)
	return nil
}

// dropEdits throws away every uncommitted change to cell.
func (e *Engine) dropEdits(cell ir.Ref) error {
	delete(e.live, cell)
	if cell.Kind == ir.KindCodeCell {
		e.resolver.Invalidate(cell)
		if err := e.stager.CleanOut(cell.ID); err != nil {
			return err
		}
		n, err := e.store.Committed(cell)
		if err != nil {
			return err
		}
		if cc, ok := n.(*ir.CodeCell); ok && !cc.Output.IsZero() {
			if err := e.store.DiscardPending(cc.Output); err != nil {
				return err
			}
		}
	}
	return e.store.DiscardPending(cell)
}

func (e *Engine) logRepair(cell ir.Ref, rp *match.Repair, res match.Result, perr error) {
	if res.Degraded {
		e.logger.Warn("cell stored as literal",
			"code", ErrCodeParseFailure,
			"cell", cell,
			"error", perr,
		)
		return
	}
	e.logger.Debug("cell repaired",
		"cell", cell,
		"token", rp.Token,
		"fragment", rp.Fragment(),
		"reused", res.Reused,
		"staged", res.Staged,
		"created", res.Created,
	)
}

func (e *Engine) handleRun(ctx context.Context, ev Event) (Outcome, error) {
	if _, err := e.cellIndex(ev.Type, ev.Cell); err != nil {
		return Outcome{}, err
	}
	cp := e.openCheckpoint(ir.CheckpointRun)
	if err := e.applyText(ctx, cp, ev.Cell, ev.Text); err != nil {
		return Outcome{}, err
	}
	code := ev.Cell.Kind == ir.KindCodeCell
	if code {
		if err := e.applyOutputs(cp, ev.Cell, ev.Outputs); err != nil {
			return Outcome{}, err
		}
	}
	cp.target(change{ref: ev.Cell, output: code})
	return e.commit(ctx, cp)
}

func (e *Engine) handleSave(ctx context.Context) (Outcome, error) {
	if !e.loaded {
		return Outcome{}, invalidEvent(EventSave, "", "notebook not loaded")
	}
	cp := e.openCheckpoint(ir.CheckpointSave)
	cells, err := e.Cells()
	if err != nil {
		return Outcome{}, err
	}
	for _, cell := range cells {
		if text, ok := e.live[cell]; ok {
			if err := e.applyText(ctx, cp, cell, text); err != nil {
				return Outcome{}, err
			}
		} else {
			h, err := e.store.HistoryOf(cell)
			if err != nil {
				return Outcome{}, err
			}
			if h.Pending() == nil {
				continue
			}
			cp.markAsPossiblyEdited(cell)
		}
		cp.target(change{ref: cell, optional: true})
	}

	out, err := e.commit(ctx, cp)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.flush(ctx); err != nil {
		return out, err
	}
	return out, nil
}

func (e *Engine) handleAddCell(ctx context.Context, ev Event) (Outcome, error) {
	if !e.loaded {
		return Outcome{}, invalidEvent(ev.Type, "", "notebook not loaded")
	}
	if !ev.Kind.IsCell() {
		return Outcome{}, invalidEvent(ev.Type, "", "%q is not a cell kind", ev.Kind)
	}
	cells, err := e.Cells()
	if err != nil {
		return Outcome{}, err
	}
	if ev.Index < 0 || ev.Index > len(cells) {
		return Outcome{}, invalidEvent(ev.Type, "", "index %d out of range [0, %d]", ev.Index, len(cells))
	}

	cp := e.openCheckpoint(ir.CheckpointAddCell)
	name, err := e.addCell(ctx, cp, ev.Index, CellInput{Kind: ev.Kind, Text: ev.Text, Outputs: ev.Outputs})
	if err != nil {
		return Outcome{}, err
	}
	out, err := e.commit(ctx, cp)
	out.Cell = name.Ref()
	return out, err
}

func (e *Engine) addCell(ctx context.Context, cp *checkpoint, idx int, in CellInput) (ir.Name, error) {
	name, err := e.createCell(ctx, cp, in.Kind, in.Text, in.Outputs)
	if err != nil {
		return ir.Name{}, err
	}
	nb, err := e.stageNotebook()
	if err != nil {
		return ir.Name{}, err
	}
	nb.Cells = slices.Insert(nb.Cells, idx, name)
	cp.reparent = append(cp.reparent, name.Ref())
	cp.target(change{ref: name.Ref(), typ: ir.ChangeAdded, index: indexPtr(idx)})
	return name, nil
}

func (e *Engine) handleDeleteCell(ctx context.Context, ev Event) (Outcome, error) {
	idx, err := e.cellIndex(ev.Type, ev.Cell)
	if err != nil {
		return Outcome{}, err
	}
	cp := e.openCheckpoint(ir.CheckpointDeleteCell)
	if err := e.deleteCell(cp, idx, ev.Cell); err != nil {
		return Outcome{}, err
	}
	return e.commit(ctx, cp)
}

func (e *Engine) deleteCell(cp *checkpoint, idx int, cell ir.Ref) error {
	last, err := e.store.Committed(cell)
	if err != nil {
		return err
	}
	nb, err := e.stageNotebook()
	if err != nil {
		return err
	}
	if err := e.dropEdits(cell); err != nil {
		return err
	}
	nb.Cells = slices.Delete(nb.Cells, idx, idx+1)
	cp.target(change{ref: cell, name: ir.NameOf(last), typ: ir.ChangeRemoved, index: indexPtr(idx)})
	return nil
}

func (e *Engine) handleMoveCell(ctx context.Context, ev Event) (Outcome, error) {
	idx, err := e.cellIndex(ev.Type, ev.Cell)
	if err != nil {
		return Outcome{}, err
	}
	cells, err := e.Cells()
	if err != nil {
		return Outcome{}, err
	}
	if ev.Index < 0 || ev.Index >= len(cells) {
		return Outcome{}, invalidEvent(ev.Type, ev.Cell.String(), "index %d out of range [0, %d)", ev.Index, len(cells))
	}

	cp := e.openCheckpoint(ir.CheckpointMoveCell)
	nb, err := e.stageNotebook()
	if err != nil {
		return Outcome{}, err
	}
	slot := nb.Cells[idx]
	nb.Cells = slices.Delete(nb.Cells, idx, idx+1)
	nb.Cells = slices.Insert(nb.Cells, ev.Index, slot)
	cp.target(change{ref: ev.Cell, typ: ir.ChangeMoved, index: indexPtr(ev.Index)})
	return e.commit(ctx, cp)
}

func (e *Engine) handleSwitchCellType(ctx context.Context, ev Event) (Outcome, error) {
	idx, err := e.cellIndex(ev.Type, ev.Cell)
	if err != nil {
		return Outcome{}, err
	}
	if !ev.Kind.IsCell() {
		return Outcome{}, invalidEvent(ev.Type, ev.Cell.String(), "%q is not a cell kind", ev.Kind)
	}
	if ev.Kind == ev.Cell.Kind {
		return Outcome{Cell: ev.Cell}, nil
	}
	text, err := e.CellText(ev.Cell)
	if err != nil {
		return Outcome{}, err
	}

	cp := e.openCheckpoint(ir.CheckpointSwitchCellType)
	name, err := e.switchCell(ctx, cp, idx, ev.Cell, CellInput{Kind: ev.Kind, Text: text})
	if err != nil {
		return Outcome{}, err
	}
	out, err := e.commit(ctx, cp)
	out.Cell = name.Ref()
	return out, err
}

// switchCell replaces cell with a new artifact of another kind, linked
// back to the version it replaced.
func (e *Engine) switchCell(ctx context.Context, cp *checkpoint, idx int, cell ir.Ref, in CellInput) (ir.Name, error) {
	old, err := e.store.Committed(cell)
	if err != nil {
		return ir.Name{}, err
	}
	name, err := e.createCell(ctx, cp, in.Kind, in.Text, in.Outputs)
	if err != nil {
		return ir.Name{}, err
	}
	if err := e.store.LinkOrigin(name.Ref(), ir.NameOf(old)); err != nil {
		return ir.Name{}, err
	}
	nb, err := e.stageNotebook()
	if err != nil {
		return ir.Name{}, err
	}
	if err := e.dropEdits(cell); err != nil {
		return ir.Name{}, err
	}
	nb.Cells[idx] = name
	cp.reparent = append(cp.reparent, name.Ref())
	cp.target(change{ref: name.Ref(), typ: ir.ChangeTypeChanged, index: indexPtr(idx)})
	return name, nil
}

func (e *Engine) handleLoad(ctx context.Context, ev Event) (Outcome, error) {
	for i, in := range ev.Cells {
		if !in.Kind.IsCell() {
			return Outcome{}, invalidEvent(ev.Type, "", "cell %d: %q is not a cell kind", i, in.Kind)
		}
	}
	cp := e.openCheckpoint(ir.CheckpointLoad)
	if !e.loaded {
		return e.createNotebook(ctx, cp, ev.Cells)
	}

	cells, err := e.Cells()
	if err != nil {
		return Outcome{}, err
	}
	for i, in := range ev.Cells {
		if i >= len(cells) {
			if _, err := e.addCell(ctx, cp, i, in); err != nil {
				return Outcome{}, err
			}
			continue
		}
		cell := cells[i]
		if cell.Kind != in.Kind {
			if _, err := e.switchCell(ctx, cp, i, cell, in); err != nil {
				return Outcome{}, err
			}
			continue
		}
		if err := e.applyText(ctx, cp, cell, in.Text); err != nil {
			return Outcome{}, err
		}
		code := cell.Kind == ir.KindCodeCell
		if code {
			if err := e.applyOutputs(cp, cell, in.Outputs); err != nil {
				return Outcome{}, err
			}
		}
		cp.target(change{ref: cell, output: code, optional: true})
	}
	for i := len(cells) - 1; i >= len(ev.Cells); i-- {
		if err := e.deleteCell(cp, i, cells[i]); err != nil {
			return Outcome{}, err
		}
	}
	return e.commit(ctx, cp)
}

// createNotebook builds the first notebook version from cells.
func (e *Engine) createNotebook(ctx context.Context, cp *checkpoint, cells []CellInput) (Outcome, error) {
	nb := &ir.Notebook{Cells: make([]ir.Name, 0, len(cells))}
	for i, in := range cells {
		name, err := e.createCell(ctx, cp, in.Kind, in.Text, in.Outputs)
		if err != nil {
			return Outcome{}, err
		}
		nb.Cells = append(nb.Cells, name)
		cp.target(change{ref: name.Ref(), typ: ir.ChangeAdded, index: indexPtr(i)})
	}
	cp.created = true
	name := e.store.Add(nb, cp.id)
	e.notebook = name.Ref()
	e.loaded = true
	if err := e.adopt(nb.Cells, name); err != nil {
		return Outcome{}, err
	}
	return e.commit(ctx, cp)
}

func (e *Engine) handleEdit(ctx context.Context, ev Event) error {
	if _, err := e.cellIndex(ev.Type, ev.Cell); err != nil {
		return err
	}
	e.live[ev.Cell] = ev.Text
	if ev.Cell.Kind != ir.KindCodeCell {
		return e.stageText(ev.Cell, ev.Text)
	}

	rp, err := e.resolver.RepairCellAST(ev.Cell, ev.Text)
	if err != nil {
		return err
	}
	if !rp.Needed {
		return nil
	}

	cell := ev.Cell
	e.inflight++
	go func() {
		raw, err := e.parser.Parse(ctx, rp.Text)
		resp := &parsedResponse{
			repair: rp,
			resp:   match.Response{Token: rp.Token, Tree: raw, Err: err},
		}
		if !e.queue.Enqueue(Event{Type: EventParsed, Cell: cell, parsed: resp}) {
			e.logger.Debug("parse response dropped: engine stopped", "cell", cell, "token", rp.Token)
		}
	}()
	return nil
}

func (e *Engine) handleParsed(ev Event) error {
	if ev.parsed == nil {
		return invalidEvent(ev.Type, ev.Cell.String(), "missing parse response")
	}
	if e.inflight > 0 {
		e.inflight--
	}
	rp, resp := ev.parsed.repair, ev.parsed.resp
	notice := ParseNotice{Cell: ev.Cell, Token: resp.Token}

	res, err := rp.Complete(resp)
	switch {
	case errors.Is(err, match.ErrStaleResponse):
		notice.Stale = true
		e.logger.Debug("stale parse response discarded",
			"cell", ev.Cell,
			"token", resp.Token,
			"current", e.resolver.Token(ev.Cell),
		)
		err = nil
	case err != nil:
		notice.Err = err
	default:
		notice.Degraded = res.Degraded
		if res.Degraded {
			notice.Err = &RuntimeError{
				Code:    ErrCodeParseFailure,
				Message: "cell stored as literal",
				Event:   ev.Type,
				Cell:    ev.Cell.String(),
				err:     resp.Err,
			}
		}
		e.logRepair(ev.Cell, rp, res, resp.Err)
	}

	if e.parseHook != nil {
		e.parseHook(notice)
	}
	return err
}
