package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/match"
)

// checkpoint collects the work of one external event until commit.
type checkpoint struct {
	id  int
	typ ir.CheckpointType

	// edited lists cells and outputs marked as possibly edited, in order.
	edited []ir.Ref
	seen   map[ir.Ref]bool
	// versioned records every artifact that got a new version.
	versioned map[ir.Ref]bool
	// reparent lists cells whose Parent becomes the new notebook version.
	reparent []ir.Ref
	// created is set when fresh artifacts were added.
	created bool
	changes []change
}

// change is one target cell, resolved to final names after commit.
type change struct {
	ref ir.Ref
	// name is fixed up front for removed cells.
	name ir.Name
	// typ is left empty to report changed or same from the commit result.
	typ    ir.ChangeType
	index  *int
	output bool
	// optional targets are reported only if the cell got a new version.
	optional bool
}

func (e *Engine) openCheckpoint(typ ir.CheckpointType) *checkpoint {
	return &checkpoint{
		id:        int(e.clock.Current()),
		typ:       typ,
		seen:      make(map[ir.Ref]bool),
		versioned: make(map[ir.Ref]bool),
	}
}

// markAsPossiblyEdited queues ref for verification at commit.
func (cp *checkpoint) markAsPossiblyEdited(ref ir.Ref) {
	if cp.seen[ref] {
		return
	}
	cp.seen[ref] = true
	cp.edited = append(cp.edited, ref)
}

func (cp *checkpoint) target(c change) {
	cp.changes = append(cp.changes, c)
}

func indexPtr(i int) *int {
	return &i
}

// commit verifies every queued artifact, then the notebook, and records
// the checkpoint if anything got a new version.
func (e *Engine) commit(ctx context.Context, cp *checkpoint) (Outcome, error) {
	for _, ref := range cp.edited {
		did, err := e.commitArtifact(ctx, cp, ref)
		if err != nil {
			return Outcome{}, err
		}
		if did {
			cp.versioned[ref] = true
		}
	}
	if e.loaded {
		if err := e.commitNotebook(cp); err != nil {
			return Outcome{}, err
		}
	}

	if len(cp.versioned) == 0 && !cp.created {
		e.logger.Debug("checkpoint dropped: nothing changed",
			"checkpoint", cp.id,
			"type", cp.typ,
		)
		return Outcome{}, nil
	}

	targets, err := e.resolveTargets(cp)
	if err != nil {
		return Outcome{}, err
	}
	nb, err := e.store.Committed(e.notebook)
	if err != nil {
		return Outcome{}, err
	}
	rec := ir.Checkpoint{
		ID:              cp.id,
		Timestamp:       e.now(),
		Type:            cp.typ,
		NotebookVersion: nb.Base().Version,
		TargetCells:     targets,
	}
	e.checkpoints = append(e.checkpoints, rec)
	e.clock.Next()

	if e.persist != nil {
		if err := e.persist.AppendCheckpoint(ctx, e.key, e.session, rec); err != nil {
			e.logger.Error("checkpoint log write failed",
				"checkpoint", rec.ID,
				"error", err,
			)
		}
	}
	e.logger.Info("checkpoint recorded",
		"checkpoint", rec.ID,
		"type", rec.Type,
		"notebook_version", rec.NotebookVersion,
		"targets", len(rec.TargetCells),
		"session", e.session,
	)
	return Outcome{Checkpoint: &rec}, nil
}

// commitArtifact verifies the pending copy of a cell or output and either
// destars it or discards it. It reports whether a version was added.
func (e *Engine) commitArtifact(ctx context.Context, cp *checkpoint, ref ir.Ref) (bool, error) {
	h, err := e.store.HistoryOf(ref)
	if err != nil {
		return false, err
	}
	p := h.Pending()
	if p == nil {
		if ref.Kind == ir.KindCodeCell {
			return false, e.stager.CleanOut(ref.ID)
		}
		return false, nil
	}

	differs, err := e.verifyDifferent(p, h.Committed())
	if err != nil {
		return false, err
	}
	if !differs {
		if ref.Kind == ir.KindCodeCell {
			if err := e.stager.CleanOut(ref.ID); err != nil {
				return false, err
			}
		}
		return false, e.store.DiscardPending(ref)
	}

	switch v := p.(type) {
	case *ir.CodeCell:
		fresh, err := e.commitContent(v.Content, cp.id)
		if err != nil {
			return false, err
		}
		name, err := e.store.Destar(ref, cp.id)
		if err != nil {
			return false, err
		}
		if err := e.adopt(fresh, name); err != nil {
			return false, err
		}
		if err := e.stager.CleanOut(ref.ID); err != nil {
			return false, err
		}
		cp.reparent = append(cp.reparent, ref)
		e.logger.Debug("cell committed", "cell", name, "new_nodes", len(fresh))

	case *ir.Output:
		if !v.Parent.IsZero() {
			cell, err := e.store.Committed(v.Parent.Ref())
			if err != nil {
				return false, err
			}
			v.Parent = ir.NameOf(cell)
		}
		name, err := e.store.Destar(ref, cp.id)
		if err != nil {
			return false, err
		}
		e.writeBlobs(ctx, v.Raw)
		e.logger.Debug("output committed", "output", name, "items", len(v.Raw))

	default:
		name, err := e.store.Destar(ref, cp.id)
		if err != nil {
			return false, err
		}
		cp.reparent = append(cp.reparent, ref)
		e.logger.Debug("cell committed", "cell", name)
	}
	return true, nil
}

// commitContent finalizes the children of a tree whose own text changed,
// right to left so each child can link its right sibling. Temp nodes are
// committed fresh. Pending nodes get a new version when their text, range,
// right sibling or child names moved, and fall back to their committed
// version otherwise. Committed nodes whose right sibling changed are
// restaged to relink it. content is rewritten in place. The returned names
// were committed by this call and still need their Parent set.
func (e *Engine) commitContent(content []ir.Content, checkpoint int) ([]ir.Name, error) {
	var fresh []ir.Name
	var right ir.Name
	for i := len(content) - 1; i >= 0; i-- {
		item := content[i]
		if item.IsToken() {
			continue
		}
		final := item.Child

		switch {
		case item.Child.IsTemp():
			node, err := e.store.Get(item.Child)
			if err != nil {
				return nil, err
			}
			t := ir.TreeOf(node)
			if t == nil {
				return nil, fmt.Errorf("temp node %s has no tree", item.Child)
			}
			kids, err := e.commitContent(t.Content, checkpoint)
			if err != nil {
				return nil, err
			}
			t.Right = right
			final = e.store.Add(node, checkpoint)
			if err := e.adopt(kids, final); err != nil {
				return nil, err
			}
			fresh = append(fresh, final)

		case item.Child.IsPending():
			ref := item.Child.Ref()
			node, err := e.store.Get(item.Child)
			if err != nil {
				return nil, err
			}
			committed, err := e.store.Committed(ref)
			if err != nil {
				return nil, err
			}
			t := ir.TreeOf(node)
			kids, err := e.commitContent(t.Content, checkpoint)
			if err != nil {
				return nil, err
			}
			differs := treeMoved(t, ir.TreeOf(committed), right)
			if !differs {
				if differs, err = e.verifyDifferent(node, committed); err != nil {
					return nil, err
				}
			}
			if !differs {
				if err := e.store.DiscardPending(ref); err != nil {
					return nil, err
				}
				final = ir.NameOf(committed)
				break
			}
			t.Right = right
			if final, err = e.store.Destar(ref, checkpoint); err != nil {
				return nil, err
			}
			if err := e.adopt(kids, final); err != nil {
				return nil, err
			}
			fresh = append(fresh, final)

		default:
			relinked, err := e.relink(item.Child, right, checkpoint)
			if err != nil {
				return nil, err
			}
			if relinked != item.Child {
				final = relinked
				fresh = append(fresh, final)
			}
		}

		content[i] = ir.ChildItem(final)
		right = final
	}
	return fresh, nil
}

// treeMoved reports whether a pending tree sits somewhere else than its
// committed version: another range, another right sibling artifact or
// other child versions. Child slots must already hold final names.
func treeMoved(pending, committed *ir.Tree, right ir.Name) bool {
	if pending == nil || committed == nil {
		return pending != committed
	}
	return pending.Start != committed.Start ||
		pending.End != committed.End ||
		committed.Right.Ref() != right.Ref() ||
		!slices.Equal(pending.Children(), committed.Children())
}

// relink gives a committed subtree a new version when the artifact to its
// right changed. A new version of the same sibling does not relink.
func (e *Engine) relink(name, right ir.Name, checkpoint int) (ir.Name, error) {
	node, err := e.store.Get(name)
	if err != nil {
		return ir.Name{}, err
	}
	t := ir.TreeOf(node)
	if t == nil || t.Right.Ref() == right.Ref() {
		return name, nil
	}
	ref := name.Ref()
	// A leftover staged copy is not linked from this tree.
	if err := e.store.DiscardPending(ref); err != nil {
		return ir.Name{}, err
	}
	clone := node.Clone()
	ir.TreeOf(clone).Right = right
	if _, err := e.store.SetPending(clone); err != nil {
		return ir.Name{}, err
	}
	return e.store.Destar(ref, checkpoint)
}

// adopt sets the Parent of freshly committed nodes.
func (e *Engine) adopt(names []ir.Name, parent ir.Name) error {
	for _, name := range names {
		n, err := e.store.Get(name)
		if err != nil {
			return err
		}
		n.Base().Parent = parent
	}
	return nil
}

// commitNotebook points every notebook slot at a committed cell version
// and commits the notebook if its cell list changed. Cells with edits
// outside this checkpoint keep their pending copy and re-promote the
// notebook afterwards.
func (e *Engine) commitNotebook(cp *checkpoint) error {
	h, err := e.store.HistoryOf(e.notebook)
	if err != nil {
		return err
	}
	nb, ok := h.Pending().(*ir.Notebook)
	if !ok {
		return nil
	}

	var carried []ir.Ref
	for i, slot := range nb.Cells {
		ch, err := e.store.HistoryOf(slot.Ref())
		if err != nil {
			return err
		}
		if ch.Pending() != nil {
			carried = append(carried, slot.Ref())
		}
		committed := ch.Committed()
		if committed == nil {
			return fmt.Errorf("cell %s has no committed version", slot.Ref())
		}
		nb.Cells[i] = ir.NameOf(committed)
	}

	differs, err := e.verifyDifferent(nb, h.Committed())
	if err != nil {
		return err
	}
	if differs {
		name, err := e.store.Destar(e.notebook, cp.id)
		if err != nil {
			return err
		}
		cp.versioned[e.notebook] = true
		for _, ref := range cp.reparent {
			n, err := e.store.Committed(ref)
			if err != nil {
				return err
			}
			if n.Base().Created == cp.id {
				n.Base().Parent = name
			}
		}
	} else if err := e.store.DiscardPending(e.notebook); err != nil {
		return err
	}

	for _, ref := range carried {
		if err := e.carryEdit(ref); err != nil {
			return err
		}
	}
	return nil
}

// carryEdit re-points the notebook slot of ref at its pending copy.
func (e *Engine) carryEdit(ref ir.Ref) error {
	nb, err := e.stageNotebook()
	if err != nil {
		return err
	}
	for i, slot := range nb.Cells {
		if slot.Ref() == ref {
			nb.Cells[i] = ref.Pending()
			return nil
		}
	}
	return nil
}

// verifyDifferent reports whether a pending copy differs from its
// committed version in a way worth a new version. Code and text compare
// by normalized rendered text, outputs by content, the notebook by its
// cell list.
func (e *Engine) verifyDifferent(pending, committed ir.Node) (bool, error) {
	if committed == nil {
		return true, nil
	}
	switch p := pending.(type) {
	case *ir.Output:
		c, ok := committed.(*ir.Output)
		if !ok {
			return true, nil
		}
		return !cmp.Equal(p.Raw, c.Raw, cmpopts.EquateEmpty()), nil
	case *ir.Notebook:
		c, ok := committed.(*ir.Notebook)
		if !ok {
			return true, nil
		}
		return !slices.Equal(p.Cells, c.Cells), nil
	}

	a, err := match.RenderNode(e.store, pending)
	if err != nil {
		return false, err
	}
	b, err := match.RenderNode(e.store, committed)
	if err != nil {
		return false, err
	}
	a, b = norm.NFC.String(a), norm.NFC.String(b)
	if a == b {
		return false, nil
	}
	e.logger.Debug("artifact changed",
		"name", ir.NameOf(committed),
		"distance", match.Distance(b, a),
	)
	return true, nil
}

// resolveTargets turns the collected changes into checkpoint targets with
// final committed names.
func (e *Engine) resolveTargets(cp *checkpoint) ([]ir.CellChange, error) {
	targets := make([]ir.CellChange, 0, len(cp.changes))
	for _, c := range cp.changes {
		typ := c.typ
		if typ == "" {
			switch {
			case cp.versioned[c.ref]:
				typ = ir.ChangeChanged
			case c.optional:
				continue
			default:
				typ = ir.ChangeSame
			}
		}

		name := c.name
		if name.IsZero() {
			n, err := e.store.Committed(c.ref)
			if err != nil {
				return nil, err
			}
			name = ir.NameOf(n)
		}
		cc := ir.CellChange{Cell: name, ChangeType: typ, Index: c.index}

		if c.output {
			n, err := e.store.Committed(c.ref)
			if err != nil {
				return nil, err
			}
			if cell, ok := n.(*ir.CodeCell); ok && !cell.Output.IsZero() {
				out, err := e.store.Committed(cell.Output)
				if err != nil {
					return nil, err
				}
				outName := ir.NameOf(out)
				cc.Output = &outName
			}
		}
		targets = append(targets, cc)
	}
	return targets, nil
}
