// Package stage implements copy-on-write staging in front of committed
// artifacts.
//
// A staged artifact is a full clone of its latest committed version held in
// the store's pending slot. Edits mutate only the clone; the commit engine
// either destars it into a new version or discards it.
package stage

import (
	"fmt"
	"slices"

	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/ir"
)

// Stager creates and tracks pending copies.
type Stager struct {
	store *history.Store
	// owned tracks the subtree nodes staged on behalf of each cell.
	owned map[int]map[ir.Ref]bool
}

// New returns a Stager over store.
func New(store *history.Store) *Stager {
	return &Stager{store: store, owned: make(map[int]map[ir.Ref]bool)}
}

// Store returns the underlying store.
func (s *Stager) Store() *history.Store { return s.store }

// MarkAsEdited returns the pending copy of ref, creating it if needed. A
// new copy also promotes every ancestor to a pending copy and rewrites the
// ancestor's slot for the child to the child's pending name, so a partly
// edited tree stays self-consistent. Calling it again returns the same copy.
//
// Outputs are linked from their cell by an unversioned ref and never
// promote the cell.
func (s *Stager) MarkAsEdited(ref ir.Ref) (ir.Node, error) {
	h, err := s.store.HistoryOf(ref)
	if err != nil {
		return nil, err
	}
	if p := h.Pending(); p != nil {
		return p, nil
	}
	node, err := s.stage(h)
	if err != nil {
		return nil, err
	}
	if ref.Kind == ir.KindOutput {
		return node, nil
	}

	child := ref
	parent := h.Committed().Base().Parent
	for !parent.IsZero() {
		ph, err := s.store.HistoryOf(parent.Ref())
		if err != nil {
			return nil, err
		}
		existing := ph.Pending()
		pnode := existing
		if pnode == nil {
			if pnode, err = s.stage(ph); err != nil {
				return nil, err
			}
		}
		if err := replaceChild(pnode, child, child.Pending()); err != nil {
			return nil, err
		}
		if existing != nil {
			// Already pending, so its own ancestors were promoted earlier.
			break
		}
		child = parent.Ref()
		parent = ph.Committed().Base().Parent
	}
	return node, nil
}

// Stage returns an editable copy of name for owner without promoting
// ancestors. Temp names return the unsaved node itself; an artifact that
// already has a pending copy returns it.
func (s *Stager) Stage(owner int, name ir.Name) (ir.Node, ir.Name, error) {
	if name.IsTemp() {
		n, err := s.store.Get(name)
		return n, name, err
	}
	h, err := s.store.HistoryOf(name.Ref())
	if err != nil {
		return nil, ir.Name{}, err
	}
	if p := h.Pending(); p != nil {
		return p, name.Ref().Pending(), nil
	}
	node, err := s.stage(h)
	if err != nil {
		return nil, ir.Name{}, err
	}
	s.own(owner, name.Ref())
	return node, name.Ref().Pending(), nil
}

// NewUnsaved parks a freshly built node in owner's unsaved arena.
func (s *Stager) NewUnsaved(owner int, n ir.Node) ir.Name {
	return s.store.AddUnsaved(owner, n)
}

// Discard drops the pending copy of ref.
func (s *Stager) Discard(ref ir.Ref) error {
	for _, set := range s.owned {
		delete(set, ref)
	}
	return s.store.DiscardPending(ref)
}

// Owned returns the refs staged for owner that still hold a pending copy,
// in kind then id order.
func (s *Stager) Owned(owner int) []ir.Ref {
	var out []ir.Ref
	for ref := range s.owned[owner] {
		h, err := s.store.HistoryOf(ref)
		if err == nil && h.Pending() != nil {
			out = append(out, ref)
		}
	}
	slices.SortFunc(out, func(a, b ir.Ref) int {
		if a.Kind != b.Kind {
			if a.Kind < b.Kind {
				return -1
			}
			return 1
		}
		return a.ID - b.ID
	})
	return out
}

// CleanOut discards every subtree copy staged for owner and its unsaved
// arena. The owner's own pending copy is left to the commit engine.
func (s *Stager) CleanOut(owner int) error {
	for ref := range s.owned[owner] {
		if err := s.store.DiscardPending(ref); err != nil {
			return err
		}
	}
	delete(s.owned, owner)
	s.store.DropUnsaved(owner)
	return nil
}

func (s *Stager) own(owner int, ref ir.Ref) {
	set := s.owned[owner]
	if set == nil {
		set = make(map[ir.Ref]bool)
		s.owned[owner] = set
	}
	set[ref] = true
}

func (s *Stager) stage(h *history.History) (ir.Node, error) {
	committed := h.Committed()
	if committed == nil {
		return nil, fmt.Errorf("stage %s: no committed version", h.Ref())
	}
	clone := committed.Clone()
	if _, err := s.store.SetPending(clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// replaceChild points the slot of child inside parent at name.
func replaceChild(parent ir.Node, child ir.Ref, name ir.Name) error {
	switch p := parent.(type) {
	case *ir.Notebook:
		for i, c := range p.Cells {
			if c.Ref() == child {
				p.Cells[i] = name
				return nil
			}
		}
	case *ir.CodeCell:
		if replaceContent(p.Content, child, name) {
			return nil
		}
	case *ir.Syntax:
		if replaceContent(p.Content, child, name) {
			return nil
		}
	}
	return &history.LookupError{Name: child.String(), Reason: fmt.Sprintf("not a child of %s", ir.NameOf(parent))}
}

func replaceContent(content []ir.Content, child ir.Ref, name ir.Name) bool {
	for i, c := range content {
		if !c.IsToken() && c.Child.Ref() == child {
			content[i] = ir.ChildItem(name)
			return true
		}
	}
	return false
}
