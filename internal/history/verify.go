package history

import (
	"errors"
	"fmt"

	"github.com/roach88/verdant/internal/ir"
)

// Verify checks the committed state of s:
//   - every history is a gapless 0..n version list with stable ids
//   - no pending slot or unsaved node survives
//   - parents, children, notebook cells and origins name committed versions
//   - children were committed at or before their parent
//
// All violations are returned joined.
func (s *Store) Verify() error {
	var errs []error
	report := func(n fmt.Stringer, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", n, fmt.Sprintf(format, args...)))
	}

	for owner, arena := range s.unsaved {
		if len(arena) > 0 {
			report(ir.Name{Kind: ir.KindTemp, ID: owner}, "%d unsaved nodes left", len(arena))
		}
	}

	for _, kind := range ir.Kinds {
		for id, h := range s.histories[kind] {
			if h.ref != (ir.Ref{Kind: kind, ID: id}) {
				report(h.ref, "stored at %s.%d", kind, id)
			}
			if h.pending != nil {
				report(h.ref, "pending version left")
			}
			if len(h.versions) == 0 {
				report(h.ref, "empty history")
			}
			if h.origin != nil {
				if _, err := s.Get(*h.origin); err != nil {
					report(h.ref, "origin: %v", err)
				}
			}
			for v, n := range h.versions {
				name := ir.NameOf(n)
				if n.Kind() != kind || n.Base().ID != id || n.Base().Version != v {
					report(h.ref.At(v), "holds %s", name)
					continue
				}
				s.verifyLinks(n, report)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Store) verifyLinks(n ir.Node, report func(fmt.Stringer, string, ...any)) {
	name := ir.NameOf(n)
	created := n.Base().Created

	if parent := n.Base().Parent; !parent.IsZero() {
		if !parent.IsCommitted() {
			report(name, "parent %s is not committed", parent)
		} else if _, err := s.Get(parent); err != nil {
			report(name, "parent: %v", err)
		}
	}

	var children []ir.Name
	switch v := n.(type) {
	case *ir.Notebook:
		children = v.Cells
	case *ir.CodeCell:
		children = v.Children()
		if !v.Output.IsZero() {
			if _, err := s.HistoryOf(v.Output); err != nil {
				report(name, "output: %v", err)
			}
		}
	case *ir.Syntax:
		children = v.Children()
	}
	for _, child := range children {
		if !child.IsCommitted() {
			report(name, "child %s is not committed", child)
			continue
		}
		c, err := s.Get(child)
		if err != nil {
			report(name, "child: %v", err)
			continue
		}
		if c.Base().Created > created {
			report(name, "child %s committed at checkpoint %d after parent at %d", child, c.Base().Created, created)
		}
	}
}
