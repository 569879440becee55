package history

import (
	"fmt"

	"github.com/roach88/verdant/internal/ir"
)

// History is the append-only version list of one artifact.
type History struct {
	ref      ir.Ref
	versions []ir.Node
	pending  ir.Node
	origin   *ir.Name
}

// Ref returns the artifact this history belongs to.
func (h *History) Ref() ir.Ref { return h.ref }

// Len returns the number of committed versions.
func (h *History) Len() int { return len(h.versions) }

// Versions returns the committed versions, oldest first.
func (h *History) Versions() []ir.Node {
	return append([]ir.Node(nil), h.versions...)
}

// Committed returns the most recent committed version, or nil if the
// artifact has none yet.
func (h *History) Committed() ir.Node {
	if len(h.versions) == 0 {
		return nil
	}
	return h.versions[len(h.versions)-1]
}

// Pending returns the staging copy, or nil.
func (h *History) Pending() ir.Node { return h.pending }

// Latest returns the pending copy if present, else the last committed version.
func (h *History) Latest() ir.Node {
	if h.pending != nil {
		return h.pending
	}
	return h.Committed()
}

// Origin returns the artifact this history was switched from, if any.
func (h *History) Origin() *ir.Name { return h.origin }

// Store owns every artifact history of one notebook.
type Store struct {
	histories map[ir.Kind][]*History
	// unsaved holds freshly matched nodes keyed by owning cell id; the
	// index within the slice is the temp counter.
	unsaved map[int][]ir.Node
}

// New returns an empty store.
func New() *Store {
	return &Store{
		histories: make(map[ir.Kind][]*History),
		unsaved:   make(map[int][]ir.Node),
	}
}

// Add allocates a fresh id for n and commits it as version 0 created by
// checkpoint. n must not be referenced elsewhere afterwards.
func (s *Store) Add(n ir.Node, checkpoint int) ir.Name {
	kind := n.Kind()
	m := n.Base()
	m.ID = len(s.histories[kind])
	m.Version = 0
	m.Created = checkpoint
	h := &History{ref: ir.Ref{Kind: kind, ID: m.ID}, versions: []ir.Node{n}}
	s.histories[kind] = append(s.histories[kind], h)
	return ir.NameOf(n)
}

// HistoryOf returns the history of ref.
func (s *Store) HistoryOf(ref ir.Ref) (*History, error) {
	list := s.histories[ref.Kind]
	if ref.ID < 0 || ref.ID >= len(list) {
		return nil, lookupErr(ref, "no such artifact")
	}
	return list[ref.ID], nil
}

// Get returns the exact version named. Pending names resolve to the
// staging copy and temp names to the unsaved arena.
func (s *Store) Get(name ir.Name) (ir.Node, error) {
	if name.IsTemp() {
		return s.getUnsaved(name)
	}
	h, err := s.HistoryOf(name.Ref())
	if err != nil {
		return nil, err
	}
	if name.IsPending() {
		if h.pending == nil {
			return nil, lookupErr(name, "no pending version")
		}
		return h.pending, nil
	}
	if name.Version < 0 || name.Version >= len(h.versions) {
		return nil, lookupErr(name, fmt.Sprintf("history has %d versions", len(h.versions)))
	}
	return h.versions[name.Version], nil
}

// Latest returns the pending copy of ref if present, else its last
// committed version.
func (s *Store) Latest(ref ir.Ref) (ir.Node, error) {
	h, err := s.HistoryOf(ref)
	if err != nil {
		return nil, err
	}
	n := h.Latest()
	if n == nil {
		return nil, lookupErr(ref, "empty history")
	}
	return n, nil
}

// Committed returns the last committed version of ref.
func (s *Store) Committed(ref ir.Ref) (ir.Node, error) {
	h, err := s.HistoryOf(ref)
	if err != nil {
		return nil, err
	}
	n := h.Committed()
	if n == nil {
		return nil, lookupErr(ref, "no committed version")
	}
	return n, nil
}

// LatestName returns the name Latest would resolve to.
func (s *Store) LatestName(ref ir.Ref) (ir.Name, error) {
	n, err := s.Latest(ref)
	if err != nil {
		return ir.Name{}, err
	}
	return ir.NameOf(n), nil
}

// LinkOrigin records that newRef replaced old after a type change.
func (s *Store) LinkOrigin(newRef ir.Ref, old ir.Name) error {
	h, err := s.HistoryOf(newRef)
	if err != nil {
		return err
	}
	if _, err := s.Get(old); err != nil {
		return err
	}
	origin := old
	h.origin = &origin
	return nil
}

// SetPending installs n as the staging copy of its artifact. n.Version is
// set to ir.PendingVersion.
func (s *Store) SetPending(n ir.Node) (ir.Name, error) {
	ref := ir.Ref{Kind: n.Kind(), ID: n.Base().ID}
	h, err := s.HistoryOf(ref)
	if err != nil {
		return ir.Name{}, err
	}
	if h.pending != nil {
		return ir.Name{}, fmt.Errorf("set pending %s: %w", ref, ErrPendingExists)
	}
	n.Base().Version = ir.PendingVersion
	h.pending = n
	return ref.Pending(), nil
}

// DiscardPending drops the staging copy of ref. Discarding an empty slot
// is a no-op.
func (s *Store) DiscardPending(ref ir.Ref) error {
	h, err := s.HistoryOf(ref)
	if err != nil {
		return err
	}
	h.pending = nil
	return nil
}

// Destar promotes the staging copy of ref to the next permanent version,
// stamped with checkpoint.
func (s *Store) Destar(ref ir.Ref, checkpoint int) (ir.Name, error) {
	h, err := s.HistoryOf(ref)
	if err != nil {
		return ir.Name{}, err
	}
	if h.pending == nil {
		return ir.Name{}, fmt.Errorf("destar %s: %w", ref, ErrNoPending)
	}
	n := h.pending
	m := n.Base()
	m.Version = len(h.versions)
	m.Created = checkpoint
	h.versions = append(h.versions, n)
	h.pending = nil
	return ir.NameOf(n), nil
}

// AddUnsaved parks n in the unsaved arena of owner and returns its temp name.
func (s *Store) AddUnsaved(owner int, n ir.Node) ir.Name {
	s.unsaved[owner] = append(s.unsaved[owner], n)
	return ir.Name{Kind: ir.KindTemp, ID: owner, Version: len(s.unsaved[owner]) - 1}
}

// DropUnsaved discards every unsaved node owned by owner.
func (s *Store) DropUnsaved(owner int) {
	delete(s.unsaved, owner)
}

func (s *Store) getUnsaved(name ir.Name) (ir.Node, error) {
	arena := s.unsaved[name.ID]
	if name.Version < 0 || name.Version >= len(arena) {
		return nil, lookupErr(name, "no such unsaved node")
	}
	return arena[name.Version], nil
}

// Count returns the number of artifacts of kind.
func (s *Store) Count(kind ir.Kind) int {
	return len(s.histories[kind])
}

// Histories returns every history of kind in id order.
func (s *Store) Histories(kind ir.Kind) []*History {
	return append([]*History(nil), s.histories[kind]...)
}

// PendingRefs returns every artifact with an occupied pending slot, in
// snapshot kind order then id order.
func (s *Store) PendingRefs() []ir.Ref {
	var out []ir.Ref
	for _, kind := range ir.Kinds {
		for _, h := range s.histories[kind] {
			if h.pending != nil {
				out = append(out, h.ref)
			}
		}
	}
	return out
}
