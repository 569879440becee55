package ir

import (
	"encoding/json"
	"fmt"
)

// Node is one version of an artifact. The set of variants is closed:
// *Notebook, *CodeCell, *Syntax, *Markdown, *RawCell and *Output.
type Node interface {
	// Kind returns the variant tag.
	Kind() Kind
	// Base returns the common versioned fields.
	Base() *Meta
	// Clone returns a deep copy that can be edited without touching n.
	Clone() Node

	sealed()
}

// Meta holds the fields shared by every version.
type Meta struct {
	ID      int
	Version int
	// Created is the id of the checkpoint that committed this version.
	Created int
	// Parent is the committed container at the time of this version.
	Parent Name
}

// Base returns m. Promoted to every variant.
func (m *Meta) Base() *Meta { return m }

// Tree holds the syntax fields of code cells and code subtrees.
type Tree struct {
	Type    string
	Content []Content
	Start   Pos
	End     Pos
	// Literal is set on leaf nodes only.
	Literal *string
	// Right names the next sibling at the time this version was committed.
	// A different sibling artifact forces a new version; a newer version of
	// the same sibling does not.
	Right Name
}

// IsLeaf reports whether t carries a literal.
func (t *Tree) IsLeaf() bool { return t.Literal != nil }

// Children returns the child names in content order.
func (t *Tree) Children() []Name {
	var out []Name
	for _, c := range t.Content {
		if !c.IsToken() {
			out = append(out, c.Child)
		}
	}
	return out
}

func (t Tree) clone() Tree {
	out := t
	if t.Content != nil {
		out.Content = append([]Content(nil), t.Content...)
	}
	if t.Literal != nil {
		lit := *t.Literal
		out.Literal = &lit
	}
	return out
}

// Notebook is the ordered list of cell artifacts.
type Notebook struct {
	Meta
	Cells []Name
}

// CodeCell is the root of a cell's syntax tree.
type CodeCell struct {
	Meta
	Tree
	// Output links the cell to its output artifact. Unversioned, so output
	// commits never force a code version.
	Output Ref
}

// Syntax is a code subtree below a cell.
type Syntax struct {
	Meta
	Tree
}

// Markdown is a markdown cell.
type Markdown struct {
	Meta
	Text string
}

// RawCell is a raw text cell.
type RawCell struct {
	Meta
	Text string
}

// Output is the ordered output of a code cell.
type Output struct {
	Meta
	Raw []Payload
}

// Payload is one raw output record, e.g. {"output_type": "stream", "text": "1\n"}.
type Payload map[string]any

func (*Notebook) Kind() Kind { return KindNotebook }
func (*CodeCell) Kind() Kind { return KindCodeCell }
func (*Syntax) Kind() Kind   { return KindSyntax }
func (*Markdown) Kind() Kind { return KindMarkdown }
func (*RawCell) Kind() Kind  { return KindRawCell }
func (*Output) Kind() Kind   { return KindOutput }

func (*Notebook) sealed() {}
func (*CodeCell) sealed() {}
func (*Syntax) sealed()   {}
func (*Markdown) sealed() {}
func (*RawCell) sealed()  {}
func (*Output) sealed()   {}

func (n *Notebook) Clone() Node {
	out := *n
	out.Cells = append([]Name(nil), n.Cells...)
	return &out
}

func (n *CodeCell) Clone() Node {
	out := *n
	out.Tree = n.Tree.clone()
	return &out
}

func (n *Syntax) Clone() Node {
	out := *n
	out.Tree = n.Tree.clone()
	return &out
}

func (n *Markdown) Clone() Node {
	out := *n
	return &out
}

func (n *RawCell) Clone() Node {
	out := *n
	return &out
}

func (n *Output) Clone() Node {
	out := *n
	out.Raw = ClonePayloads(n.Raw)
	return &out
}

// NameOf returns the name of n's version. Pending copies carry
// PendingVersion so the result is the staging name.
func NameOf(n Node) Name {
	m := n.Base()
	return Name{Kind: n.Kind(), ID: m.ID, Version: m.Version}
}

// TreeOf returns the syntax fields of code nodes, nil otherwise.
func TreeOf(n Node) *Tree {
	switch v := n.(type) {
	case *CodeCell:
		return &v.Tree
	case *Syntax:
		return &v.Tree
	}
	return nil
}

// New returns an empty node of kind k.
func New(k Kind) (Node, error) {
	switch k {
	case KindNotebook:
		return &Notebook{}, nil
	case KindCodeCell:
		return &CodeCell{}, nil
	case KindSyntax:
		return &Syntax{}, nil
	case KindMarkdown:
		return &Markdown{}, nil
	case KindRawCell:
		return &RawCell{}, nil
	case KindOutput:
		return &Output{}, nil
	}
	return nil, fmt.Errorf("unknown kind %q", k)
}

// ClonePayloads deep-copies output payloads.
func ClonePayloads(raw []Payload) []Payload {
	if raw == nil {
		return nil
	}
	out := make([]Payload, len(raw))
	for i, p := range raw {
		out[i] = Payload(cloneValue(map[string]any(p)).(map[string]any))
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = cloneValue(e)
		}
		return out
	case Payload:
		return Payload(cloneValue(map[string]any(val)).(map[string]any))
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return val
	}
}

// NormalizePayloads round-trips raw through encoding/json so values compare
// equal to payloads read back from a snapshot (numbers become float64,
// typed maps become map[string]any).
func NormalizePayloads(raw []Payload) ([]Payload, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize payloads: %w", err)
	}
	var out []Payload
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize payloads: %w", err)
	}
	return out, nil
}
