// Package parser defines the source-to-tree collaborator consumed by the
// resolve engine, a fail-safe literal tree, and a tree-sitter backed
// implementation.
package parser

import (
	"context"
	"strings"

	"github.com/roach88/verdant/internal/ir"
)

// FailSafeType is the syntax type of a fail-safe literal tree.
const FailSafeType = "literal"

// Parser turns source text into a RawTree. Implementations must be safe
// for concurrent use: parse requests run off the engine goroutine.
type Parser interface {
	Parse(ctx context.Context, source string) (*RawTree, error)
}

// Func adapts a function to Parser.
type Func func(ctx context.Context, source string) (*RawTree, error)

// Parse calls f.
func (f Func) Parse(ctx context.Context, source string) (*RawTree, error) {
	return f(ctx, source)
}

// RawTree is an unversioned syntax tree as produced by a Parser. Positions
// are relative to the parsed source: line 1, column 0 is its first byte.
type RawTree struct {
	Type    string
	Start   ir.Pos
	End     ir.Pos
	Content []RawItem
	// Literal is set on leaves, which have no content.
	Literal *string
}

// RawItem is one content entry: a subtree or a filler token.
type RawItem struct {
	Tree  *RawTree
	Token string
}

// IsLeaf reports whether t carries a literal.
func (t *RawTree) IsLeaf() bool { return t.Literal != nil }

// Render reproduces the source text covered by t.
func (t *RawTree) Render() string {
	var b strings.Builder
	t.render(&b)
	return b.String()
}

func (t *RawTree) render(b *strings.Builder) {
	if t.Literal != nil {
		b.WriteString(*t.Literal)
		return
	}
	for _, item := range t.Content {
		if item.Tree != nil {
			item.Tree.render(b)
		} else {
			b.WriteString(item.Token)
		}
	}
}

// FailSafe represents the whole of source as one opaque literal leaf.
func FailSafe(source string) *RawTree {
	lit := source
	start := ir.Pos{Line: 1}
	return &RawTree{
		Type:    FailSafeType,
		Start:   start,
		End:     start.Advance(source),
		Literal: &lit,
	}
}

// Leaf returns a literal leaf of type typ spanning text from start.
func Leaf(typ, text string, start ir.Pos) *RawTree {
	lit := text
	return &RawTree{Type: typ, Start: start, End: start.Advance(text), Literal: &lit}
}
