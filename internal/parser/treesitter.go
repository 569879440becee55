package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/roach88/verdant/internal/ir"
)

// ErrSyntax is returned when the parsed tree contains error or missing nodes.
var ErrSyntax = errors.New("syntax error")

// TreeSitter parses with a tree-sitter grammar. Named leaves become literal
// leaves; anonymous leaves and the bytes between siblings become tokens.
//
// A *sitter.Parser is not safe for concurrent use, so each Parse borrows
// one from a pool. Concurrent Parse calls are safe and do not serialize.
type TreeSitter struct {
	parsers sync.Pool
	lang    string
}

// NewTreeSitter returns a parser for lang ("python" or "javascript").
func NewTreeSitter(lang string) (*TreeSitter, error) {
	var grammar *sitter.Language
	switch lang {
	case "py", "python":
		grammar = python.GetLanguage()
		lang = "python"
	case "js", "javascript":
		grammar = javascript.GetLanguage()
		lang = "javascript"
	default:
		return nil, fmt.Errorf("unsupported language %q", lang)
	}
	t := &TreeSitter{lang: lang}
	t.parsers.New = func() any {
		p := sitter.NewParser()
		p.SetLanguage(grammar)
		return p
	}
	return t, nil
}

// Language returns the grammar name.
func (t *TreeSitter) Language() string { return t.lang }

// Parse implements Parser.
func (t *TreeSitter) Parse(ctx context.Context, source string) (*RawTree, error) {
	src := []byte(source)

	p := t.parsers.Get().(*sitter.Parser)
	tree, err := p.ParseCtx(ctx, nil, src)
	t.parsers.Put(p)
	if err != nil {
		return nil, fmt.Errorf("parsing failed: %w", err)
	}

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%s: %w", t.lang, ErrSyntax)
	}

	b := builder{src: src}
	raw := b.build(root, 0, uint32(len(src)))
	raw.Start = ir.Pos{Line: 1}
	raw.End = raw.Start.Advance(source)
	return raw, nil
}

type builder struct {
	src []byte
}

// build converts n covering src[from:to]. Gaps before the first child and
// after the last become tokens so Render reproduces the span exactly.
func (b *builder) build(n *sitter.Node, from, to uint32) *RawTree {
	raw := &RawTree{
		Type:  n.Type(),
		Start: point(n.StartPoint()),
		End:   point(n.EndPoint()),
	}
	count := int(n.ChildCount())
	if count == 0 {
		lit := string(b.src[from:to])
		raw.Literal = &lit
		return raw
	}

	cursor := from
	for i := 0; i < count; i++ {
		child := n.Child(i)
		start, end := child.StartByte(), child.EndByte()
		if start > cursor {
			raw.Content = append(raw.Content, RawItem{Token: string(b.src[cursor:start])})
		}
		if start < cursor {
			start = cursor
		}
		switch {
		case child.ChildCount() > 0:
			raw.Content = append(raw.Content, RawItem{Tree: b.build(child, start, end)})
		case child.IsNamed():
			raw.Content = append(raw.Content, RawItem{Tree: b.build(child, start, end)})
		case end > start:
			raw.Content = append(raw.Content, RawItem{Token: string(b.src[start:end])})
		}
		if end > cursor {
			cursor = end
		}
	}
	if to > cursor {
		raw.Content = append(raw.Content, RawItem{Token: string(b.src[cursor:to])})
	}
	return raw
}

func point(p sitter.Point) ir.Pos {
	return ir.Pos{Line: int(p.Row) + 1, Col: int(p.Column)}
}
