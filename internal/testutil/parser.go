package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/parser"
)

// ErrLineSyntax is returned by LineParser for lines containing "!!".
var ErrLineSyntax = errors.New("line syntax error")

// LineParser is a deterministic toy grammar for tests: a "module" holding
// one "statement" per non-blank line. Statements contain "identifier",
// "number" and "string" leaves; spaces and operators are tokens, as are
// indentation and newlines at module level.
//
// Thread-safety: LineParser is stateless and safe for concurrent use.
type LineParser struct{}

// Parse implements parser.Parser.
func (LineParser) Parse(ctx context.Context, source string) (*parser.RawTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := &parser.RawTree{Type: "module", Start: ir.Pos{Line: 1}}
	root.End = root.Start.Advance(source)

	for i, line := range strings.SplitAfter(source, "\n") {
		if line == "" {
			continue
		}
		lineNo := i + 1
		body := strings.TrimSuffix(line, "\n")
		if strings.Contains(body, "!!") {
			return nil, fmt.Errorf("line %d: %w", lineNo, ErrLineSyntax)
		}
		rest := strings.TrimLeft(body, " \t")
		indent := body[:len(body)-len(rest)]
		stmt := strings.TrimRight(rest, " \t")
		trailing := rest[len(stmt):]

		if indent != "" {
			root.Content = append(root.Content, parser.RawItem{Token: indent})
		}
		if stmt != "" {
			start := ir.Pos{Line: lineNo, Col: len(indent)}
			root.Content = append(root.Content, parser.RawItem{Tree: statement(stmt, start)})
		}
		if trailing != "" {
			root.Content = append(root.Content, parser.RawItem{Token: trailing})
		}
		if strings.HasSuffix(line, "\n") {
			root.Content = append(root.Content, parser.RawItem{Token: "\n"})
		}
	}
	return root, nil
}

func statement(text string, start ir.Pos) *parser.RawTree {
	stmt := &parser.RawTree{Type: "statement", Start: start, End: start.Advance(text)}
	for i := 0; i < len(text); {
		j := i + 1
		pos := ir.Pos{Line: start.Line, Col: start.Col + i}
		c := text[i]
		switch {
		case isIdentStart(c):
			for j < len(text) && (isIdentStart(text[j]) || isDigit(text[j])) {
				j++
			}
			stmt.Content = append(stmt.Content, parser.RawItem{Tree: parser.Leaf("identifier", text[i:j], pos)})
		case isDigit(c):
			for j < len(text) && isDigit(text[j]) {
				j++
			}
			stmt.Content = append(stmt.Content, parser.RawItem{Tree: parser.Leaf("number", text[i:j], pos)})
		case c == '\'' || c == '"':
			for j < len(text) && text[j] != c {
				j++
			}
			if j < len(text) {
				j++
			}
			stmt.Content = append(stmt.Content, parser.RawItem{Tree: parser.Leaf("string", text[i:j], pos)})
		case c == ' ' || c == '\t':
			for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
				j++
			}
			stmt.Content = append(stmt.Content, parser.RawItem{Token: text[i:j]})
		default:
			stmt.Content = append(stmt.Content, parser.RawItem{Token: text[i:j]})
		}
		i = j
	}
	return stmt
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// GatedParser holds each parse until the test releases its source text,
// so tests control the order in which responses arrive.
//
// Thread-safety: all methods are safe for concurrent use.
type GatedParser struct {
	inner   parser.Parser
	mu      sync.Mutex
	gates   map[string]chan struct{}
	started chan string
}

// NewGatedParser wraps inner. A nil inner uses LineParser.
func NewGatedParser(inner parser.Parser) *GatedParser {
	if inner == nil {
		inner = LineParser{}
	}
	return &GatedParser{
		inner:   inner,
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 64),
	}
}

// Started receives each source text as its parse begins waiting.
func (g *GatedParser) Started() <-chan string {
	return g.started
}

// Release lets parses of source proceed, including later ones.
func (g *GatedParser) Release(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gate := g.gate(source)
	select {
	case <-gate:
	default:
		close(gate)
	}
}

// Parse implements parser.Parser.
func (g *GatedParser) Parse(ctx context.Context, source string) (*parser.RawTree, error) {
	g.mu.Lock()
	gate := g.gate(source)
	g.mu.Unlock()

	select {
	case g.started <- source:
	default:
	}
	select {
	case <-gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.Parse(ctx, source)
}

func (g *GatedParser) gate(source string) chan struct{} {
	gate, ok := g.gates[source]
	if !ok {
		gate = make(chan struct{})
		g.gates[source] = gate
	}
	return gate
}

// CountingParser records how many parses were issued.
type CountingParser struct {
	inner parser.Parser
	mu    sync.Mutex
	calls []string
}

// NewCountingParser wraps inner. A nil inner uses LineParser.
func NewCountingParser(inner parser.Parser) *CountingParser {
	if inner == nil {
		inner = LineParser{}
	}
	return &CountingParser{inner: inner}
}

// Parse implements parser.Parser.
func (c *CountingParser) Parse(ctx context.Context, source string) (*parser.RawTree, error) {
	c.mu.Lock()
	c.calls = append(c.calls, source)
	c.mu.Unlock()
	return c.inner.Parse(ctx, source)
}

// Calls returns the sources parsed so far.
func (c *CountingParser) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}
