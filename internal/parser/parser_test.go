package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/verdant/internal/ir"
)

func TestFailSafe(t *testing.T) {
	raw := FailSafe("a = (\nb")

	require.True(t, raw.IsLeaf())
	assert.Equal(t, FailSafeType, raw.Type)
	assert.Equal(t, "a = (\nb", raw.Render())
	assert.Equal(t, ir.Pos{Line: 1}, raw.Start)
	assert.Equal(t, ir.Pos{Line: 2, Col: 1}, raw.End)
}

func TestRenderConcatenatesContent(t *testing.T) {
	raw := &RawTree{
		Type: "module",
		Content: []RawItem{
			{Tree: Leaf("identifier", "x", ir.Pos{Line: 1})},
			{Token: " = "},
			{Tree: Leaf("number", "1", ir.Pos{Line: 1, Col: 4})},
		},
	}
	assert.Equal(t, "x = 1", raw.Render())
}

func TestFuncAdapter(t *testing.T) {
	boom := errors.New("boom")
	var p Parser = Func(func(context.Context, string) (*RawTree, error) { return nil, boom })

	_, err := p.Parse(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestTreeSitterRenderRoundTrip(t *testing.T) {
	tests := []struct {
		lang   string
		source string
	}{
		{"python", "x = 1"},
		{"python", "\n\nimport os\n\ndef f(a, b):\n    return a + b  # sum\n\nprint(f(1, 2))\n"},
		{"python", "s = 'it''s'\nt = \"\"\"doc\n\"\"\"\n"},
		{"javascript", "const x = [1, 2, 3].map(v => v * 2);\n"},
		{"javascript", "function f() {\n  return `a${b}c`;\n}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			p, err := NewTreeSitter(tt.lang)
			require.NoError(t, err)

			raw, err := p.Parse(context.Background(), tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.source, raw.Render())
			assert.Equal(t, ir.Pos{Line: 1}, raw.Start)
			assert.Equal(t, ir.Pos{Line: 1}.Advance(tt.source), raw.End)
		})
	}
}

func TestTreeSitterLeaves(t *testing.T) {
	p, err := NewTreeSitter("python")
	require.NoError(t, err)

	raw, err := p.Parse(context.Background(), "x = 1\ny = 2\n")
	require.NoError(t, err)

	var literals []string
	var walk func(*RawTree)
	walk = func(n *RawTree) {
		if n.IsLeaf() {
			literals = append(literals, *n.Literal)
			return
		}
		for _, item := range n.Content {
			if item.Tree != nil {
				walk(item.Tree)
			}
		}
	}
	walk(raw)
	assert.Equal(t, []string{"x", "1", "y", "2"}, literals)

	require.NotEmpty(t, raw.Content)
	second := raw.Content[len(raw.Content)-2]
	require.NotNil(t, second.Tree)
	assert.Equal(t, 2, second.Tree.Start.Line)
}

func TestTreeSitterSyntaxError(t *testing.T) {
	p, err := NewTreeSitter("python")
	require.NoError(t, err)

	_, err = p.Parse(context.Background(), "def (:\n")
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestNewTreeSitterUnsupported(t *testing.T) {
	_, err := NewTreeSitter("cobol")
	assert.Error(t, err)
}

func TestTreeSitterConcurrentParses(t *testing.T) {
	p, err := NewTreeSitter("python")
	require.NoError(t, err)

	sources := []string{"a = 1\n", "def f(x):\n    return x\n", "print('hi')\n", "for i in range(3):\n    pass\n"}
	var wg sync.WaitGroup
	errs := make(chan error, len(sources)*8)
	for i := 0; i < 8; i++ {
		for _, src := range sources {
			wg.Add(1)
			go func() {
				defer wg.Done()
				raw, err := p.Parse(context.Background(), src)
				if err != nil {
					errs <- err
					return
				}
				if got := raw.Render(); got != src {
					errs <- fmt.Errorf("render %q, want %q", got, src)
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
