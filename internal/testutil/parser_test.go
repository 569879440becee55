package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/parser"
)

func TestLineParser_RenderRoundTrip(t *testing.T) {
	sources := []string{
		"",
		"x = 1",
		"x = 1\n\ny = 'a b'\n",
		"  if x:\n    print(x)  \n",
	}
	for _, src := range sources {
		raw, err := LineParser{}.Parse(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, src, raw.Render(), "%q", src)
	}
}

func TestLineParser_Structure(t *testing.T) {
	raw, err := LineParser{}.Parse(context.Background(), "x = 1\n\ny = 22\n")
	require.NoError(t, err)

	var stmts []*parser.RawTree
	for _, item := range raw.Content {
		if item.Tree != nil {
			stmts = append(stmts, item.Tree)
		}
	}
	require.Len(t, stmts, 2)
	assert.Equal(t, "statement", stmts[0].Type)
	assert.Equal(t, ir.Pos{Line: 1}, stmts[0].Start)
	assert.Equal(t, ir.Pos{Line: 3}, stmts[1].Start)

	num := stmts[1].Content[4].Tree
	require.NotNil(t, num)
	assert.Equal(t, "number", num.Type)
	assert.Equal(t, "22", *num.Literal)
	assert.Equal(t, ir.Pos{Line: 3, Col: 4}, num.Start)
	assert.Equal(t, ir.Pos{Line: 3, Col: 6}, num.End)
}

func TestLineParser_Error(t *testing.T) {
	_, err := LineParser{}.Parse(context.Background(), "x = 1\ny !! 2")
	assert.ErrorIs(t, err, ErrLineSyntax)
}

func TestGatedParser_HoldsUntilReleased(t *testing.T) {
	g := NewGatedParser(nil)

	done := make(chan *parser.RawTree, 1)
	go func() {
		raw, _ := g.Parse(context.Background(), "x = 2")
		done <- raw
	}()

	assert.Equal(t, "x = 2", <-g.Started())
	select {
	case <-done:
		t.Fatal("parse finished before release")
	case <-time.After(20 * time.Millisecond):
	}

	g.Release("x = 2")
	raw := <-done
	require.NotNil(t, raw)
	assert.Equal(t, "x = 2", raw.Render())
}

func TestGatedParser_ReleaseBeforeParse(t *testing.T) {
	g := NewGatedParser(nil)
	g.Release("y")
	g.Release("y")

	raw, err := g.Parse(context.Background(), "y")
	require.NoError(t, err)
	assert.Equal(t, "y", raw.Render())
}

func TestGatedParser_ContextCancel(t *testing.T) {
	g := NewGatedParser(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Parse(ctx, "z")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCountingParser(t *testing.T) {
	c := NewCountingParser(nil)
	_, err := c.Parse(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, c.Calls())
}
