package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/parser"
	"github.com/roach88/verdant/internal/testutil"
)

// memPersistence keeps snapshots, blobs and checkpoint logs in maps.
type memPersistence struct {
	mu          sync.Mutex
	snapshots   map[string][]byte
	blobs       map[string][]byte
	checkpoints map[string][]ir.Checkpoint
	sessions    map[string][]string
}

func newMemPersistence() *memPersistence {
	return &memPersistence{
		snapshots:   make(map[string][]byte),
		blobs:       make(map[string][]byte),
		checkpoints: make(map[string][]ir.Checkpoint),
		sessions:    make(map[string][]string),
	}
}

func (m *memPersistence) LoadSnapshot(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.snapshots[key]
	return data, ok, nil
}

func (m *memPersistence) SaveSnapshot(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[key] = slices.Clone(data)
	return nil
}

func (m *memPersistence) WriteBlob(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = slices.Clone(data)
	return nil
}

func (m *memPersistence) ReadBlob(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return data, nil
}

func (m *memPersistence) AppendCheckpoint(_ context.Context, key, session string, cp ir.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[key] = append(m.checkpoints[key], cp)
	m.sessions[key] = append(m.sessions[key], session)
	return nil
}

func (m *memPersistence) Checkpoints(_ context.Context, key string) ([]ir.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.checkpoints[key]), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(opts ...EngineOption) []EngineOption {
	base := []EngineOption{
		WithLogger(quietLogger()),
		WithTimestamps(testutil.NewDeterministicClock().Next),
		WithSessionGenerator(testutil.NewFixedSessionGenerator("test-session")),
	}
	return append(base, opts...)
}

// running starts e.Run in the background and stops it at cleanup. The
// returned channel yields Run's result.
func running(t *testing.T, e *Engine) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Run(ctx)
	}()
	t.Cleanup(func() {
		e.Stop()
		cancel()
	})
	return errCh
}

func startEngine(t *testing.T, p parser.Parser, opts ...EngineOption) *Engine {
	t.Helper()
	if p == nil {
		p = testutil.LineParser{}
	}
	e := New(p, testOptions(opts...)...)
	running(t, e)
	return e
}

func submit(t *testing.T, e *Engine, ev Event) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := e.Submit(ctx, ev)
	require.NoError(t, err)
	require.NoError(t, out.Err)
	return out
}

func load(t *testing.T, e *Engine, cells ...CellInput) []ir.Ref {
	t.Helper()
	out := submit(t, e, Event{Type: EventLoad, Cells: cells})
	require.NotNil(t, out.Checkpoint)
	refs, err := e.Cells()
	require.NoError(t, err)
	return refs
}

func code(text string, outputs ...ir.Payload) CellInput {
	return CellInput{Kind: ir.KindCodeCell, Text: text, Outputs: outputs}
}

func markdown(text string) CellInput {
	return CellInput{Kind: ir.KindMarkdown, Text: text}
}

func stream(text string) ir.Payload {
	return ir.Payload{"output_type": "stream", "name": "stdout", "text": text}
}

func cellText(t *testing.T, e *Engine, cell ir.Ref) string {
	t.Helper()
	text, err := e.CellText(cell)
	require.NoError(t, err)
	return text
}

func committed(t *testing.T, e *Engine, ref ir.Ref) ir.Node {
	t.Helper()
	n, err := e.Store().Committed(ref)
	require.NoError(t, err)
	return n
}

func outputOf(t *testing.T, e *Engine, cell ir.Ref) *ir.Output {
	t.Helper()
	cc, ok := committed(t, e, cell).(*ir.CodeCell)
	require.True(t, ok)
	out, ok := committed(t, e, cc.Output).(*ir.Output)
	require.True(t, ok)
	return out
}

func mustName(t *testing.T, s string) ir.Name {
	t.Helper()
	n, err := ir.ParseName(s)
	require.NoError(t, err)
	return n
}
