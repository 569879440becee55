package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/match"
	"github.com/roach88/verdant/internal/parser"
	"github.com/roach88/verdant/internal/stage"
)

// DefaultBlobThreshold is the output string length, in bytes, above which
// values are stored as blobs instead of inline in the snapshot.
const DefaultBlobThreshold = 65536

// DefaultNotebookKey names the notebook when none is configured.
const DefaultNotebookKey = "notebook"

// ErrStopped is returned by Submit once the engine no longer accepts events.
var ErrStopped = errors.New("engine stopped")

// Engine is the single-writer checkpoint engine.
//
// The engine processes notebook events in FIFO order. Each structural or
// run event opens a checkpoint, stages the artifacts it touches, and
// commits the ones that really changed. Parses requested by Edit events
// run on their own goroutines and come back through the queue.
//
// Thread-safety model:
//   - Enqueue(), Submit(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - accessors (Store, Checkpoints, Cells, CellText): only while Run is
//     idle, e.g. after Submit returned
type Engine struct {
	key      string
	persist  Persistence
	parser   parser.Parser
	store    *history.Store
	stager   *stage.Stager
	resolver *match.Resolver
	clock    *Clock
	queue    *eventQueue
	logger   *slog.Logger
	now      func() int64
	sessions SessionGenerator
	session  string

	matchOpts     match.Options
	blobThreshold int
	parseHook     func(ParseNotice)

	checkpoints []ir.Checkpoint
	notebook    ir.Ref
	loaded      bool
	// live holds text from Edit events not yet committed by Run or Save.
	live map[ir.Ref]string

	// inflight counts parses whose response has not been handled yet, and
	// settlers are Settle barriers parked until it drops to zero. Both are
	// owned by the Run goroutine.
	inflight int
	settlers []chan Outcome

	blobs sync.WaitGroup
	// stored names blobs flush already wrote in this session.
	stored map[string]bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTimestamps sets the checkpoint timestamp source, in milliseconds.
func WithTimestamps(now func() int64) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSessionGenerator sets the session id source.
func WithSessionGenerator(g SessionGenerator) EngineOption {
	return func(e *Engine) {
		e.sessions = g
	}
}

// WithBlobThreshold sets the inline limit for output strings; <= 0
// disables blobs.
func WithBlobThreshold(n int) EngineOption {
	return func(e *Engine) {
		e.blobThreshold = n
	}
}

// WithMatchOptions tunes the tree matcher.
func WithMatchOptions(o match.Options) EngineOption {
	return func(e *Engine) {
		e.matchOpts = o
	}
}

// WithNotebookKey names the notebook in persistence.
func WithNotebookKey(key string) EngineOption {
	return func(e *Engine) {
		e.key = key
	}
}

// WithParseHook installs fn to observe every handled parse response. fn
// runs on the Run goroutine.
func WithParseHook(fn func(ParseNotice)) EngineOption {
	return func(e *Engine) {
		e.parseHook = fn
	}
}

// New creates an in-memory Engine with an empty history.
func New(p parser.Parser, opts ...EngineOption) *Engine {
	e := &Engine{
		key:           DefaultNotebookKey,
		parser:        p,
		clock:         NewClock(),
		queue:         newEventQueue(),
		logger:        slog.Default(),
		now:           func() int64 { return time.Now().UnixMilli() },
		sessions:      UUIDv7Generator{},
		matchOpts:     match.DefaultOptions(),
		blobThreshold: DefaultBlobThreshold,
		live:          make(map[ir.Ref]string),
		stored:        make(map[string]bool),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.session = e.sessions.Generate()
	e.setStore(history.New())
	return e
}

// Open creates an Engine backed by persist, restoring the last saved
// snapshot and checkpoint log of the notebook.
func Open(ctx context.Context, persist Persistence, p parser.Parser, opts ...EngineOption) (*Engine, error) {
	e := New(p, opts...)
	e.persist = persist

	data, ok, err := persist.LoadSnapshot(ctx, e.key)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", e.key, err)
	}
	if ok {
		st, err := history.Decode(ctx, data, persist, e.logger)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", e.key, err)
		}
		e.setStore(st)
	}

	cps, err := persist.Checkpoints(ctx, e.key)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints %s: %w", e.key, err)
	}
	e.checkpoints = cps
	e.clock = NewClockAt(int64(e.nextCheckpointID()))

	e.logger.Info("history restored",
		"notebook", e.key,
		"checkpoints", len(cps),
		"cells", e.store.Count(ir.KindCodeCell)+e.store.Count(ir.KindMarkdown)+e.store.Count(ir.KindRawCell),
	)
	return e, nil
}

func (e *Engine) setStore(st *history.Store) {
	e.store = st
	e.stager = stage.New(st)
	e.resolver = match.NewResolver(e.stager, e.matchOpts)
	e.loaded = st.Count(ir.KindNotebook) > 0
	e.notebook = ir.Ref{Kind: ir.KindNotebook, ID: 0}
}

// nextCheckpointID resumes after both the log and any version the
// snapshot holds, so ids stay unique when the log was cut short.
func (e *Engine) nextCheckpointID() int {
	next := 0
	if n := len(e.checkpoints); n > 0 {
		next = e.checkpoints[n-1].ID + 1
	}
	for _, kind := range ir.Kinds {
		for _, h := range e.store.Histories(kind) {
			for _, v := range h.Versions() {
				if c := v.Base().Created + 1; c > next {
					next = c
				}
			}
		}
	}
	return next
}

// Enqueue submits an event for processing by the Run loop without waiting.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	ev.done = nil
	return e.queue.Enqueue(ev)
}

// Submit enqueues ev and waits until the Run loop has handled it.
func (e *Engine) Submit(ctx context.Context, ev Event) (Outcome, error) {
	ev.done = make(chan Outcome, 1)
	if !e.queue.Enqueue(ev) {
		return Outcome{}, ErrStopped
	}
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case out := <-ev.done:
		return out, nil
	}
}

// Settle waits until every parse issued so far has been handled by the
// Run loop.
func (e *Engine) Settle(ctx context.Context) error {
	out, err := e.Submit(ctx, Event{Type: eventSync})
	if err != nil {
		return err
	}
	return out.Err
}

// Flush waits for pending blob writes and saves the snapshot. Call it only
// while Run is idle or stopped.
func (e *Engine) Flush(ctx context.Context) error {
	return e.flush(ctx)
}

// QueueLen returns the number of events waiting to be processed.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled, Stop() is called, or a lookup in the
// history store fails.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: Invalid events and parse failures are logged with full
// event context and processing continues. A lookup failure means the
// history is inconsistent; Run stops and returns it.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "notebook", e.key, "session", e.session)

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if event.Type == eventSync && e.inflight > 0 && event.done != nil {
				e.settlers = append(e.settlers, event.done)
				continue
			}
			out := e.processEvent(ctx, event)
			if event.done != nil {
				event.done <- out
			}
			if out.Err != nil {
				e.logEventError(event, out.Err)
				if IsLookupFailure(out.Err) {
					e.drain()
					return out.Err
				}
			}
			e.releaseSettlers()
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.drain()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed,
			// which will cause this case to fire immediately.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				e.drain()
				return nil
			}
		}
	}
}

// drain answers every queued waiter and parked Settle after the loop
// stopped.
func (e *Engine) drain() {
	for _, ev := range e.queue.Drain() {
		if ev.done != nil {
			ev.done <- Outcome{Err: ErrStopped}
		}
	}
	for _, done := range e.settlers {
		done <- Outcome{Err: ErrStopped}
	}
	e.settlers = nil
}

// releaseSettlers answers parked Settle barriers once no parse is in flight.
func (e *Engine) releaseSettlers() {
	if e.inflight > 0 || len(e.settlers) == 0 {
		return
	}
	for _, done := range e.settlers {
		done <- Outcome{}
	}
	e.settlers = nil
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which will cause Run() to return once drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

// processEvent routes an event to the appropriate handler.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processEvent(ctx context.Context, ev Event) Outcome {
	e.logger.Debug("processing event",
		"type", ev.Type,
		"cell", ev.Cell,
		"queue_len", e.queue.Len(),
	)

	var out Outcome
	var err error
	switch ev.Type {
	case EventLoad:
		out, err = e.handleLoad(ctx, ev)
	case EventSave:
		out, err = e.handleSave(ctx)
	case EventRun:
		out, err = e.handleRun(ctx, ev)
	case EventAddCell:
		out, err = e.handleAddCell(ctx, ev)
	case EventDeleteCell:
		out, err = e.handleDeleteCell(ctx, ev)
	case EventMoveCell:
		out, err = e.handleMoveCell(ctx, ev)
	case EventSwitchCellType:
		out, err = e.handleSwitchCellType(ctx, ev)
	case EventEdit:
		err = e.handleEdit(ctx, ev)
	case EventParsed:
		err = e.handleParsed(ev)
	case eventSync:
	default:
		err = invalidEvent(ev.Type, "", "unknown event type")
	}
	out.Err = classify(ev.Type, err)
	return out
}

// logEventError logs an event failure with its context.
func (e *Engine) logEventError(ev Event, err error) {
	attrs := []any{
		"error", err,
		"event_type", ev.Type.String(),
	}
	if !ev.Cell.IsZero() {
		attrs = append(attrs, "cell", ev.Cell.String())
	}
	switch ev.Type {
	case EventAddCell, EventMoveCell:
		attrs = append(attrs, "index", ev.Index)
	case EventLoad:
		attrs = append(attrs, "cells", len(ev.Cells))
	}
	if IsLookupFailure(err) {
		e.logger.Error("history lookup failed, stopping", attrs...)
		return
	}
	e.logger.Error("event processing failed", attrs...)
}

// Session returns the id stamped on checkpoints written by this engine.
func (e *Engine) Session() string {
	return e.session
}

// Key returns the notebook key.
func (e *Engine) Key() string {
	return e.key
}

// Store returns the history store.
func (e *Engine) Store() *history.Store {
	return e.store
}

// Checkpoints returns a copy of the checkpoint log.
func (e *Engine) Checkpoints() []ir.Checkpoint {
	return append([]ir.Checkpoint(nil), e.checkpoints...)
}

// Notebook returns the notebook ref and whether it exists yet.
func (e *Engine) Notebook() (ir.Ref, bool) {
	return e.notebook, e.loaded
}

// Cells returns the cells of the latest notebook, pending edits included.
func (e *Engine) Cells() ([]ir.Ref, error) {
	if !e.loaded {
		return nil, nil
	}
	n, err := e.store.Latest(e.notebook)
	if err != nil {
		return nil, err
	}
	nb, ok := n.(*ir.Notebook)
	if !ok {
		return nil, fmt.Errorf("%s is not a notebook", e.notebook)
	}
	refs := make([]ir.Ref, len(nb.Cells))
	for i, c := range nb.Cells {
		refs[i] = c.Ref()
	}
	return refs, nil
}

// CellText returns the current text of cell: live editor text if an edit
// is outstanding, else the rendered latest version.
func (e *Engine) CellText(cell ir.Ref) (string, error) {
	if text, ok := e.live[cell]; ok {
		return text, nil
	}
	n, err := e.store.Latest(cell)
	if err != nil {
		return "", err
	}
	return match.RenderNode(e.store, n)
}
