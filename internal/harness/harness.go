package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roach88/verdant/internal/engine"
	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/parser"
	"github.com/roach88/verdant/internal/store"
	"github.com/roach88/verdant/internal/testutil"
)

// DefaultSession is the session id used when a scenario names none.
const DefaultSession = "scenario-session"

// Harness drives one engine through a list of steps.
type Harness struct {
	engine *engine.Engine
	logger *slog.Logger
}

// Option configures Run and Play.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes harness and engine logs to l. Logs are discarded by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a deterministic
// clock and fixed session id. A returned error means the scenario could
// not be executed; failed expectations and assertions are reported in the
// result instead.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := newOptions(opts)

	p, err := scenarioParser(scenario.Language)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	session := scenario.Session
	if session == "" {
		session = DefaultSession
	}
	clock := testutil.NewDeterministicClock()
	engineOpts := []engine.EngineOption{
		engine.WithLogger(o.logger),
		engine.WithTimestamps(clock.Next),
		engine.WithSessionGenerator(testutil.NewFixedSessionGenerator(session)),
		engine.WithNotebookKey(scenario.Name),
	}
	if scenario.BlobThreshold > 0 {
		engineOpts = append(engineOpts, engine.WithBlobThreshold(scenario.BlobThreshold))
	}
	eng, err := engine.Open(ctx, st, p, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.Run(runCtx)
	}()
	stop := func() error {
		defer cancel()
		eng.Stop()
		return <-runErr
	}

	h := &Harness{engine: eng, logger: o.logger}
	result := NewResult()
	if err := h.play(ctx, scenario.Steps, result); err != nil {
		if errors.Is(err, engine.ErrStopped) {
			return nil, errors.Join(err, stop())
		}
		stop()
		return nil, err
	}

	actx := &AssertionContext{Engine: eng, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	if err := stop(); err != nil {
		return nil, fmt.Errorf("engine stopped: %w", err)
	}
	if err := checkLog(ctx, st, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Play submits steps to an engine whose Run loop is already running and
// returns their outcomes. Result.Checkpoints holds the engine's whole log,
// including checkpoints restored from earlier sessions.
func Play(ctx context.Context, eng *engine.Engine, steps []Step, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	h := &Harness{engine: eng, logger: o.logger}
	result := NewResult()
	if err := h.play(ctx, steps, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (h *Harness) play(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Event, err)
		}
	}
	if err := h.engine.Settle(ctx); err != nil {
		return fmt.Errorf("failed to settle parses: %w", err)
	}
	result.Checkpoints = h.engine.Checkpoints()
	return nil
}

func scenarioParser(language string) (parser.Parser, error) {
	if language == "" {
		return testutil.LineParser{}, nil
	}
	ts, err := parser.NewTreeSitter(language)
	if err != nil {
		return nil, fmt.Errorf("failed to create parser: %w", err)
	}
	return ts, nil
}

// executeStep submits one step and records its outcome. Outstanding parses
// are settled first so cell indices resolve against a quiescent store.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	if err := h.engine.Settle(ctx); err != nil {
		return err
	}
	ev, err := h.buildEvent(step)
	if err != nil {
		return err
	}
	out, err := h.engine.Submit(ctx, ev)
	if err != nil {
		return err
	}

	sr := StepResult{Event: step.Event}
	if out.Checkpoint != nil {
		id := out.Checkpoint.ID
		sr.Checkpoint = &id
	}
	if out.Err != nil {
		sr.Error = errorCode(out.Err)
	}
	result.AddStep(sr)
	checkExpect(i, step, out, sr, result)

	h.logger.Debug("scenario step",
		"step", i,
		"event", step.Event,
		"checkpoint", sr.Checkpoint != nil,
		"error", sr.Error,
	)
	return nil
}

func checkExpect(i int, step Step, out engine.Outcome, sr StepResult, result *Result) {
	prefix := fmt.Sprintf("step %d (%s)", i, step.Event)
	exp := step.Expect
	switch {
	case exp != nil && exp.Error != "":
		if sr.Error != exp.Error {
			result.AddError(fmt.Sprintf("%s: expected error %s, got %q", prefix, exp.Error, sr.Error))
		}
	case out.Err != nil:
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, out.Err))
	}
	if exp != nil && exp.Checkpoint != nil && *exp.Checkpoint != (out.Checkpoint != nil) {
		if *exp.Checkpoint {
			result.AddError(fmt.Sprintf("%s: expected a checkpoint, none recorded", prefix))
		} else {
			result.AddError(fmt.Sprintf("%s: expected no checkpoint, got %d", prefix, out.Checkpoint.ID))
		}
	}
}

func errorCode(err error) string {
	var rtErr *engine.RuntimeError
	if errors.As(err, &rtErr) {
		return string(rtErr.Code)
	}
	return err.Error()
}

func (h *Harness) buildEvent(step Step) (engine.Event, error) {
	typ, err := engine.ParseEventType(step.Event)
	if err != nil {
		return engine.Event{}, err
	}
	ev := engine.Event{Type: typ, Index: step.Index}

	if step.Cell != nil {
		if ev.Cell, err = h.cellAt(*step.Cell); err != nil {
			return engine.Event{}, err
		}
	}
	if step.Kind != "" {
		if ev.Kind, err = parseKind(step.Kind); err != nil {
			return engine.Event{}, err
		}
	}
	switch {
	case step.Text != nil:
		ev.Text = *step.Text
	case typ == engine.EventRun:
		if ev.Text, err = h.engine.CellText(ev.Cell); err != nil {
			return engine.Event{}, err
		}
	}
	ev.Outputs = payloads(step.Outputs)

	for _, c := range step.Cells {
		kind := ir.KindCodeCell
		if c.Kind != "" {
			if kind, err = parseKind(c.Kind); err != nil {
				return engine.Event{}, err
			}
		}
		ev.Cells = append(ev.Cells, engine.CellInput{Kind: kind, Text: c.Text, Outputs: payloads(c.Outputs)})
	}
	return ev, nil
}

func (h *Harness) cellAt(idx int) (ir.Ref, error) {
	return cellAt(h.engine, idx)
}

func cellAt(eng *engine.Engine, idx int) (ir.Ref, error) {
	cells, err := eng.Cells()
	if err != nil {
		return ir.Ref{}, err
	}
	if idx < 0 || idx >= len(cells) {
		return ir.Ref{}, fmt.Errorf("cell index %d out of range [0, %d)", idx, len(cells))
	}
	return cells[idx], nil
}

func payloads(raw []map[string]any) []ir.Payload {
	if raw == nil {
		return nil
	}
	out := make([]ir.Payload, len(raw))
	for i, p := range raw {
		out[i] = ir.Payload(p)
	}
	return out
}

// checkLog compares the durable checkpoint log with the engine's own.
func checkLog(ctx context.Context, st *store.Store, key string, result *Result) error {
	persisted, err := st.Checkpoints(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint log: %w", err)
	}
	if diff := cmp.Diff(result.Checkpoints, persisted, cmpopts.EquateEmpty()); diff != "" {
		result.AddError(fmt.Sprintf("checkpoint log diverges from engine (-engine +store):\n%s", diff))
	}
	return nil
}
