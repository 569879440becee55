package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/verdant/internal/engine"
	"github.com/roach88/verdant/internal/harness"
	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/parser"
	"github.com/roach88/verdant/internal/store"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	Save bool

	// Parser overrides the configured language parser (for testing).
	Parser parser.Parser
	// SessionGenerator overrides the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionGenerator engine.SessionGenerator
}

// PlayResult reports one play invocation.
type PlayResult struct {
	Notebook string               `json:"notebook"`
	Session  string               `json:"session"`
	Steps    []harness.StepResult `json:"steps"`
	Recorded []ir.Checkpoint      `json:"recorded"`
	Errors   []string             `json:"errors,omitempty"`
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play <script.yaml>",
		Short: "Apply scripted notebook events to a stored history",
		Long: `Restore the configured notebook's history, submit every step of a
script (or scenario) file as a notebook event, and save the result.

Exit codes:
  0 - All steps applied as expected
  1 - A step failed or an expectation did not hold
  2 - Command error (bad config, unreadable script or database)

Examples:
  verdant play session.yaml
  verdant play session.yaml --db ./history.db --notebook demo.ipynb
  verdant play session.yaml --save --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Save, "save", false, "submit a save event after the script")

	return cmd
}

func runPlay(opts *PlayOptions, path string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	script, err := harness.LoadScript(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load script", err)
	}

	p := opts.Parser
	if p == nil {
		ts, err := parser.NewTreeSitter(cfg.Language)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create parser", err)
		}
		p = ts
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	logger := opts.logger(cmd.ErrOrStderr(), cfg)
	engOpts := engineOptions(cfg, logger)
	if opts.SessionGenerator != nil {
		engOpts = append(engOpts, engine.WithSessionGenerator(opts.SessionGenerator))
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.Open(ctx, st, p, engOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to restore history", err)
	}
	before := len(eng.Checkpoints())

	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.Run(ctx)
	}()

	steps := script.Steps
	if opts.Save {
		steps = append(steps, harness.Step{Event: "save"})
	}
	result, playErr := harness.Play(ctx, eng, steps, harness.WithLogger(logger))

	eng.Stop()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	if playErr != nil {
		return WrapExitError(ExitFailure, "play interrupted", playErr)
	}
	if err := eng.Flush(context.WithoutCancel(ctx)); err != nil {
		return WrapExitError(ExitFailure, "failed to save history", err)
	}

	report := PlayResult{
		Notebook: cfg.Notebook,
		Session:  eng.Session(),
		Steps:    result.Steps,
		Recorded: result.Checkpoints[before:],
		Errors:   result.Errors,
	}
	var failure *CLIError
	if !result.Pass {
		failure = &CLIError{
			Code:    "E_PLAY_FAILED",
			Message: fmt.Sprintf("%d step(s) did not go as expected", len(result.Errors)),
		}
	}
	f := newFormatter(opts.RootOptions, cmd)
	if err := f.Emit(report, failure, func(w io.Writer) { writePlayText(w, report) }); err != nil {
		return err
	}
	if failure != nil {
		return NewExitError(ExitFailure, failure.Message)
	}
	return nil
}

func writePlayText(w io.Writer, r PlayResult) {
	fmt.Fprintf(w, "Notebook %s (session %s)\n", r.Notebook, r.Session)
	for i, s := range r.Steps {
		switch {
		case s.Error != "":
			fmt.Fprintf(w, "✗ %2d %-16s %s\n", i, s.Event, s.Error)
		case s.Checkpoint != nil:
			fmt.Fprintf(w, "✓ %2d %-16s checkpoint %d\n", i, s.Event, *s.Checkpoint)
		default:
			fmt.Fprintf(w, "· %2d %-16s no change\n", i, s.Event)
		}
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	fmt.Fprintf(w, "\n%d steps, %d checkpoints recorded\n", len(r.Steps), len(r.Recorded))
}
