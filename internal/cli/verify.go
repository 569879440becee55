package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	All bool
}

// NotebookCheck is the verification result of one notebook.
type NotebookCheck struct {
	Notebook    string   `json:"notebook"`
	Checkpoints int      `json:"checkpoints"`
	Artifacts   int      `json:"artifacts"`
	Problems    []string `json:"problems,omitempty"`
	OK          bool     `json:"ok"`
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	Notebooks []NotebookCheck `json:"notebooks"`
	AllOK     bool            `json:"all_ok"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check stored histories for consistency",
		Long: `Verify the saved snapshot and checkpoint log of a notebook.

Checks that the snapshot matches its digest and decodes, that every history
is gapless with committed parents and no leftover pending versions, and that
the checkpoint log is ordered and names only committed versions.

Exit codes:
  0 - All checked notebooks are consistent
  1 - Problems were found
  2 - Command error (database not found, etc.)

Examples:
  verdant verify
  verdant verify --all
  verdant verify --notebook demo.ipynb --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "verify every notebook with a saved snapshot")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()
	ctx := context.Background()

	notebooks := []string{cfg.Notebook}
	if opts.All {
		infos, err := st.Snapshots(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list snapshots", err)
		}
		notebooks = notebooks[:0]
		for _, info := range infos {
			notebooks = append(notebooks, info.Notebook)
		}
	}

	result := VerifyResult{Notebooks: []NotebookCheck{}, AllOK: true}
	for _, nb := range notebooks {
		check, err := verifyNotebook(ctx, st, nb)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to verify "+nb, err)
		}
		result.Notebooks = append(result.Notebooks, check)
		if !check.OK {
			result.AllOK = false
		}
	}

	var failure *CLIError
	if !result.AllOK {
		failure = &CLIError{Code: "E_VERIFY_FAILED", Message: "history is inconsistent"}
	}
	f := newFormatter(opts.RootOptions, cmd)
	if err := f.Emit(result, failure, func(w io.Writer) { writeVerifyText(w, result) }); err != nil {
		return err
	}
	if failure != nil {
		return NewExitError(ExitFailure, failure.Message)
	}
	return nil
}

// verifyNotebook reports problems in the snapshot and log of notebook. The
// returned error is reserved for database failures.
func verifyNotebook(ctx context.Context, st *store.Store, notebook string) (NotebookCheck, error) {
	check := NotebookCheck{Notebook: notebook}
	problem := func(format string, args ...any) {
		check.Problems = append(check.Problems, fmt.Sprintf(format, args...))
	}

	cps, err := st.Checkpoints(ctx, notebook)
	if err != nil {
		return check, err
	}
	check.Checkpoints = len(cps)

	hs, err := loadHistory(ctx, st, notebook)
	switch {
	case errors.Is(err, errNoSnapshot):
		if len(cps) > 0 {
			problem("%d checkpoints logged but no snapshot saved", len(cps))
		}
		hs = nil
	case err != nil:
		problem("snapshot: %v", err)
		hs = nil
	}

	if hs != nil {
		for _, kind := range ir.Kinds {
			check.Artifacts += hs.Count(kind)
		}
		if err := hs.Verify(); err != nil {
			for _, line := range strings.Split(err.Error(), "\n") {
				problem("%s", line)
			}
		}
	}
	verifyLog(cps, hs, problem)

	check.OK = len(check.Problems) == 0
	return check, nil
}

// verifyLog checks ordering of the checkpoint log and, when a snapshot is
// available, that every target names a committed version.
func verifyLog(cps []ir.Checkpoint, hs *history.Store, problem func(string, ...any)) {
	for i, cp := range cps {
		if i > 0 {
			prev := cps[i-1]
			if cp.ID <= prev.ID {
				problem("checkpoint %d: id not after %d", cp.ID, prev.ID)
			}
			if cp.NotebookVersion < prev.NotebookVersion {
				problem("checkpoint %d: notebook version %d before %d", cp.ID, cp.NotebookVersion, prev.NotebookVersion)
			}
		}
		if hs == nil {
			continue
		}
		for _, t := range cp.TargetCells {
			if _, err := hs.Get(t.Cell); err != nil {
				problem("checkpoint %d: target %s: %v", cp.ID, t.Cell, err)
			}
			if t.Output != nil {
				if _, err := hs.Get(*t.Output); err != nil {
					problem("checkpoint %d: output %s: %v", cp.ID, *t.Output, err)
				}
			}
		}
	}
}

func writeVerifyText(w io.Writer, r VerifyResult) {
	if len(r.Notebooks) == 0 {
		fmt.Fprintln(w, "No notebooks to verify.")
		return
	}
	for _, nb := range r.Notebooks {
		if nb.OK {
			fmt.Fprintf(w, "✓ %s (%d checkpoints, %d artifacts)\n", nb.Notebook, nb.Checkpoints, nb.Artifacts)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", nb.Notebook)
		for _, p := range nb.Problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}
