package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Session string
	Limit   int
}

// LogEntry is one checkpoint of the log output.
type LogEntry struct {
	ID              int             `json:"id"`
	Type            string          `json:"type"`
	Session         string          `json:"session"`
	Timestamp       int64           `json:"timestamp"`
	NotebookVersion int             `json:"notebook_version"`
	Targets         []ir.CellChange `json:"targets"`
}

// LogResult holds the log output.
type LogResult struct {
	Notebook    string     `json:"notebook"`
	Checkpoints []LogEntry `json:"checkpoints"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the checkpoint log of a notebook",
		Long: `List the checkpoints recorded for the configured notebook, newest
last, with the cells each one added, changed, moved or removed.

Examples:
  verdant log
  verdant log --notebook demo.ipynb --limit 10
  verdant log --session 0192f3c4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "only checkpoints written by this session")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the last N checkpoints")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	records, err := st.CheckpointRecords(context.Background(), cfg.Notebook)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read checkpoint log", err)
	}

	result := LogResult{Notebook: cfg.Notebook, Checkpoints: []LogEntry{}}
	for _, rec := range records {
		if opts.Session != "" && rec.Session != opts.Session {
			continue
		}
		cp := rec.Checkpoint
		result.Checkpoints = append(result.Checkpoints, LogEntry{
			ID:              cp.ID,
			Type:            string(cp.Type),
			Session:         rec.Session,
			Timestamp:       cp.Timestamp,
			NotebookVersion: cp.NotebookVersion,
			Targets:         cp.TargetCells,
		})
	}
	if opts.Limit > 0 && len(result.Checkpoints) > opts.Limit {
		result.Checkpoints = result.Checkpoints[len(result.Checkpoints)-opts.Limit:]
	}

	f := newFormatter(opts.RootOptions, cmd)
	return f.Emit(result, nil, func(w io.Writer) { writeLogText(w, result) })
}

func writeLogText(w io.Writer, r LogResult) {
	if len(r.Checkpoints) == 0 {
		fmt.Fprintf(w, "No checkpoints for notebook %s\n", r.Notebook)
		return
	}
	for _, e := range r.Checkpoints {
		fmt.Fprintf(w, "checkpoint %d  %s  notebook v%d  %s  session %s\n",
			e.ID, e.Type, e.NotebookVersion, formatTimestamp(e.Timestamp), e.Session)
		for _, t := range e.Targets {
			fmt.Fprintf(w, "  %-12s %s", t.ChangeType, t.Cell)
			if t.Index != nil {
				fmt.Fprintf(w, " @%d", *t.Index)
			}
			if t.Output != nil {
				fmt.Fprintf(w, " output %s", *t.Output)
			}
			fmt.Fprintln(w)
		}
	}
}

// formatTimestamp renders a millisecond timestamp in UTC.
func formatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
