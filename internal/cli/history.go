package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/verdant/internal/history"
	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/match"
	"github.com/roach88/verdant/internal/store"
)

// errNoSnapshot is returned when a notebook has never been saved.
var errNoSnapshot = errors.New("no saved history")

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Kind string
}

// ArtifactSummary is one history in the overview listing.
type ArtifactSummary struct {
	Artifact string `json:"artifact"`
	Versions int    `json:"versions"`
	Origin   string `json:"origin,omitempty"`
}

// VersionEntry is one committed version of an artifact.
type VersionEntry struct {
	Name       string       `json:"name"`
	Checkpoint int          `json:"checkpoint"`
	Parent     string       `json:"parent,omitempty"`
	Text       *string      `json:"text,omitempty"`
	Cells      []string     `json:"cells,omitempty"`
	Outputs    []ir.Payload `json:"outputs,omitempty"`
}

// HistoryResult holds the history output: an overview, or the versions of
// one artifact.
type HistoryResult struct {
	Notebook  string            `json:"notebook"`
	Artifacts []ArtifactSummary `json:"artifacts,omitempty"`
	Artifact  string            `json:"artifact,omitempty"`
	Versions  []VersionEntry    `json:"versions,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [artifact]",
		Short: "Show artifact histories from the saved snapshot",
		Long: `Without an argument, list every artifact history of the configured
notebook with its version count. With an artifact such as CodeCell.0, list
each committed version with the checkpoint that created it and its content.

Examples:
  verdant history
  verdant history --kind CodeCell
  verdant history CodeCell.0 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact := ""
			if len(args) == 1 {
				artifact = args[0]
			}
			return runHistory(opts, artifact, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only list histories of this kind")

	return cmd
}

func runHistory(opts *HistoryOptions, artifact string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	hs, err := loadHistory(context.Background(), st, cfg.Notebook)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load history", err)
	}

	result := HistoryResult{Notebook: cfg.Notebook}
	if artifact == "" {
		result.Artifacts, err = summarize(hs, opts.Kind)
	} else {
		result.Artifact = artifact
		result.Versions, err = versionsOf(hs, artifact)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	f := newFormatter(opts.RootOptions, cmd)
	return f.Emit(result, nil, func(w io.Writer) { writeHistoryText(w, result) })
}

// loadHistory decodes the saved snapshot of notebook, reading offloaded
// payloads from st.
func loadHistory(ctx context.Context, st *store.Store, notebook string) (*history.Store, error) {
	data, ok, err := st.LoadSnapshot(ctx, notebook)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("notebook %s: %w", notebook, errNoSnapshot)
	}
	return history.Decode(ctx, data, st, slog.Default())
}

func summarize(hs *history.Store, kindFilter string) ([]ArtifactSummary, error) {
	if kindFilter != "" && !ir.Kind(kindFilter).Valid() {
		return nil, fmt.Errorf("unknown kind %q", kindFilter)
	}
	var out []ArtifactSummary
	for _, kind := range ir.Kinds {
		if kindFilter != "" && kind != ir.Kind(kindFilter) {
			continue
		}
		for _, h := range hs.Histories(kind) {
			s := ArtifactSummary{Artifact: h.Ref().String(), Versions: h.Len()}
			if o := h.Origin(); o != nil {
				s.Origin = o.String()
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func versionsOf(hs *history.Store, artifact string) ([]VersionEntry, error) {
	ref, err := ir.ParseRef(artifact)
	if err != nil {
		return nil, err
	}
	h, err := hs.HistoryOf(ref)
	if err != nil {
		return nil, err
	}

	var out []VersionEntry
	for _, n := range h.Versions() {
		meta := n.Base()
		e := VersionEntry{Name: ir.NameOf(n).String(), Checkpoint: meta.Created}
		if !meta.Parent.IsZero() {
			e.Parent = meta.Parent.String()
		}
		switch v := n.(type) {
		case *ir.Notebook:
			e.Cells = make([]string, len(v.Cells))
			for i, c := range v.Cells {
				e.Cells[i] = c.String()
			}
		case *ir.Output:
			e.Outputs = v.Raw
		default:
			text, err := match.RenderNode(hs, n)
			if err != nil {
				return nil, err
			}
			e.Text = &text
		}
		out = append(out, e)
	}
	return out, nil
}

func writeHistoryText(w io.Writer, r HistoryResult) {
	if r.Artifact == "" {
		if len(r.Artifacts) == 0 {
			fmt.Fprintf(w, "No histories for notebook %s\n", r.Notebook)
			return
		}
		for _, a := range r.Artifacts {
			fmt.Fprintf(w, "%-16s %3d versions", a.Artifact, a.Versions)
			if a.Origin != "" {
				fmt.Fprintf(w, "  (switched from %s)", a.Origin)
			}
			fmt.Fprintln(w)
		}
		return
	}

	for _, v := range r.Versions {
		fmt.Fprintf(w, "%s  checkpoint %d", v.Name, v.Checkpoint)
		if v.Parent != "" {
			fmt.Fprintf(w, "  in %s", v.Parent)
		}
		fmt.Fprintln(w)
		switch {
		case v.Text != nil:
			for _, line := range strings.Split(*v.Text, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		case v.Cells != nil:
			fmt.Fprintf(w, "    cells: %s\n", strings.Join(v.Cells, ", "))
		default:
			fmt.Fprintf(w, "    %d output records\n", len(v.Outputs))
		}
	}
}
