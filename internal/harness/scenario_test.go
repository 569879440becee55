package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/verdant/internal/ir"
)

func TestParseScenario(t *testing.T) {
	src := `
name: basic
description: "one load"
steps:
  - event: load
    cells:
      - text: "x = 1"
        outputs: [{output_type: stream, text: "1\n"}]
      - kind: markdown
        text: "# hi"
  - event: run
    cell: 0
    expect: {checkpoint: false}
assertions:
  - type: checkpoint_count
    count: 1
`
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, "basic", s.Name)
	require.Len(t, s.Steps, 2)
	require.Len(t, s.Steps[0].Cells, 2)
	assert.Equal(t, "stream", s.Steps[0].Cells[0].Outputs[0]["output_type"])
	assert.Equal(t, "markdown", s.Steps[0].Cells[1].Kind)
	require.NotNil(t, s.Steps[1].Cell)
	assert.Equal(t, 0, *s.Steps[1].Cell)
	assert.Nil(t, s.Steps[1].Text)
	require.NotNil(t, s.Steps[1].Expect.Checkpoint)
	assert.False(t, *s.Steps[1].Expect.Checkpoint)
	assert.Equal(t, 1, *s.Assertions[0].Count)
}

func TestParseScenario_Invalid(t *testing.T) {
	const head = "name: n\ndescription: d\n"
	const okAssert = "assertions:\n  - {type: checkpoint_count, count: 0}\n"
	const okSteps = "steps:\n  - {event: save}\n"

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing name", "description: d\n" + okSteps + okAssert, "name is required"},
		{"missing description", "name: n\n" + okSteps + okAssert, "description is required"},
		{"no steps", head + okAssert, "steps list is required"},
		{"no assertions", head + okSteps, "assertions list is required"},
		{"unknown field", head + okSteps + okAssert + "flow: []\n", "field flow not found"},
		{"unknown event", head + "steps:\n  - {event: explode}\n" + okAssert, "explode"},
		{"parsed not scriptable", head + "steps:\n  - {event: parsed}\n" + okAssert, `unknown event type "parsed"`},
		{"run without cell", head + "steps:\n  - {event: run}\n" + okAssert, "cell is required"},
		{"edit without text", head + "steps:\n  - {event: edit, cell: 0}\n" + okAssert, "text is required"},
		{"add without kind", head + "steps:\n  - {event: add_cell}\n" + okAssert, "unknown cell kind"},
		{"bad load kind", head + "steps:\n  - event: load\n    cells: [{kind: sql, text: x}]\n" + okAssert, "cells[0]"},
		{"bad language", head + "language: ruby\n" + okSteps + okAssert, "unsupported language"},
		{"unknown assertion", head + okSteps + "assertions:\n  - {type: trace_count}\n", "unknown assertion type"},
		{"count missing", head + okSteps + "assertions:\n  - {type: checkpoint_count}\n", "count is required"},
		{"version cell and kind", head + okSteps + "assertions:\n  - {type: version_count, count: 1, cell: 0, kind: code}\n", "exactly one"},
		{"bad checkpoint type", head + okSteps + "assertions:\n  - {type: checkpoint_types, types: [commit]}\n", "unknown checkpoint type"},
		{"cell_text missing text", head + okSteps + "assertions:\n  - {type: cell_text, cell: 0}\n", "cell and text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("../../testdata/scenarios/notebook_session.yaml")
	require.NoError(t, err)
	assert.Equal(t, "notebook_session", s.Name)
	assert.NotEmpty(t, s.Steps)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]ir.Kind{
		"code":     ir.KindCodeCell,
		"CodeCell": ir.KindCodeCell,
		"markdown": ir.KindMarkdown,
		"raw":      ir.KindRawCell,
	} {
		got, err := parseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseKind("notebook")
	assert.Error(t, err)

	got, err := parseArtifactKind("notebook")
	require.NoError(t, err)
	assert.Equal(t, ir.KindNotebook, got)
}

func TestLoadScript(t *testing.T) {
	script, err := LoadScript("../../testdata/scenarios/switch_and_delete.yaml")
	require.NoError(t, err)
	assert.Len(t, script.Steps, 5)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("steps:\n  - {event: run}\n"), 0o644))
	_, err = LoadScript(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0]: cell is required")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("name: x\n"), 0o644))
	_, err = LoadScript(empty)
	assert.Error(t, err)
}
