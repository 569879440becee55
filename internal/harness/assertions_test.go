package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/verdant/internal/ir"
)

func intPtr(i int) *int { return &i }

func sampleCheckpoints() []ir.Checkpoint {
	return []ir.Checkpoint{
		{ID: 0, Type: ir.CheckpointLoad, TargetCells: []ir.CellChange{}},
		{ID: 1, Type: ir.CheckpointRun, NotebookVersion: 1, TargetCells: []ir.CellChange{}},
	}
}

func TestAssertCheckpointCount(t *testing.T) {
	cps := sampleCheckpoints()
	assert.NoError(t, assertCheckpointCount(cps, Assertion{Count: intPtr(2)}))

	err := assertCheckpointCount(cps, Assertion{Count: intPtr(1)})
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "1 checkpoints", aerr.Expected)
	assert.Equal(t, "2 checkpoints", aerr.Actual)
	assert.Contains(t, err.Error(), "[1] run notebook=1")
}

func TestAssertCheckpointTypes(t *testing.T) {
	cps := sampleCheckpoints()
	assert.NoError(t, assertCheckpointTypes(cps, Assertion{Types: []string{"load", "run"}}))
	assert.Error(t, assertCheckpointTypes(cps, Assertion{Types: []string{"run", "load"}}))
	assert.Error(t, assertCheckpointTypes(cps, Assertion{Types: []string{"load"}}))
	assert.NoError(t, assertCheckpointTypes(nil, Assertion{Types: []string{}}))
}

func TestEvaluateAssertions_NeedsEngine(t *testing.T) {
	result := NewResult()
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertCheckpointCount, Count: intPtr(0)},
		{Type: AssertCellText, Cell: intPtr(0), Text: new(string)},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "cell_text requires an engine")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
