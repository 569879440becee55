package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/verdant/internal/ir"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	Scenario    string          `json:"scenario"`
	Checkpoints []ir.Checkpoint `json:"checkpoints"`
}

// Marshal renders the snapshot as canonical JSON.
func (s TraceSnapshot) Marshal() ([]byte, error) {
	if s.Checkpoints == nil {
		s.Checkpoints = []ir.Checkpoint{}
	}
	return ir.CanonicalJSON(s)
}

// RunWithGolden executes a scenario and compares its checkpoint trace
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's checkpoint trace against a
// golden file without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := TraceSnapshot{Scenario: scenarioName, Checkpoints: result.Checkpoints}.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
