package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/verdant/internal/engine"
	"github.com/roach88/verdant/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type        string
	Expected    string
	Actual      string
	Checkpoints []ir.Checkpoint
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Checkpoints) > 0 {
		fmt.Fprintf(&buf, "\nCheckpoints:\n")
		for _, cp := range e.Checkpoints {
			fmt.Fprintf(&buf, "  [%d] %s notebook=%d targets=%d\n", cp.ID, cp.Type, cp.NotebookVersion, len(cp.TargetCells))
		}
	}
	return buf.String()
}

// AssertionContext provides engine access for state assertions.
type AssertionContext struct {
	Engine *engine.Engine
	Ctx    context.Context
}

func assertCheckpointCount(cps []ir.Checkpoint, a Assertion) error {
	if len(cps) == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:        AssertCheckpointCount,
		Expected:    fmt.Sprintf("%d checkpoints", *a.Count),
		Actual:      fmt.Sprintf("%d checkpoints", len(cps)),
		Checkpoints: cps,
	}
}

func assertCheckpointTypes(cps []ir.Checkpoint, a Assertion) error {
	actual := make([]string, len(cps))
	for i, cp := range cps {
		actual[i] = string(cp.Type)
	}
	if slices.Equal(actual, a.Types) {
		return nil
	}
	return &AssertionError{
		Type:        AssertCheckpointTypes,
		Expected:    fmt.Sprintf("%v", a.Types),
		Actual:      fmt.Sprintf("%v", actual),
		Checkpoints: cps,
	}
}

// assertVersionCount counts committed versions of one cell, or of every
// artifact of a kind.
func assertVersionCount(eng *engine.Engine, cps []ir.Checkpoint, a Assertion) error {
	var (
		count int
		what  string
	)
	if a.Cell != nil {
		ref, err := cellAt(eng, *a.Cell)
		if err != nil {
			return fmt.Errorf("%s: %w", AssertVersionCount, err)
		}
		h, err := eng.Store().HistoryOf(ref)
		if err != nil {
			return fmt.Errorf("%s: %w", AssertVersionCount, err)
		}
		count = h.Len()
		what = ref.String()
	} else {
		kind, err := parseArtifactKind(a.Kind)
		if err != nil {
			return fmt.Errorf("%s: %w", AssertVersionCount, err)
		}
		for _, h := range eng.Store().Histories(kind) {
			count += h.Len()
		}
		what = string(kind)
	}
	if count == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:        AssertVersionCount,
		Expected:    fmt.Sprintf("%d versions of %s", *a.Count, what),
		Actual:      fmt.Sprintf("%d versions", count),
		Checkpoints: cps,
	}
}

func assertCellText(eng *engine.Engine, a Assertion) error {
	ref, err := cellAt(eng, *a.Cell)
	if err != nil {
		return fmt.Errorf("%s: %w", AssertCellText, err)
	}
	text, err := eng.CellText(ref)
	if err != nil {
		return fmt.Errorf("%s: %w", AssertCellText, err)
	}
	if text == *a.Text {
		return nil
	}
	return &AssertionError{
		Type:     AssertCellText,
		Expected: fmt.Sprintf("%s text %q", ref, *a.Text),
		Actual:   fmt.Sprintf("%q", text),
	}
}

func assertOutputCount(eng *engine.Engine, a Assertion) error {
	ref, err := cellAt(eng, *a.Cell)
	if err != nil {
		return fmt.Errorf("%s: %w", AssertOutputCount, err)
	}
	n, err := eng.Store().Committed(ref)
	if err != nil {
		return fmt.Errorf("%s: %w", AssertOutputCount, err)
	}
	cell, ok := n.(*ir.CodeCell)
	if !ok {
		return fmt.Errorf("%s: %s is not a code cell", AssertOutputCount, ref)
	}
	n, err = eng.Store().Committed(cell.Output)
	if err != nil {
		return fmt.Errorf("%s: %w", AssertOutputCount, err)
	}
	out, ok := n.(*ir.Output)
	if !ok {
		return fmt.Errorf("%s: %s is not an output", AssertOutputCount, cell.Output)
	}
	if len(out.Raw) == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertOutputCount,
		Expected: fmt.Sprintf("%d output records on %s", *a.Count, ref),
		Actual:   fmt.Sprintf("%d", len(out.Raw)),
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions. State
// assertions need an engine in actx.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCheckpointCount:
			err = assertCheckpointCount(result.Checkpoints, assertion)
		case AssertCheckpointTypes:
			err = assertCheckpointTypes(result.Checkpoints, assertion)
		case AssertVersionCount, AssertCellText, AssertOutputCount:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an engine", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertVersionCount:
				err = assertVersionCount(actx.Engine, result.Checkpoints, assertion)
			case AssertCellText:
				err = assertCellText(actx.Engine, assertion)
			default:
				err = assertOutputCount(actx.Engine, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
