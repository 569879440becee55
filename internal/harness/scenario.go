package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/verdant/internal/engine"
	"github.com/roach88/verdant/internal/ir"
)

// Scenario is a scripted notebook session with assertions on its outcome.
type Scenario struct {
	// Name identifies the scenario and keys its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Language selects the parser: python, javascript, or empty for the
	// deterministic line grammar.
	Language string `yaml:"language,omitempty"`

	// Session is the fixed session id recorded with each checkpoint.
	Session string `yaml:"session,omitempty"`

	// BlobThreshold overrides the engine's blob offload threshold.
	BlobThreshold int `yaml:"blob_threshold,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one event submitted to the engine.
type Step struct {
	// Event is the event name, e.g. "run" or "add_cell".
	Event string `yaml:"event"`

	// Cell is the notebook index of the target cell.
	Cell *int `yaml:"cell,omitempty"`

	// Index is the insert position of add_cell and the destination of move_cell.
	Index int `yaml:"index,omitempty"`

	// Kind is the cell kind of add_cell and switch_cell_type: code, markdown or raw.
	Kind string `yaml:"kind,omitempty"`

	Text    *string          `yaml:"text,omitempty"`
	Outputs []map[string]any `yaml:"outputs,omitempty"`

	// Cells is the notebook content of a load.
	Cells []CellSpec `yaml:"cells,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// CellSpec is one cell of a load step. Kind defaults to code.
type CellSpec struct {
	Kind    string           `yaml:"kind,omitempty"`
	Text    string           `yaml:"text"`
	Outputs []map[string]any `yaml:"outputs,omitempty"`
}

// Expect checks the outcome of a single step.
type Expect struct {
	// Checkpoint, when set, states whether the step records a checkpoint.
	Checkpoint *bool `yaml:"checkpoint,omitempty"`

	// Error is the expected runtime error code, e.g. "INVALID_EVENT".
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final engine state.
type Assertion struct {
	Type  string   `yaml:"type"`
	Count *int     `yaml:"count,omitempty"`
	Cell  *int     `yaml:"cell,omitempty"`
	Kind  string   `yaml:"kind,omitempty"`
	Text  *string  `yaml:"text,omitempty"`
	Types []string `yaml:"types,omitempty"`
}

// Assertion type constants.
const (
	AssertCheckpointCount = "checkpoint_count"
	AssertCheckpointTypes = "checkpoint_types"
	AssertVersionCount    = "version_count"
	AssertCellText        = "cell_text"
	AssertOutputCount     = "output_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Language {
	case "", "python", "javascript":
	default:
		return fmt.Errorf("unsupported language %q", s.Language)
	}
	if s.BlobThreshold < 0 {
		return fmt.Errorf("blob_threshold must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	typ, err := engine.ParseEventType(step.Event)
	if err != nil {
		return err
	}
	needsCell := false
	switch typ {
	case engine.EventLoad:
		for j, c := range step.Cells {
			if c.Kind == "" {
				continue
			}
			if _, err := parseKind(c.Kind); err != nil {
				return fmt.Errorf("cells[%d]: %w", j, err)
			}
		}
	case engine.EventSave:
	case engine.EventRun, engine.EventDeleteCell, engine.EventMoveCell:
		needsCell = true
	case engine.EventEdit:
		needsCell = true
		if step.Text == nil {
			return fmt.Errorf("text is required for edit")
		}
	case engine.EventAddCell:
		if _, err := parseKind(step.Kind); err != nil {
			return err
		}
	case engine.EventSwitchCellType:
		needsCell = true
		if _, err := parseKind(step.Kind); err != nil {
			return err
		}
	default:
		return fmt.Errorf("event %q cannot be scripted", step.Event)
	}
	if needsCell && step.Cell == nil {
		return fmt.Errorf("cell is required for %s", step.Event)
	}
	if step.Cell != nil && *step.Cell < 0 {
		return fmt.Errorf("cell must be non-negative")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertCheckpointCount:
		if a.Count == nil {
			return fmt.Errorf("count is required for %s", a.Type)
		}
	case AssertCheckpointTypes:
		if a.Types == nil {
			return fmt.Errorf("types is required for %s", a.Type)
		}
		for _, t := range a.Types {
			if !ir.ValidCheckpointTypes[ir.CheckpointType(t)] {
				return fmt.Errorf("unknown checkpoint type %q", t)
			}
		}
	case AssertVersionCount:
		if a.Count == nil {
			return fmt.Errorf("count is required for %s", a.Type)
		}
		if (a.Cell == nil) == (a.Kind == "") {
			return fmt.Errorf("exactly one of cell or kind is required for %s", a.Type)
		}
		if a.Kind != "" {
			if _, err := parseArtifactKind(a.Kind); err != nil {
				return err
			}
		}
	case AssertCellText:
		if a.Cell == nil || a.Text == nil {
			return fmt.Errorf("cell and text are required for %s", a.Type)
		}
	case AssertOutputCount:
		if a.Cell == nil || a.Count == nil {
			return fmt.Errorf("cell and count are required for %s", a.Type)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// parseKind maps a scenario cell kind to an ir kind.
func parseKind(s string) (ir.Kind, error) {
	switch s {
	case "code", string(ir.KindCodeCell):
		return ir.KindCodeCell, nil
	case "markdown", string(ir.KindMarkdown):
		return ir.KindMarkdown, nil
	case "raw", string(ir.KindRawCell):
		return ir.KindRawCell, nil
	}
	return "", fmt.Errorf("unknown cell kind %q", s)
}

// parseArtifactKind also accepts the non-cell kinds.
func parseArtifactKind(s string) (ir.Kind, error) {
	switch s {
	case "notebook", string(ir.KindNotebook):
		return ir.KindNotebook, nil
	case "syntax", string(ir.KindSyntax):
		return ir.KindSyntax, nil
	case "output", string(ir.KindOutput):
		return ir.KindOutput, nil
	}
	return parseKind(s)
}

// Script is a list of steps to play against a persistent notebook. Any
// other top-level fields are ignored, so scenario files play as scripts.
type Script struct {
	Steps []Step `yaml:"steps"`
}

// LoadScript reads and validates a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("invalid script: steps list is required and must be non-empty")
	}
	for i, step := range script.Steps {
		if err := validateStep(step); err != nil {
			return nil, fmt.Errorf("invalid script: steps[%d]: %w", i, err)
		}
	}
	return &script, nil
}
