package harness

import "github.com/roach88/verdant/internal/ir"

// StepResult records how the engine handled one step.
type StepResult struct {
	Event string `json:"event"`
	// Checkpoint is the id of the recorded checkpoint, nil when dropped.
	Checkpoint *int `json:"checkpoint,omitempty"`
	// Error is the runtime error code, or the message of an uncoded error.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`

	// Checkpoints is the engine's checkpoint log at the end of the run.
	Checkpoints []ir.Checkpoint `json:"checkpoints"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Steps:       []StepResult{},
		Checkpoints: []ir.Checkpoint{},
		Errors:      []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step outcome.
func (r *Result) AddStep(s StepResult) {
	r.Steps = append(r.Steps, s)
}
