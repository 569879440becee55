package ir

// CheckpointType names the external event that opened a checkpoint.
type CheckpointType string

const (
	CheckpointRun            CheckpointType = "run"
	CheckpointSave           CheckpointType = "save"
	CheckpointLoad           CheckpointType = "load"
	CheckpointAddCell        CheckpointType = "add_cell"
	CheckpointDeleteCell     CheckpointType = "delete_cell"
	CheckpointMoveCell       CheckpointType = "move_cell"
	CheckpointSwitchCellType CheckpointType = "switch_cell_type"
)

// ValidCheckpointTypes defines allowed checkpoint types.
var ValidCheckpointTypes = map[CheckpointType]bool{
	CheckpointRun:            true,
	CheckpointSave:           true,
	CheckpointLoad:           true,
	CheckpointAddCell:        true,
	CheckpointDeleteCell:     true,
	CheckpointMoveCell:       true,
	CheckpointSwitchCellType: true,
}

// ChangeType describes what a checkpoint did to one cell.
type ChangeType string

const (
	ChangeAdded       ChangeType = "added"
	ChangeChanged     ChangeType = "changed"
	ChangeRemoved     ChangeType = "removed"
	ChangeMoved       ChangeType = "moved"
	ChangeTypeChanged ChangeType = "type_changed"
	ChangeSame        ChangeType = "same"
)

// CellChange is one target of a checkpoint.
type CellChange struct {
	Cell       Name       `json:"cell"`
	ChangeType ChangeType `json:"changeType"`
	Output     *Name      `json:"output,omitempty"`
	Index      *int       `json:"index,omitempty"`
}

// Checkpoint is an immutable record of one external event that produced at
// least one new version.
type Checkpoint struct {
	ID              int            `json:"id"`
	Timestamp       int64          `json:"timestamp"`
	Type            CheckpointType `json:"checkpointType"`
	NotebookVersion int            `json:"notebookVersion"`
	TargetCells     []CellChange   `json:"targetCells"`
}
