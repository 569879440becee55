package engine

import (
	"fmt"

	"github.com/roach88/verdant/internal/ir"
	"github.com/roach88/verdant/internal/match"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventLoad opens the notebook with the given cells.
	EventLoad EventType = iota + 1
	// EventSave commits every edited cell.
	EventSave
	// EventRun commits one cell's text and outputs.
	EventRun
	// EventAddCell inserts a cell at Index.
	EventAddCell
	// EventDeleteCell removes a cell.
	EventDeleteCell
	// EventMoveCell moves a cell to Index.
	EventMoveCell
	// EventSwitchCellType replaces a cell with a new artifact of Kind.
	EventSwitchCellType
	// EventEdit records live text and issues an asynchronous parse.
	EventEdit
	// EventParsed delivers a parse response back into the queue.
	EventParsed

	// eventSync is a barrier used by Settle.
	eventSync
)

var eventTypeNames = map[EventType]string{
	EventLoad:           "load",
	EventSave:           "save",
	EventRun:            "run",
	EventAddCell:        "add_cell",
	EventDeleteCell:     "delete_cell",
	EventMoveCell:       "move_cell",
	EventSwitchCellType: "switch_cell_type",
	EventEdit:           "edit",
	EventParsed:         "parsed",
	eventSync:           "sync",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// ParseEventType maps a name such as "add_cell" to its EventType.
func ParseEventType(s string) (EventType, error) {
	for t, name := range eventTypeNames {
		if name == s && t != EventParsed && t != eventSync {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

// checkpointType returns the checkpoint opened by t, if any.
func (t EventType) checkpointType() (ir.CheckpointType, bool) {
	switch t {
	case EventLoad:
		return ir.CheckpointLoad, true
	case EventSave:
		return ir.CheckpointSave, true
	case EventRun:
		return ir.CheckpointRun, true
	case EventAddCell:
		return ir.CheckpointAddCell, true
	case EventDeleteCell:
		return ir.CheckpointDeleteCell, true
	case EventMoveCell:
		return ir.CheckpointMoveCell, true
	case EventSwitchCellType:
		return ir.CheckpointSwitchCellType, true
	}
	return "", false
}

// CellInput describes one cell of a Load event.
type CellInput struct {
	Kind    ir.Kind
	Text    string
	Outputs []ir.Payload
}

// Event is one externally triggered action.
type Event struct {
	Type EventType

	// Cell targets Run, Edit, DeleteCell, MoveCell and SwitchCellType.
	Cell ir.Ref
	// Index is the insert position of AddCell and the destination of MoveCell.
	Index int
	// Kind is the cell kind for AddCell and SwitchCellType.
	Kind ir.Kind
	// Text is the cell source for AddCell, Edit and Run.
	Text string
	// Outputs are the raw outputs of a Run.
	Outputs []ir.Payload
	// Cells is the notebook content of a Load.
	Cells []CellInput

	parsed *parsedResponse
	done   chan Outcome
}

// parsedResponse carries a finished parse back to the event loop.
type parsedResponse struct {
	repair *match.Repair
	resp   match.Response
}

// Outcome reports how an event was handled.
type Outcome struct {
	// Checkpoint is the recorded checkpoint, nil when the event changed nothing.
	Checkpoint *ir.Checkpoint
	// Cell is the cell created by AddCell or SwitchCellType.
	Cell ir.Ref
	Err  error
}

// ParseNotice is delivered to the parse hook after a response is handled.
type ParseNotice struct {
	Cell     ir.Ref
	Token    int
	Stale    bool
	Degraded bool
	Err      error
}
