// Package harness runs notebook scenarios through the history engine and
// checks the checkpoints it records.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: run_then_move
//	description: "A run versions the cell, a move versions the notebook"
//	steps:
//	  - event: load
//	    cells:
//	      - kind: code
//	        text: "x = 1"
//	        outputs: [{output_type: stream, name: stdout, text: "1\n"}]
//	  - event: run
//	    cell: 0
//	    text: "x = 2"
//	    expect: {checkpoint: true}
//	  - event: add_cell
//	    index: 9
//	    kind: markdown
//	    expect: {error: INVALID_EVENT}
//	assertions:
//	  - type: checkpoint_count
//	    count: 2
//	  - type: cell_text
//	    cell: 0
//	    text: "x = 2"
//
// Cells are addressed by their index in the notebook as it stands when the
// step runs. A run without text re-runs the cell's current text.
//
// # Assertions
//
//   - checkpoint_count: number of recorded checkpoints
//   - checkpoint_types: exact sequence of checkpoint types
//   - version_count: committed versions of one cell, or of every artifact of a kind
//   - cell_text: current text of a cell
//   - output_count: raw output records of a code cell's committed output
//
// # Determinism
//
// Each scenario runs against a fresh in-memory SQLite store with a
// deterministic timestamp clock and a fixed session id, so the checkpoint
// trace is reproducible and suitable for golden comparison. The harness
// settles outstanding parses before every step.
package harness
