package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/verdant/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCheckpoint creates a run checkpoint targeting one code cell.
func createTestCheckpoint(id, cellVersion int) ir.Checkpoint {
	out := ir.Name{Kind: ir.KindOutput, ID: 0, Version: cellVersion}
	idx := 0
	return ir.Checkpoint{
		ID:              id,
		Timestamp:       int64(1000 + id),
		Type:            ir.CheckpointRun,
		NotebookVersion: cellVersion,
		TargetCells: []ir.CellChange{{
			Cell:       ir.Name{Kind: ir.KindCodeCell, ID: 0, Version: cellVersion},
			ChangeType: ir.ChangeChanged,
			Output:     &out,
			Index:      &idx,
		}},
	}
}
