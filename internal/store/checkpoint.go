package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/verdant/internal/ir"
)

// CheckpointRecord is a checkpoint together with the session that wrote it.
type CheckpointRecord struct {
	Session    string
	Checkpoint ir.Checkpoint
}

// AppendCheckpoint adds cp to the log of notebook.
// Target cells are stored as canonical JSON so identical logs compare
// byte for byte.
func (s *Store) AppendCheckpoint(ctx context.Context, notebook, session string, cp ir.Checkpoint) error {
	if !ir.ValidCheckpointTypes[cp.Type] {
		return fmt.Errorf("append checkpoint %d: invalid type %q", cp.ID, cp.Type)
	}
	targets := cp.TargetCells
	if targets == nil {
		targets = []ir.CellChange{}
	}
	targetsJSON, err := ir.CanonicalJSON(targets)
	if err != nil {
		return fmt.Errorf("append checkpoint %d: %w", cp.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints
		(notebook, id, session, timestamp, checkpoint_type, notebook_version, target_cells)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		notebook,
		cp.ID,
		session,
		cp.Timestamp,
		string(cp.Type),
		cp.NotebookVersion,
		string(targetsJSON),
	)
	if err != nil {
		return fmt.Errorf("append checkpoint %d: %w", cp.ID, err)
	}
	return nil
}

// Checkpoints returns the log of notebook in id order.
func (s *Store) Checkpoints(ctx context.Context, notebook string) ([]ir.Checkpoint, error) {
	records, err := s.CheckpointRecords(ctx, notebook)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Checkpoint, len(records))
	for i, r := range records {
		out[i] = r.Checkpoint
	}
	return out, nil
}

// CheckpointRecords returns the log of notebook with session ids, in id
// order.
func (s *Store) CheckpointRecords(ctx context.Context, notebook string) ([]CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session, timestamp, checkpoint_type, notebook_version, target_cells
		FROM checkpoints
		WHERE notebook = ?
		ORDER BY id ASC
	`, notebook)
	if err != nil {
		return nil, fmt.Errorf("read checkpoints %s: %w", notebook, err)
	}
	defer rows.Close()

	var out []CheckpointRecord
	for rows.Next() {
		var r CheckpointRecord
		var typ, targets string
		if err := rows.Scan(
			&r.Checkpoint.ID,
			&r.Session,
			&r.Checkpoint.Timestamp,
			&typ,
			&r.Checkpoint.NotebookVersion,
			&targets,
		); err != nil {
			return nil, fmt.Errorf("read checkpoints %s: %w", notebook, err)
		}
		r.Checkpoint.Type = ir.CheckpointType(typ)
		if err := json.Unmarshal([]byte(targets), &r.Checkpoint.TargetCells); err != nil {
			return nil, fmt.Errorf("read checkpoint %d targets: %w", r.Checkpoint.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoints %s: %w", notebook, err)
	}
	return out, nil
}
