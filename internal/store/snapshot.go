package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/verdant/internal/ir"
)

// SnapshotInfo describes a stored snapshot without its content.
type SnapshotInfo struct {
	Notebook      string
	SchemaVersion string
	Digest        string
	Size          int
	SavedAt       int64
}

// SaveSnapshot replaces the snapshot of notebook. The data is stored
// zstd-compressed together with its canonical digest.
func (s *Store) SaveSnapshot(ctx context.Context, notebook string, data []byte) error {
	digest, err := ir.SnapshotDigest(data)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", notebook, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (notebook, schema_version, digest, size, data, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(notebook) DO UPDATE SET
			schema_version = excluded.schema_version,
			digest = excluded.digest,
			size = excluded.size,
			data = excluded.data,
			saved_at = excluded.saved_at
	`,
		notebook,
		ir.SnapshotVersion,
		digest,
		len(data),
		compress(data),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", notebook, err)
	}
	return nil
}

// LoadSnapshot returns the snapshot of notebook. ok is false when none
// was saved. The content is checked against the stored digest.
func (s *Store) LoadSnapshot(ctx context.Context, notebook string) ([]byte, bool, error) {
	var digest string
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT digest, data FROM snapshots WHERE notebook = ?
	`, notebook).Scan(&digest, &compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot %s: %w", notebook, err)
	}

	data, err := decompress(compressed)
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot %s: %w", notebook, err)
	}
	got, err := ir.SnapshotDigest(data)
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot %s: %w", notebook, err)
	}
	if got != digest {
		return nil, false, fmt.Errorf("load snapshot %s: digest mismatch (stored %s, computed %s)", notebook, digest, got)
	}
	return data, true, nil
}

// Snapshots lists every stored snapshot ordered by notebook key.
func (s *Store) Snapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT notebook, schema_version, digest, size, saved_at
		FROM snapshots
		ORDER BY notebook ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.Notebook, &info.SchemaVersion, &info.Digest, &info.Size, &info.SavedAt); err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
