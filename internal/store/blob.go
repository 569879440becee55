package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/verdant/internal/ir"
)

// WriteBlob stores data under its content-addressed name.
// Uses ON CONFLICT(name) DO NOTHING for idempotency.
func (s *Store) WriteBlob(ctx context.Context, name string, data []byte) error {
	if want := ir.BlobName(data); want != name {
		return fmt.Errorf("write blob %s: content hashes to %s", name, want)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (name, size, data)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, len(data), compress(data))
	if err != nil {
		return fmt.Errorf("write blob %s: %w", name, err)
	}
	return nil
}

// ReadBlob returns the content stored under name.
// Returns an error wrapping ErrNotFound if the blob is missing.
func (s *Store) ReadBlob(ctx context.Context, name string) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE name = ?`, name).Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read blob %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", name, err)
	}
	data, err := decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", name, err)
	}
	return data, nil
}

// BlobCount returns the number of stored blobs.
func (s *Store) BlobCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count blobs: %w", err)
	}
	return n, nil
}
