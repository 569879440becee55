package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is the durable side of a notebook history: the last snapshot of
// each notebook, the append-only checkpoint log and the blob table.
//
// All access goes through one connection. The engine writes from its Run
// goroutine while blob writes arrive from background goroutines; they queue
// on that connection instead of contending for the SQLite write lock.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path (or MemoryPath), applies
// pragmas, creates missing tables and migrates older databases.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := setup(context.Background(), db, path == MemoryPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// pragmas are applied on every open. An in-memory database keeps its
// default journal.
var pragmas = []struct {
	stmt   string
	onDisk bool
}{
	{"PRAGMA journal_mode = WAL", true},
	{"PRAGMA synchronous = NORMAL", false},
	{"PRAGMA busy_timeout = 5000", false},
}

// migrations[i] upgrades a database at user_version i. Databases created
// from the current schema.sql skip straight to len(migrations).
var migrations = []func(context.Context, *sql.Tx) error{
	addSessionIndex,
}

func setup(ctx context.Context, db *sql.DB, inMemory bool) error {
	for _, p := range pragmas {
		if p.onDisk && inMemory {
			continue
		}
		if _, err := db.ExecContext(ctx, p.stmt); err != nil {
			return fmt.Errorf("%s: %w", p.stmt, err)
		}
	}

	version, err := userVersion(ctx, db)
	if err != nil {
		return err
	}
	fresh, err := isEmpty(ctx, db)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if fresh {
		version = len(migrations)
	}

	for ; version < len(migrations); version++ {
		if err := migrate(ctx, db, version); err != nil {
			return err
		}
	}
	return setUserVersion(ctx, db, version)
}

func migrate(ctx context.Context, db *sql.DB, from int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate from v%d: %w", from, err)
	}
	defer tx.Rollback()
	if err := migrations[from](ctx, tx); err != nil {
		return fmt.Errorf("migrate from v%d: %w", from, err)
	}
	return tx.Commit()
}

// addSessionIndex backs `log --session` on databases created before the
// index was part of schema.sql.
func addSessionIndex(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_checkpoints_session
		ON checkpoints(notebook, session, id)
	`)
	return err
}

func isEmpty(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'checkpoints'`,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	return n == 0, nil
}

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

func setUserVersion(ctx context.Context, db *sql.DB, v int) error {
	// PRAGMA takes no bind parameters.
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// pragma reads the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return value, nil
}
