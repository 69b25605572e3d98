// Package persistence provides the SQLite-backed repository
// implementations spec.md §9 places out of core scope as a pluggable
// write-behind/read-through contract, but which hivecore ships a working
// implementation of so the `modernc.org/sqlite` dependency has a
// concrete home: the in-process registries in Agent Manager and Task
// Distributor remain the runtime source of truth (spec.md §3); this
// package is the durability collaborator they may optionally write
// through to.
//
// Grounded on the teacher's internal/persistence/store.go Store
// interface and internal/memory/db.go's sql.Open + embedded-schema +
// connection-pool-tuning shape, switched from the teacher's
// `mattn/go-sqlite3` (cgo) driver to `modernc.org/sqlite` (pure Go, no
// cgo) per SPEC_FULL.md §2.
package persistence

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the shared *sql.DB handle used by every repository in this
// package.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates (if necessary) and migrates the SQLite database at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persistence directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open persistence db: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate persistence db: %w", err)
	}
	return db, nil
}

func (d *DB) migrate() error {
	if _, err := d.conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// AgentRepository returns a repository backed by this DB.
func (d *DB) AgentRepository() *AgentRepository {
	return &AgentRepository{db: d.conn}
}

// TaskRepository returns a repository backed by this DB.
func (d *DB) TaskRepository() *TaskRepository {
	return &TaskRepository{db: d.conn}
}

// PatternRepository returns a repository backed by this DB, implementing
// the internal/learning.Repository contract.
func (d *DB) PatternRepository() *PatternRepository {
	return &PatternRepository{db: d.conn}
}
