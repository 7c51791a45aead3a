// Package storage implements the SQLite-based persistence layer.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds SQLite configuration options.
type Config struct {
	Path        string
	JournalMode string // WAL, DELETE, TRUNCATE
	Synchronous string // OFF, NORMAL, FULL
	CacheSize   int    // in KB (negative for KB, positive for pages)
	MmapSize    int64  // in bytes
	BusyTimeout int    // in milliseconds
}

// DefaultConfig returns the default SQLite configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		Path:        filepath.Join(dataDir, "planfab.db"),
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		CacheSize:   -64000,    // 64MB
		MmapSize:    268435456, // 256MB
		BusyTimeout: 5000,
	}
}

// DB wraps the SQLite database connection.
type DB struct {
	conn   *sql.DB
	config Config
}

// New creates a new SQLite database connection.
func New(config Config) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_synchronous=%s&_busy_timeout=%d",
		config.Path,
		config.JournalMode,
		config.Synchronous,
		config.BusyTimeout,
	)

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn:   conn,
		config: config,
	}

	if err := db.applyPragmas(); err != nil {
		conn.Close()
		return nil, err
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// applyPragmas applies SQLite performance optimizations.
func (db *DB) applyPragmas() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = %d", db.config.CacheSize),
		fmt.Sprintf("PRAGMA mmap_size = %d", db.config.MmapSize),
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	return nil
}

// initSchema creates the database schema if it doesn't exist.
func (db *DB) initSchema() error {
	schema := `
	-- Machines table
	CREATE TABLE IF NOT EXISTS machines (
		id BLOB(16) PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		shifts JSON NOT NULL,
		work_center TEXT,
		department TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_machines_name ON machines(name);

	-- Manual unavailable hours, one row per blocked hour
	CREATE TABLE IF NOT EXISTS machine_unavailable_hours (
		machine_id BLOB(16) NOT NULL REFERENCES machines(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		hour INTEGER NOT NULL,
		PRIMARY KEY (machine_id, date, hour)
	);

	-- Tasks table
	CREATE TABLE IF NOT EXISTS tasks (
		id BLOB(16) PRIMARY KEY,
		order_number TEXT NOT NULL,
		phase JSON NOT NULL,
		required_qty INTEGER NOT NULL,
		completed_qty INTEGER NOT NULL DEFAULT 0,
		duration_hours REAL NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'NOT_SCHEDULED',
		machine_id BLOB(16),
		start_at INTEGER,
		end_at INTEGER,
		department TEXT,
		work_center TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_queue ON tasks(machine_id, start_at) WHERE machine_id IS NOT NULL;
	`

	_, err := db.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// BeginTx starts a new transaction.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}
