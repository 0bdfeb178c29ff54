// Package sqlite provides a SQLite implementation of the snapshot store.
//
// SQLite is a lightweight, file-based database suitable for local use. Each
// collection snapshot is a single row in a key/value table, replaced
// wholesale on every save; the containing transaction makes the replacement
// atomic for readers.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store implements storage.SnapshotStore using SQLite as the backend.
type Store struct {
	// db is the SQLite database connection.
	db *sql.DB

	// tableName is the name of the table storing collection snapshots.
	tableName string
}

// Config contains configuration for creating a SQLite snapshot store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the table to store snapshots in. Defaults to "collections".
	TableName string
}

// NewStore creates a new SQLite snapshot store.
//
// The parent directory of DBPath is created if necessary, and the snapshot
// table is created on first use.
func NewStore(cfg *Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("sqlite store: db path is required")
	}

	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}

	table := cfg.TableName
	if table == "" {
		table = "collections"
	}

	s := &Store{db: db, tableName: table}
	if err := s.initTable(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite store: init table: %w", err)
	}
	return nil
}

// Load reads the snapshot row for a collection.
// A collection with no row returns (nil, nil).
func (s *Store) Load(ctx context.Context, collection string) ([]byte, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE name = ?", s.tableName)

	var data []byte
	err := s.db.QueryRowContext(ctx, query, collection).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: load %s: %w", collection, err)
	}
	return data, nil
}

// Save replaces the snapshot row for a collection.
func (s *Store) Save(ctx context.Context, collection string, data []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query, collection, data, time.Now()); err != nil {
		return fmt.Errorf("sqlite store: save %s: %w", collection, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
