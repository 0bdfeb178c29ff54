// Package mysql provides a MySQL-protocol implementation of the snapshot
// store. It works against MySQL itself and MySQL-compatible databases such
// as MariaDB.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Store implements storage.SnapshotStore over the MySQL wire protocol.
type Store struct {
	db        *sql.DB
	tableName string
}

// Config contains configuration for creating a MySQL snapshot store.
type Config struct {
	// Host is the server host.
	Host string

	// Port is the server port.
	Port int

	// User is the database user.
	User string

	// Password is the database password.
	Password string

	// DBName is the database name.
	DBName string

	// TableName is the table to store snapshots in. Defaults to "collections".
	TableName string
}

// NewStore creates a new MySQL snapshot store.
func NewStore(cfg *Config) (*Store, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("mysql store: ping: %w", err)
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
			name VARCHAR(128) PRIMARY KEY,
			data LONGBLOB NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("mysql store: init table: %w", err)
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
		return nil, fmt.Errorf("mysql store: load %s: %w", collection, err)
	}
	return data, nil
}

// Save replaces the snapshot row for a collection.
func (s *Store) Save(ctx context.Context, collection string, data []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, data, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			data = VALUES(data),
			updated_at = VALUES(updated_at)
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query, collection, data, time.Now()); err != nil {
		return fmt.Errorf("mysql store: save %s: %w", collection, err)
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
