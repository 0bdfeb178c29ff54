// Package postgres provides a PostgreSQL implementation of the snapshot
// store for deployments that want the durable collections on a shared
// database server rather than local disk.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store implements storage.SnapshotStore using PostgreSQL as the backend.
type Store struct {
	db        *sql.DB
	tableName string
}

// Config contains configuration for creating a PostgreSQL snapshot store.
type Config struct {
	// Host is the PostgreSQL server host.
	Host string

	// Port is the PostgreSQL server port.
	Port int

	// User is the database user.
	User string

	// Password is the database password.
	Password string

	// DBName is the database name.
	DBName string

	// TableName is the table to store snapshots in. Defaults to "collections".
	TableName string

	// SSLMode is the sslmode connection parameter. Defaults to "disable".
	SSLMode string
}

// NewStore creates a new PostgreSQL snapshot store.
func NewStore(cfg *Config) (*Store, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres store: ping: %w", err)
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
			data BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres store: init table: %w", err)
	}
	return nil
}

// Load reads the snapshot row for a collection.
// A collection with no row returns (nil, nil).
func (s *Store) Load(ctx context.Context, collection string) ([]byte, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE name = $1", s.tableName)

	var data []byte
	err := s.db.QueryRowContext(ctx, query, collection).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load %s: %w", collection, err)
	}
	return data, nil
}

// Save replaces the snapshot row for a collection.
func (s *Store) Save(ctx context.Context, collection string, data []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, data, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query, collection, data, time.Now()); err != nil {
		return fmt.Errorf("postgres store: save %s: %w", collection, err)
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
