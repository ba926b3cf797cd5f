// Package records is the key-value record store used by the db capability.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrRecordNotFound is returned when a record id does not exist
var ErrRecordNotFound = errors.New("record not found")

// Record is one stored key-value pair
type Record struct {
	ID    int64  `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Config holds record store configuration
type Config struct {
	DBPath string
	Logger zerolog.Logger
}

// Store owns the database handle. Every operation acquires its own
// connection and releases it before returning.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (and creates if needed) the record database
func Open(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger.With().Str("component", "records").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.DBPath).Msg("Record store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT,
			value TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_records_key ON records(key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Insert stores a new record and returns it with its assigned id
func (s *Store) Insert(ctx context.Context, key, value string) (Record, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, "INSERT INTO records (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return Record{}, fmt.Errorf("failed to insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("failed to read record id: %w", err)
	}

	s.logger.Debug().Int64("id", id).Str("key", key).Msg("Record inserted")
	return Record{ID: id, Key: key, Value: value}, nil
}

// Query returns every record stored under key, oldest first
func (s *Store) Query(ctx context.Context, key string) ([]Record, error) {
	return s.list(ctx, "SELECT id, key, value FROM records WHERE key = ? ORDER BY id", key)
}

// ListAll returns every record, oldest first
func (s *Store) ListAll(ctx context.Context) ([]Record, error) {
	return s.list(ctx, "SELECT id, key, value FROM records ORDER BY id")
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]Record, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		var key, value sql.NullString
		if err := rows.Scan(&r.ID, &key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Key = key.String
		r.Value = value.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, nil
}

// Delete removes the record with id. It returns ErrRecordNotFound when no
// such record exists.
func (s *Store) Delete(ctx context.Context, id int64) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}

	s.logger.Debug().Int64("id", id).Msg("Record deleted")
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	s.logger.Info().Msg("Closing record store")
	return s.db.Close()
}
