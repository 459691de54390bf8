package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/logger"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

// SQLiteStore keeps key-value pairs in a single SQLite table.
type SQLiteStore struct {
	Path   string
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteStore(path string, log *logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.NewLogger("SQLiteStore")
	}
	s := &SQLiteStore{Path: path, Logger: log}
	if err := s.Initialize(); err != nil {
		return nil, helpers.NewDatabaseError("sqlite initialization failed", err)
	}
	return s, nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) Initialize() error {
	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return err
	}
	// A single connection keeps ":memory:" databases coherent and
	// serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	s.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		s.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		s.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	query := `
		CREATE TABLE IF NOT EXISTS kv_store (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create kv_store: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helpers.ErrKeyNotFound
	}
	if err != nil {
		return nil, helpers.NewDatabaseError("sqlite get failed", err)
	}
	return value, nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return helpers.NewDatabaseError("sqlite set failed", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return helpers.NewDatabaseError("sqlite delete failed", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
