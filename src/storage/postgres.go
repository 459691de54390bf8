package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"market-relay/src/helpers"
	"market-relay/src/logger"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

// PostgresStore keeps key-value pairs in a per-binary schema.
type PostgresStore struct {
	DSN    string
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresStore(dsn string, log *logger.Logger) (*PostgresStore, error) {
	if log == nil {
		log = logger.NewLogger("PostgresStore")
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	s := &PostgresStore{DSN: dsn, Schema: name, Logger: log}
	if err := s.Initialize(); err != nil {
		return nil, helpers.NewDatabaseError("postgres initialization failed", err)
	}
	return s, nil
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) Initialize() error {
	db, err := sql.Open("postgres", s.DSN)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	s.DB = db

	if _, err := db.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, s.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", s.Schema, err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`, s.table())
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table(), err)
	}

	s.Logger.Info("PostgresStore ready (schema %s)", s.Schema)
	return nil
}

func (s *PostgresStore) table() string {
	return fmt.Sprintf(`"%s".kv_store`, s.Schema)
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.table())
	err := s.DB.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helpers.ErrKeyNotFound
	}
	if err != nil {
		return nil, helpers.NewDatabaseError("postgres get failed", err)
	}
	return value, nil
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, s.table())
	if _, err := s.DB.ExecContext(ctx, query, key, value); err != nil {
		return helpers.NewDatabaseError("postgres set failed", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table())
	if _, err := s.DB.ExecContext(ctx, query, key); err != nil {
		return helpers.NewDatabaseError("postgres delete failed", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
