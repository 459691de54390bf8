package interfaces

import "context"

// -----------------------------------------------------------------------------
// IKeyValueStore is a durable string-keyed byte store (SQLite, Postgres, Redis
// or memory). Get returns helpers.ErrKeyNotFound for a missing key.
// -----------------------------------------------------------------------------

type IKeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}
