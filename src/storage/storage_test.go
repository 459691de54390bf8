package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/interfaces"
	"market-relay/src/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s interfaces.IKeyValueStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, helpers.ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "crypto_market_data", []byte(`{"a":1}`)))
	v, err := s.Get(ctx, "crypto_market_data")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(v))

	require.NoError(t, s.Set(ctx, "crypto_market_data", []byte(`{"a":2}`)))
	v, err = s.Get(ctx, "crypto_market_data")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(v))

	require.NoError(t, s.Delete(ctx, "crypto_market_data"))
	require.NoError(t, s.Delete(ctx, "crypto_market_data"))
	_, err = s.Get(ctx, "crypto_market_data")
	assert.ErrorIs(t, err, helpers.ErrKeyNotFound)

	assert.NoError(t, s.Ping(ctx))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.NoError(t, s.Close())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	buf := []byte("abc")
	require.NoError(t, s.Set(context.Background(), "k", buf))
	buf[0] = 'x'

	v, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kv.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "crypto_available_coins", []byte(`[]`)))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer s2.Close()
	v, err := s2.Get(context.Background(), "crypto_available_coins")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(v))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, "relay:", 0, nil)
	defer s.Close()

	exerciseStore(t, s)
}

func TestRedisStoreTTLAndPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(models.MRedisConfig{Addr: mr.Addr()}, "relay:", time.Second, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "ticker:KRW-BTC", []byte(`[]`)))
	assert.True(t, mr.Exists("relay:ticker:KRW-BTC"))

	mr.FastForward(2 * time.Second)
	_, err = s.Get(ctx, "ticker:KRW-BTC")
	assert.ErrorIs(t, err, helpers.ErrKeyNotFound)
}

func TestNewRedisStoreNotConfigured(t *testing.T) {
	_, err := NewRedisStore(models.MRedisConfig{}, "", 0, nil)
	assert.Error(t, err)
}

func TestNewStoreFactory(t *testing.T) {
	s, err := NewStore(models.MStorageConfig{DBType: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore(models.MStorageConfig{DBType: "sqlite", DBPath: filepath.Join(t.TempDir(), "f.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	_, err = NewStore(models.MStorageConfig{DBType: "mongo"}, nil)
	assert.Error(t, err)
}
