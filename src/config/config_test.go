package config

import (
	"os"
	"path/filepath"
	"testing"

	"market-relay/src/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig("")
	require.NoError(t, err)

	assert.Equal(t, "market-relay", cfg.Name)
	assert.Equal(t, 5001, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Storage.DBType)
	assert.Equal(t, "wss://api.upbit.com/websocket/v1", cfg.Exchange.WSURL)
	assert.Equal(t, []string{"KRW-BTC"}, cfg.Exchange.DefaultSymbols)
	assert.Equal(t, 5, cfg.Client.ReconnectAttempts)
	assert.Equal(t, 1000, cfg.Client.ReconnectDelayMs)
	assert.Equal(t, 300, cfg.Client.CacheDurationSeconds)
	assert.Equal(t, 5, cfg.Client.RefreshIntervalSeconds)
}

func TestNewConfigFileOverrides(t *testing.T) {
	path := writeFile(t, `
name: test-relay
port: 6001
storage:
  db_type: memory
exchange:
  default_symbols: [KRW-ETH, KRW-XRP]
client:
  mode: direct
`)
	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test-relay", cfg.Name)
	assert.Equal(t, 6001, cfg.Port)
	assert.Equal(t, "memory", cfg.Storage.DBType)
	assert.Equal(t, []string{"KRW-ETH", "KRW-XRP"}, cfg.Exchange.DefaultSymbols)
	assert.Equal(t, "direct", cfg.Client.Mode)
	// untouched keys keep their defaults
	assert.Equal(t, 256, cfg.Relay.SendBuffer)
}

func TestNewConfigEnvOverride(t *testing.T) {
	t.Setenv("RELAY_PORT", "7001")
	t.Setenv("RELAY_EXCHANGE_WS_URL", "ws://127.0.0.1:9999")

	cfg, err := NewConfig("")
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
	assert.Equal(t, "ws://127.0.0.1:9999", cfg.Exchange.WSURL)
}

func TestNewConfigEnvOverrideWithoutFileValue(t *testing.T) {
	t.Setenv("RELAY_REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("RELAY_REDIS_PASSWORD", "secret")
	t.Setenv("RELAY_STORAGE_DB_TYPE", "postgres")
	t.Setenv("RELAY_STORAGE_DB_CONNECTION_STRING", "postgres://relay@localhost/relay")
	t.Setenv("RELAY_RELAY_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := NewConfig("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, "postgres", cfg.Storage.DBType)
	assert.Equal(t, "postgres://relay@localhost/relay", cfg.Storage.DBConnectionString)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Relay.AllowedOrigins)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"low port":        "port: 80\n",
		"bad db type":     "storage:\n  db_type: mongo\n",
		"postgres no dsn": "storage:\n  db_type: postgres\n",
		"bad mode":        "client:\n  mode: p2p\n",
		"zero buffer":     "relay:\n  send_buffer: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewConfig(writeFile(t, body))
			var ce *helpers.ConfigurationError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestOverrideClient(t *testing.T) {
	cfg, err := NewConfig("")
	require.NoError(t, err)

	require.NoError(t, cfg.OverrideClient("direct", "ethkrw"))
	assert.Equal(t, "direct", cfg.Client.Mode)
	assert.Equal(t, "ETHKRW", cfg.Client.SelectedCoin)

	require.NoError(t, cfg.OverrideClient("", ""))
	assert.Equal(t, "direct", cfg.Client.Mode)

	err = cfg.OverrideClient("drect", "")
	var ce *helpers.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "client mode must be 'relay' or 'direct'")
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := NewConfig("")
	require.NoError(t, err)
	cfg.Name = "saved-relay"
	cfg.Exchange.DefaultSymbols = []string{"KRW-SOL"}

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-relay", loaded.Name)
	assert.Equal(t, []string{"KRW-SOL"}, loaded.Exchange.DefaultSymbols)
}
