package config

import (
	"fmt"
	"os"
	"strings"

	"market-relay/src/helpers"
	"market-relay/src/models"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "market-relay")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 5001)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_format", "text")
	v.SetDefault("grpc_host", "0.0.0.0")
	v.SetDefault("grpc_port", 50051)

	v.SetDefault("storage.db_type", "sqlite")
	v.SetDefault("storage.db_path", "market-relay.db")
	v.SetDefault("storage.db_connection_string", "")

	// Empty defaults register the keys so RELAY_* variables can set them
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ticker_ttl_ms", 1000)

	v.SetDefault("network.timeout", 10)
	v.SetDefault("network.retries", 2)
	v.SetDefault("network.retry_delay_ms", 500)
	v.SetDefault("network.user_agent", "market-relay/1.0")

	v.SetDefault("exchange.name", "upbit")
	v.SetDefault("exchange.ws_url", "wss://api.upbit.com/websocket/v1")
	v.SetDefault("exchange.rest_url", "https://api.upbit.com/v1")
	v.SetDefault("exchange.market_prefix", "KRW-")
	v.SetDefault("exchange.default_symbols", []string{"KRW-BTC"})
	v.SetDefault("exchange.ping_interval_seconds", 30)

	v.SetDefault("relay.send_buffer", 256)
	v.SetDefault("relay.max_message_size", 1024*1024)
	v.SetDefault("relay.allowed_origins", []string{})

	v.SetDefault("client.mode", "relay")
	v.SetDefault("client.ws_url", "ws://127.0.0.1:5001/ws")
	v.SetDefault("client.api_url", "http://127.0.0.1:5001/api")
	v.SetDefault("client.cache_path", "market-cache.db")
	v.SetDefault("client.cache_duration_seconds", 300)
	v.SetDefault("client.refresh_interval_seconds", 5)
	v.SetDefault("client.reconnect_attempts", 5)
	v.SetDefault("client.reconnect_delay_ms", 1000)
	v.SetDefault("client.selected_coin", "BTCKRW")
}

// -----------------------------------------------------------------------------

// NewConfig loads configuration from defaults, an optional YAML file and
// RELAY_* environment variables (RELAY_EXCHANGE_WS_URL, ...), in that order.
func NewConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 1. Read the YAML file content
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
		}
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := v.Unmarshal(&modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config := &Config{MConfig: &modelConfig}

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, helpers.NewConfigurationError("config validation failed", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Server
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort < 0 || c.GrpcPort > 65535 {
		return fmt.Errorf("invalid grpc port number: %d", c.GrpcPort)
	}

	// Storage
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	case "memory":
	case "":
		return fmt.Errorf("database type cannot be empty")
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}
	if c.Redis.TickerTTLMs < 0 {
		return fmt.Errorf("redis ticker ttl cannot be negative")
	}

	// Network
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Exchange
	if c.Exchange.WSURL == "" {
		return fmt.Errorf("exchange websocket url cannot be empty")
	}
	if c.Exchange.RestURL == "" {
		return fmt.Errorf("exchange rest url cannot be empty")
	}
	if len(c.Exchange.DefaultSymbols) == 0 {
		return fmt.Errorf("at least one default symbol must be configured")
	}

	// Relay
	if c.Relay.SendBuffer <= 0 {
		return fmt.Errorf("relay send buffer must be greater than 0")
	}

	// Client
	if c.Client.Mode != "relay" && c.Client.Mode != "direct" {
		return fmt.Errorf("client mode must be 'relay' or 'direct', got '%s'", c.Client.Mode)
	}
	if c.Client.CacheDurationSeconds <= 0 {
		return fmt.Errorf("cache duration must be greater than 0")
	}
	if c.Client.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("refresh interval must be greater than 0")
	}
	if c.Client.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect attempts cannot be negative")
	}
	if c.Client.ReconnectDelayMs <= 0 {
		return fmt.Errorf("reconnect delay must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------

// OverrideClient applies command line overrides for the client mode and the
// selected coin, then validates again. Empty values keep the loaded ones.
func (c *Config) OverrideClient(mode, coin string) error {
	if mode != "" {
		c.Client.Mode = mode
	}
	if coin != "" {
		c.Client.SelectedCoin = strings.ToUpper(coin)
	}
	if err := c.Validate(); err != nil {
		return helpers.NewConfigurationError("invalid client override", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
