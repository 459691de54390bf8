package models

// MConfig Structure
type MConfig struct {
	Name      string          `yaml:"name" mapstructure:"name"`
	Host      string          `yaml:"host" mapstructure:"host"`
	Port      int             `yaml:"port" mapstructure:"port"`
	LogLevel  string          `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string          `yaml:"log_format" mapstructure:"log_format"`
	GrpcHost  string          `yaml:"grpc_host" mapstructure:"grpc_host"`
	GrpcPort  int             `yaml:"grpc_port" mapstructure:"grpc_port"`
	Storage   MStorageConfig  `yaml:"storage" mapstructure:"storage"`
	Redis     MRedisConfig    `yaml:"redis" mapstructure:"redis"`
	Network   MNetworkConfig  `yaml:"network" mapstructure:"network"`
	Exchange  MExchangeConfig `yaml:"exchange" mapstructure:"exchange"`
	Relay     MRelayConfig    `yaml:"relay" mapstructure:"relay"`
	Client    MClientConfig   `yaml:"client" mapstructure:"client"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type" mapstructure:"db_type"`
	DBPath             string `yaml:"db_path" mapstructure:"db_path"`
	DBConnectionString string `yaml:"db_connection_string" mapstructure:"db_connection_string"`
}

// MRedisConfig is optional; an empty Addr disables Redis.
type MRedisConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	Password    string `yaml:"password" mapstructure:"password"`
	DB          int    `yaml:"db" mapstructure:"db"`
	TickerTTLMs int    `yaml:"ticker_ttl_ms" mapstructure:"ticker_ttl_ms"`
}

type MNetworkConfig struct {
	RequestTimeout int    `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries     int    `yaml:"retries" mapstructure:"retries"`
	RetryDelayMs   int    `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
}

type MExchangeConfig struct {
	Name                string   `yaml:"name" mapstructure:"name"`
	WSURL               string   `yaml:"ws_url" mapstructure:"ws_url"`
	RestURL             string   `yaml:"rest_url" mapstructure:"rest_url"`
	MarketPrefix        string   `yaml:"market_prefix" mapstructure:"market_prefix"`
	DefaultSymbols      []string `yaml:"default_symbols" mapstructure:"default_symbols"`
	PingIntervalSeconds int      `yaml:"ping_interval_seconds" mapstructure:"ping_interval_seconds"`
}

type MRelayConfig struct {
	SendBuffer     int      `yaml:"send_buffer" mapstructure:"send_buffer"`
	MaxMessageSize int64    `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MClientConfig drives the watch client (the browser side of the relay).
type MClientConfig struct {
	Mode                   string `yaml:"mode" mapstructure:"mode"` // "relay" or "direct"
	WSURL                  string `yaml:"ws_url" mapstructure:"ws_url"`
	APIURL                 string `yaml:"api_url" mapstructure:"api_url"`
	CachePath              string `yaml:"cache_path" mapstructure:"cache_path"`
	CacheDurationSeconds   int    `yaml:"cache_duration_seconds" mapstructure:"cache_duration_seconds"`
	RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds" mapstructure:"refresh_interval_seconds"`
	ReconnectAttempts      int    `yaml:"reconnect_attempts" mapstructure:"reconnect_attempts"`
	ReconnectDelayMs       int    `yaml:"reconnect_delay_ms" mapstructure:"reconnect_delay_ms"`
	SelectedCoin           string `yaml:"selected_coin" mapstructure:"selected_coin"`
}
