package config

import (
	"time"
)

type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Server     ServerConfig     `mapstructure:"server"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Challenges ChallengesConfig `mapstructure:"challenges"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	// Enabled turns on cross-instance solve fan-out over pub/sub.
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Channel      string        `mapstructure:"channel"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BasePath        string        `mapstructure:"base_path"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	ExporterType string  `mapstructure:"exporter_type"`
	Endpoint     string  `mapstructure:"endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// ChallengesConfig controls catalog behaviour: hint visibility, the
// environment name matched against per-challenge disabled-environment
// markers, and the safety override that forces every challenge to be
// available regardless of environment.
type ChallengesConfig struct {
	ShowHints       bool   `mapstructure:"show_hints"`
	ShowMitigations bool   `mapstructure:"show_mitigations"`
	SafetyOverride  bool   `mapstructure:"safety_override"`
	Environment     string `mapstructure:"environment"`

	// OverwriteURL is the replacement link the product-tampering
	// challenge expects to find in the target product's description.
	OverwriteURL string `mapstructure:"overwrite_url"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// JWTKeyFile points at a PEM-encoded RSA private key. Empty means
	// an ephemeral key pair is generated at startup (demo mode).
	JWTKeyFile string `mapstructure:"jwt_key_file"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	BurstSize         int `mapstructure:"burst_size"`
}

// Default returns the demo-mode configuration: local sqlite, console
// logging, hints visible, telemetry off.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{Level: "info", Format: "console"},
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			DSN:             "file:crookedcart.db?cache=shared&_fk=1",
			MaxConnections:  10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			Channel:      "crookedcart:solved",
			DialTimeout:  5 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "crookedcart",
			ExporterType: "stdout",
			SampleRate:   1.0,
		},
		Challenges: ChallengesConfig{
			ShowHints:       true,
			ShowMitigations: true,
			Environment:     "local",
			OverwriteURL:    "https://owasp.slack.com",
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{RequestsPerSecond: 50, BurstSize: 100},
		},
	}
}
