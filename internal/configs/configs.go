/*
Package configs is responsible for loading and validating the application's configuration settings.

Configuration is layered with koanf: struct defaults first, then an optional YAML file
(CONFIG_PATH or one of DefaultConfigPaths), then environment variables, which win.
Environment variables use the ROOMCHAT_ prefix and a double underscore for nesting,
for example ROOMCHAT_SERVER__PORT=9000 or ROOMCHAT_REALTIME__SEND_BUFFER=512.
*/
package configs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix every environment override must carry.
	EnvPrefix = "ROOMCHAT_"

	// ConfigPathEnvVar overrides the config file location.
	ConfigPathEnvVar = "CONFIG_PATH"

	// EnvDevelopment is the environment name that relaxes origin checks and secrets.
	EnvDevelopment = "development"

	// StoreMemory and StorePostgres are the supported session store backends.
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	insecureDevSecret = "roomchat_insecure_development_secret_change_me"
)

// DefaultConfigPaths lists the config file locations searched in order. The first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/roomchat/config.yaml",
}

// legacyEnv maps the unprefixed variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"environment":     "server.environment",
	"port":            "server.port",
	"allowed_origins": "server.allowed_origins",
	"database_url":    "database.dsn",
	"session_secret":  "session.secret",
	"log_level":       "log.level",
}

// Config contains all configuration parameters required for the application to run.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Session  SessionConfig  `koanf:"session"`
	Database DatabaseConfig `koanf:"database"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds HTTP listener and admission settings.
type ServerConfig struct {
	Environment     string        `koanf:"environment"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// UpgradeRate and UpgradeBurst bound websocket upgrade attempts per client IP.
	UpgradeRate  float64 `koanf:"upgrade_rate"`
	UpgradeBurst int     `koanf:"upgrade_burst"`
}

// SessionConfig describes how the realtime endpoint resolves its session cookie.
type SessionConfig struct {
	CookieName string        `koanf:"cookie_name"`
	Secret     string        `koanf:"secret"`
	TTL        time.Duration `koanf:"ttl"`
	Store      string        `koanf:"store"`
}

// DatabaseConfig holds the Postgres pool settings used by the postgres session store.
type DatabaseConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

// RealtimeConfig tunes the per-connection pumps.
type RealtimeConfig struct {
	SendBuffer     int           `koanf:"send_buffer"`
	MaxMessageSize int64         `koanf:"max_message_size"`
	WriteWait      time.Duration `koanf:"write_wait"`
	PongWait       time.Duration `koanf:"pong_wait"`
	PingPeriod     time.Duration `koanf:"ping_period"`

	// TypingRate is the sustained typing frames per second allowed per connection.
	TypingRate  float64 `koanf:"typing_rate"`
	TypingBurst int     `koanf:"typing_burst"`
}

// LogConfig selects the zerolog level and output format (console or json).
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Environment:     EnvDevelopment,
			Host:            "",
			Port:            8080,
			AllowedOrigins:  []string{},
			ReadTimeout:     5 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			UpgradeRate:     0.5,
			UpgradeBurst:    10,
		},
		Session: SessionConfig{
			CookieName: "roomchat_session",
			Secret:     "",
			TTL:        7 * 24 * time.Hour,
			Store:      StoreMemory,
		},
		Database: DatabaseConfig{
			MaxConns:        25,
			MinConns:        5,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			ConnectTimeout:  15 * time.Second,
		},
		Realtime: RealtimeConfig{
			SendBuffer:     256,
			MaxMessageSize: 8192,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			PingPeriod:     54 * time.Second,
			TypingRate:     2,
			TypingBurst:    4,
		},
		Log: LogConfig{
			Level:  "",
			Format: "",
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional config file and the environment.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.applyEnvironmentDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// envTransformFunc maps ROOMCHAT_SECTION__KEY to section.key and a few legacy names.
// Unknown variables map to "" and are skipped.
func envTransformFunc(key string) string {
	if strings.HasPrefix(key, EnvPrefix) {
		trimmed := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if !strings.Contains(trimmed, "__") {
			return ""
		}
		return strings.ReplaceAll(trimmed, "__", ".")
	}

	if mapped, ok := legacyEnv[strings.ToLower(key)]; ok {
		return mapped
	}

	return ""
}

// processSliceFields splits comma-separated values that arrived as plain strings from env vars.
func processSliceFields(k *koanf.Koanf) error {
	for _, field := range []string{"server.allowed_origins"} {
		raw, ok := k.Get(field).(string)
		if !ok {
			continue
		}

		items := []string{}
		for _, part := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				items = append(items, trimmed)
			}
		}

		if err := k.Set(field, items); err != nil {
			return fmt.Errorf("failed to set %s: %w", field, err)
		}
	}
	return nil
}

func (c *Config) applyEnvironmentDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
		if c.IsDevelopment() {
			c.Log.Level = "debug"
		}
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
		if c.IsDevelopment() {
			c.Log.Format = "console"
		}
	}
	if c.Session.Secret == "" && c.IsDevelopment() {
		c.Session.Secret = insecureDevSecret
	}
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the loaded configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1024 || c.Server.Port > 65535 {
		return fmt.Errorf("port number %d is outside the allowed range (1024-65535)", c.Server.Port)
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required in %s environment", c.Server.Environment)
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name must not be empty")
	}

	switch c.Session.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required when session.store is %q", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown session.store %q", c.Session.Store)
	}

	durations := map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"session.ttl":             c.Session.TTL,
		"realtime.write_wait":     c.Realtime.WriteWait,
		"realtime.pong_wait":      c.Realtime.PongWait,
		"realtime.ping_period":    c.Realtime.PingPeriod,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Realtime.PingPeriod >= c.Realtime.PongWait {
		return fmt.Errorf("realtime.ping_period (%s) must be shorter than realtime.pong_wait (%s)",
			c.Realtime.PingPeriod, c.Realtime.PongWait)
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be positive")
	}
	if c.Realtime.MaxMessageSize <= 0 {
		return fmt.Errorf("realtime.max_message_size must be positive")
	}
	if c.Realtime.TypingRate <= 0 || c.Realtime.TypingBurst <= 0 {
		return fmt.Errorf("realtime.typing_rate and realtime.typing_burst must be positive")
	}
	if c.Server.UpgradeRate <= 0 || c.Server.UpgradeBurst <= 0 {
		return fmt.Errorf("server.upgrade_rate and server.upgrade_burst must be positive")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}

	return nil
}
