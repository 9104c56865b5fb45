package config

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// AllowedOrigins are host patterns accepted for WebSocket upgrades.
	// Empty disables the origin check.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	Database Database `mapstructure:"database" yaml:"database"`
	Fanout   Fanout   `mapstructure:"fanout" yaml:"fanout"`
	Rooms    Rooms    `mapstructure:"rooms" yaml:"rooms"`
	History  History  `mapstructure:"history" yaml:"history"`
}

// Database selects and configures the message store.
type Database struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	Path     string `mapstructure:"path" yaml:"path"`
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// Fanout selects the bridge between server instances.
type Fanout struct {
	Backend       string `mapstructure:"backend" yaml:"backend"`
	ChannelPrefix string `mapstructure:"channel_prefix" yaml:"channel_prefix"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	NATSURL       string `mapstructure:"nats_url" yaml:"nats_url"`
}

// Rooms tunes room code generation and presence.
type Rooms struct {
	CodeLength    int  `mapstructure:"code_length" yaml:"code_length"`
	MaxAttempts   int  `mapstructure:"max_attempts" yaml:"max_attempts"`
	AnnounceLeave bool `mapstructure:"announce_leave" yaml:"announce_leave"`
}

// History bounds history page sizes.
type History struct {
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit" yaml:"max_limit"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	BackendLocal = "local"
	BackendRedis = "redis"
	BackendNATS  = "nats"
)

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		MaxMessageBytes:   64 * 1024,
		Database: Database{
			Driver:   DriverSQLite,
			Path:     "roomrelay.db",
			MaxConns: 10,
		},
		Fanout: Fanout{
			Backend:       BackendLocal,
			ChannelPrefix: "roomrelay",
			RedisAddr:     "localhost:6379",
			NATSURL:       "nats://localhost:4222",
		},
		Rooms: Rooms{
			CodeLength:  6,
			MaxAttempts: 5,
		},
		History: History{
			DefaultLimit: 50,
			MaxLimit:     200,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the settings exposed as command line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.Database.Driver != "" {
		c.Database.Driver = other.Database.Driver
	}
	if other.Database.Path != "" {
		c.Database.Path = other.Database.Path
	}
	if other.Database.DSN != "" {
		c.Database.DSN = other.Database.DSN
	}
	if other.Fanout.Backend != "" {
		c.Fanout.Backend = other.Fanout.Backend
	}
	if other.Fanout.RedisAddr != "" {
		c.Fanout.RedisAddr = other.Fanout.RedisAddr
	}
	if other.Fanout.NATSURL != "" {
		c.Fanout.NATSURL = other.Fanout.NATSURL
	}
	if other.Rooms.AnnounceLeave {
		c.Rooms.AnnounceLeave = true
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if !slices.Contains([]string{"console", "json"}, c.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format %q: want console or json", c.LogFormat))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("max_message_bytes must be positive"))
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want sqlite or postgres", c.Database.Driver))
	}

	switch c.Fanout.Backend {
	case BackendLocal:
	case BackendRedis:
		if c.Fanout.RedisAddr == "" {
			errs = append(errs, errors.New("fanout.redis_addr is required for redis"))
		}
	case BackendNATS:
		if c.Fanout.NATSURL == "" {
			errs = append(errs, errors.New("fanout.nats_url is required for nats"))
		}
	default:
		errs = append(errs, fmt.Errorf("fanout.backend %q: want local, redis or nats", c.Fanout.Backend))
	}

	if c.Rooms.CodeLength < 3 || c.Rooms.CodeLength > 12 {
		errs = append(errs, fmt.Errorf("rooms.code_length %d: want 3..12", c.Rooms.CodeLength))
	}
	if c.Rooms.MaxAttempts < 1 {
		errs = append(errs, errors.New("rooms.max_attempts must be at least 1"))
	}
	if c.History.DefaultLimit < 1 || c.History.MaxLimit < c.History.DefaultLimit {
		errs = append(errs, fmt.Errorf("history limits %d/%d: want 1 <= default_limit <= max_limit",
			c.History.DefaultLimit, c.History.MaxLimit))
	}
	return errors.Join(errs...)
}
