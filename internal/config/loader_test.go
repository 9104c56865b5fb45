package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	require.Equal(t, path, resolved)
	require.Equal(t, Default(), normalize(cfg))
	require.FileExists(t, path)
	require.NoError(t, cfg.Validate())
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
addr: ":9090"
shutdown_timeout: 10s
database:
  driver: postgres
  dsn: postgres://localhost/roomrelay
fanout:
  backend: redis
rooms:
  code_length: 8
history:
  max_limit: 500
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("ROOMRELAY_FANOUT_REDIS_ADDR", "redis:6380")
	t.Setenv("ROOMRELAY_ROOMS_ANNOUNCE_LEAVE", "true")
	t.Setenv("ROOMRELAY_LOG_FORMAT", "json")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Addr)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, 5*time.Second, cfg.ReadHeaderTimeout)
	require.Equal(t, DriverPostgres, cfg.Database.Driver)
	require.Equal(t, "postgres://localhost/roomrelay", cfg.Database.DSN)
	require.Equal(t, BackendRedis, cfg.Fanout.Backend)
	require.Equal(t, "redis:6380", cfg.Fanout.RedisAddr)
	require.True(t, cfg.Rooms.AnnounceLeave)
	require.Equal(t, 8, cfg.Rooms.CodeLength)
	require.Equal(t, 5, cfg.Rooms.MaxAttempts)
	require.Equal(t, 500, cfg.History.MaxLimit)
	require.Equal(t, 50, cfg.History.DefaultLimit)
	require.Equal(t, "json", cfg.LogFormat)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unterminated"), 0o600))

	_, _, err := Load(nil, path)
	require.Error(t, err)
}

func TestResolveConfigPathFromEnv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conf")
	t.Setenv(envConfigDefaultPath, dir)

	require.Equal(t, filepath.Join(dir, defaultConfigName), resolveConfigPath(""))
	require.Equal(t, "/explicit.yaml", resolveConfigPath("/explicit.yaml"))
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{
		Addr:     ":7000",
		Database: Database{Driver: DriverPostgres, DSN: "postgres://x"},
		Fanout:   Fanout{Backend: BackendNATS},
		Rooms:    Rooms{AnnounceLeave: true},
	})

	require.Equal(t, ":7000", cfg.Addr)
	require.Equal(t, DriverPostgres, cfg.Database.Driver)
	require.Equal(t, "postgres://x", cfg.Database.DSN)
	require.Equal(t, "roomrelay.db", cfg.Database.Path)
	require.Equal(t, BackendNATS, cfg.Fanout.Backend)
	require.True(t, cfg.Rooms.AnnounceLeave)
	require.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = DriverPostgres }},
		{"unknown backend", func(c *Config) { c.Fanout.Backend = "kafka" }},
		{"nats without url", func(c *Config) { c.Fanout.Backend = BackendNATS; c.Fanout.NATSURL = "" }},
		{"short codes", func(c *Config) { c.Rooms.CodeLength = 2 }},
		{"long codes", func(c *Config) { c.Rooms.CodeLength = 13 }},
		{"no attempts", func(c *Config) { c.Rooms.MaxAttempts = 0 }},
		{"default above max", func(c *Config) { c.History.DefaultLimit = 300 }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
		{"message size", func(c *Config) { c.MaxMessageBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

// normalize maps an empty slice read back from yaml to nil.
func normalize(cfg Config) Config {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = nil
	}
	return cfg
}
