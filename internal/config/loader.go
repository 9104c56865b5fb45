package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "ROOMRELAY"
	envConfigDefaultPath = "ROOMRELAY_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so nested values can come from env vars.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("max_message_bytes", cfg.MaxMessageBytes)
	v.SetDefault("allowed_origins", cfg.AllowedOrigins)

	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)

	v.SetDefault("fanout.backend", cfg.Fanout.Backend)
	v.SetDefault("fanout.channel_prefix", cfg.Fanout.ChannelPrefix)
	v.SetDefault("fanout.redis_addr", cfg.Fanout.RedisAddr)
	v.SetDefault("fanout.redis_password", cfg.Fanout.RedisPassword)
	v.SetDefault("fanout.redis_db", cfg.Fanout.RedisDB)
	v.SetDefault("fanout.nats_url", cfg.Fanout.NATSURL)

	v.SetDefault("rooms.code_length", cfg.Rooms.CodeLength)
	v.SetDefault("rooms.max_attempts", cfg.Rooms.MaxAttempts)
	v.SetDefault("rooms.announce_leave", cfg.Rooms.AnnounceLeave)

	v.SetDefault("history.default_limit", cfg.History.DefaultLimit)
	v.SetDefault("history.max_limit", cfg.History.MaxLimit)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
