package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomrelay/internal/app"
	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:           "roomrelay",
		Short:         "Room-scoped real-time chat relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load env file: %w", err)
			}

			bootLogger := log.New(overrides.LogLevel, overrides.LogFormat)
			cfg, resolved, err := config.Load(bootLogger, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(overrides)

			logger := log.New(cfg.LogLevel, cfg.LogFormat)
			logger.Info().Str("config", resolved).Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting roomrelay server")
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	flags.DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&overrides.LogFormat, "log-format", "", "log format: console or json")
	flags.StringVar(&overrides.Database.Driver, "db-driver", "", "database driver: sqlite or postgres")
	flags.StringVar(&overrides.Database.Path, "db-path", "", "SQLite database file")
	flags.StringVar(&overrides.Database.DSN, "db-dsn", "", "PostgreSQL connection string")
	flags.StringVar(&overrides.Fanout.Backend, "fanout", "", "fanout backend: local, redis or nats")
	flags.StringVar(&overrides.Fanout.RedisAddr, "redis-addr", "", "Redis address")
	flags.StringVar(&overrides.Fanout.NATSURL, "nats-url", "", "NATS server URL")
	flags.BoolVar(&overrides.Rooms.AnnounceLeave, "announce-leave", false, "publish room:participant-left events")

	return cmd
}
