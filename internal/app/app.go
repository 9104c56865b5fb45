package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/fanout"
	natsfanout "github.com/vovakirdan/roomrelay/internal/fanout/nats"
	redisfanout "github.com/vovakirdan/roomrelay/internal/fanout/redis"
	"github.com/vovakirdan/roomrelay/internal/store"
	"github.com/vovakirdan/roomrelay/internal/store/postgres"
	"github.com/vovakirdan/roomrelay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/roomrelay/internal/transport/http"
	"github.com/vovakirdan/roomrelay/internal/utils"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	bridge          fanout.Bridge
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	instanceID := utils.NewID()
	bridge, err := openBridge(ctx, cfg.Fanout, instanceID, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init fanout: %w", err)
	}
	logger.Info().Str("backend", cfg.Fanout.Backend).Str("instance_id", instanceID).Msg("fanout initialized")

	registry := core.NewRegistry(st, core.NewCodeGenerator(cfg.Rooms.CodeLength), cfg.Rooms.MaxAttempts, logger)
	pipeline := core.NewPipeline(registry, st, core.HistoryLimits{
		Default: cfg.History.DefaultLimit,
		Max:     cfg.History.MaxLimit,
	}, logger)
	hub := core.NewHub(registry, pipeline, bridge, core.Options{
		InstanceID:    instanceID,
		AnnounceLeave: cfg.Rooms.AnnounceLeave,
		Logger:        logger,
	})

	server := transporthttp.NewServer(hub, registry, pipeline, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		bridge:          bridge,
		log:             logger,
	}, nil
}

func openStore(ctx context.Context, cfg config.Database) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DSN, cfg.MaxConns)
	default:
		return sqlite.New(cfg.Path)
	}
}

func openBridge(ctx context.Context, cfg config.Fanout, instanceID string, logger *zerolog.Logger) (fanout.Bridge, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return redisfanout.Dial(ctx, redisfanout.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.ChannelPrefix,
		}, logger)
	case config.BackendNATS:
		return natsfanout.Dial(cfg.NATSURL, "roomrelay-"+instanceID, cfg.ChannelPrefix, logger)
	default:
		return fanout.NewLocal(nil), nil
	}
}

// Run starts the hub and the HTTP server and blocks until context
// cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.hub.Run(gctx)
	})

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes the fanout bridge and the store.
func (a *App) cleanup() {
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close fanout bridge")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
