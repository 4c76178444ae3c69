// Package app wires the configured infrastructure into a training
// orchestrator. It is shared by the API server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/autotab/api/internal/artifact"
	"github.com/autotab/api/internal/automl"
	"github.com/autotab/api/internal/config"
	"github.com/autotab/api/internal/database"
	"github.com/autotab/api/internal/eventbus"
	"github.com/autotab/api/internal/handlers"
	"github.com/autotab/api/internal/metrics"
	"github.com/autotab/api/internal/middleware"
	"github.com/autotab/api/internal/registry"
	"github.com/autotab/api/internal/training"
	"go.uber.org/zap"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Store        registry.Store
	Files        *artifact.Store
	Signer       *artifact.Signer
	Latest       artifact.LatestIndex
	Cache        *artifact.ModelCache
	Denylist     middleware.Denylist
	Metrics      *metrics.Metrics
	Orchestrator *training.Orchestrator

	redis     *database.Redis
	bus       *eventbus.Bus
	publisher eventbus.Publisher
	closers   []func()
}

// Options selects optional infrastructure.
type Options struct {
	// Offline skips Redis and NATS even when configured.
	Offline bool
}

// New connects to the configured stores and runs migrations. Redis and NATS
// are optional: connection failures are logged and in-memory fallbacks used.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opt Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	if err := a.openStore(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.Store.Ping(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	files, err := artifact.NewStore(cfg.OutputDir, cfg.TimestampOutputs)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Files = files
	a.Signer = artifact.NewSigner(cfg.ManifestSecret)

	cache, err := artifact.NewModelCache(cfg.ModelCacheSize)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Cache = cache

	a.Latest = artifact.NewMemoryLatest()
	a.Denylist = middleware.NewMemoryDenylist()
	a.publisher = eventbus.Nop{}

	if !opt.Offline && cfg.RedisURL != "" {
		rdb, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis, using in-memory state", zap.Error(err))
		} else {
			logger.Info("connected to redis")
			a.redis = rdb
			a.closers = append(a.closers, func() { rdb.Close() })
			a.Latest = artifact.NewRedisLatest(rdb)
			a.Denylist = middleware.NewRedisDenylist(rdb)
		}
	}

	if !opt.Offline && cfg.NATSURL != "" {
		bus, err := eventbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS, events disabled", zap.Error(err))
		} else {
			logger.Info("connected to NATS")
			a.bus = bus
			a.closers = append(a.closers, bus.Close)
			a.publisher = bus
		}
	}

	a.Orchestrator = training.NewOrchestrator(a.TrainingDeps(), training.OptionsFromConfig(cfg), logger.Named("training"))
	return a, nil
}

// TrainingDeps returns the orchestrator collaborators backed by this App.
func (a *App) TrainingDeps() training.Deps {
	return training.Deps{
		Searcher: automl.NewEngine(a.Logger.Named("automl")),
		Files:    a.Files,
		Signer:   a.Signer,
		Registry: a.Store,
		Latest:   a.Latest,
		Cache:    a.Cache,
		Bus:      a.publisher,
		Metrics:  a.Metrics,
	}
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) error {
	if cfg.UsesPostgres() {
		if err := database.RunMigrations(cfg.DatabaseURL, a.Logger); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.PoolOptions{MaxConns: cfg.DBMaxConns})
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.Store = registry.NewPostgres(db)
		return nil
	}

	db, err := database.NewSQLite(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	a.closers = append(a.closers, func() { db.Close() })
	if err := database.RunSQLiteMigrations(db.DB(), a.Logger); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	a.Store = registry.NewSQLite(db)
	a.Logger.Info("using embedded sqlite store", zap.String("path", cfg.SQLitePath))
	return nil
}

// HealthDeps lists the dependencies probed by the deep health check.
func (a *App) HealthDeps() map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{"database": a.Store, "redis": nil, "nats": nil}
	if a.redis != nil {
		deps["redis"] = a.redis
	}
	if a.bus != nil {
		deps["nats"] = a.bus
	}
	return deps
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
