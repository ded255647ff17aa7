package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clarofin/statements/internal/extractor"
	"github.com/clarofin/statements/internal/pipeline"
	"github.com/clarofin/statements/internal/server"
	"github.com/clarofin/statements/internal/store"
	"github.com/clarofin/statements/pkg/config"
	"github.com/clarofin/statements/pkg/metrics"
	"github.com/clarofin/statements/pkg/money"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Pool   *pgxpool.Pool
	Logger *slog.Logger

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Store  store.Store
	Runner *pipeline.Runner
	Server *server.Server
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	deps.initMetrics()
	deps.initPipeline()
	deps.initServer()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase connects the pool and runs migrations.
func (d *Dependencies) initDatabase() error {
	dsn := d.Config.Database.DSN()
	if err := store.Migrate(dsn); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = 25
	poolCfg.MinConns = 5
	poolCfg.MaxConnLifetime = 5 * time.Minute
	poolCfg.MaxConnIdleTime = 10 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	d.Pool = pool
	d.Store = store.NewPostgres(pool, money.EUR)
	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initMetrics() {
	d.Registry = prometheus.NewRegistry()
	d.Metrics = metrics.New(d.Registry)
}

func (d *Dependencies) initPipeline() {
	d.Runner = pipeline.NewRunner(extractor.New(d.Logger), d.Logger).
		WithMetrics(d.Metrics)
	d.Logger.Info("pipeline initialized")
}

func (d *Dependencies) initServer() {
	d.Server = server.New(d.Runner, d.Store, d.Logger, server.Config{
		RateLimitPerSecond: d.Config.Server.RateLimitPerSecond,
		RateLimitBurst:     d.Config.Server.RateLimitBurst,
		MaxUploadBytes:     d.Config.Server.MaxUploadBytes,
		Currency:           money.EUR,
	})
	d.Logger.Info("server initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Pool != nil {
		d.Pool.Close()
	}
	d.Logger.Info("cleanup completed")
}
