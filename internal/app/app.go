// Package app wires the engines together from configuration. The API server
// and the CLI both start from here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/spherical-ai/smartshop-engine/internal/cache"
	"github.com/spherical-ai/smartshop-engine/internal/catalog"
	"github.com/spherical-ai/smartshop-engine/internal/config"
	"github.com/spherical-ai/smartshop-engine/internal/dialogue"
	"github.com/spherical-ai/smartshop-engine/internal/features"
	"github.com/spherical-ai/smartshop-engine/internal/monitoring"
	"github.com/spherical-ai/smartshop-engine/internal/negotiation"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
	"github.com/spherical-ai/smartshop-engine/internal/policy"
	"github.com/spherical-ai/smartshop-engine/internal/recommend"
)

// App holds the running engines and the resources they own.
type App struct {
	Config       *config.Config
	Catalog      *catalog.MemoryProvider
	Policies     *policy.Table
	Features     *features.Cache
	Recommender  *recommend.Engine
	Negotiations *negotiation.Store
	Renderer     dialogue.Renderer
	Cache        cache.Client

	logger *observability.Logger
	db     *sql.DB
}

// New loads the catalog and policy table and builds every engine.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	a := &App{Config: cfg, logger: logger}

	var err error
	a.Cache, err = cache.New(cache.Config{
		Driver:     cfg.Cache.Driver,
		MaxEntries: cfg.Cache.MaxEntries,
		Redis: cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	if err := a.loadCatalog(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Policies, err = policy.Load(cfg.Negotiation.PolicyFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Features = features.NewCache(features.NewExtractor())
	products, _ := a.Catalog.Products(ctx)
	loaded, err := a.Features.Warm(ctx, a.Cache, cfg.Cache.TTL, products)
	if err != nil {
		// Attributes are still extracted lazily on first use.
		logger.Warn().Err(err).Msg("Failed to warm attribute cache")
	}
	logger.Info().
		Int("products", len(products)).
		Int("attributes_from_cache", loaded).
		Msg("Attribute cache warmed")

	a.Recommender = recommend.NewEngine(a.Features, a.Policies, recommend.Config{
		MinSimilarity: cfg.Recommendation.MinSimilarity,
		PremiumRatio:  cfg.Recommendation.PremiumRatio,
		HistoryBoost:  cfg.Recommendation.HistoryBoost,
	})

	auditor := monitoring.NewDecisionAuditor(logger, a.Cache, cfg.Negotiation.AuditChannel)
	engine := negotiation.NewEngine(a.Policies, negotiation.Config{DefaultMaxRounds: cfg.Negotiation.DefaultMaxRounds})
	a.Negotiations = negotiation.NewStore(engine, logger, auditor)

	a.Renderer, err = dialogue.New(cfg.Dialogue.Provider, dialogue.LLMConfig{
		APIKey:         cfg.Dialogue.APIKey,
		BaseURL:        cfg.Dialogue.BaseURL,
		Model:          cfg.Dialogue.Model,
		RequestsPerSec: cfg.Dialogue.RequestsPerSec,
		MaxRetries:     cfg.Dialogue.MaxRetries,
		Timeout:        cfg.Dialogue.Timeout,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) loadCatalog(ctx context.Context) error {
	cfg := a.Config.Catalog
	switch cfg.Source {
	case "csv":
		p, err := catalog.LoadCSVDir(ctx, cfg.CSVDir, a.CSVOptions())
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		for _, skipped := range p.Skipped {
			a.logger.Warn().
				Str("file", skipped.File).
				Int("line", skipped.Line).
				Err(skipped.Err).
				Msg("Skipped catalog row")
		}
		a.Catalog = p.MemoryProvider

	case "sqlite", "postgres":
		db, err := a.OpenDB(ctx)
		if err != nil {
			return err
		}
		a.db = db
		snapshot, err := catalog.Snapshot(ctx, catalog.NewRepository(db))
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		a.Catalog = snapshot

	default:
		return fmt.Errorf("unsupported catalog source: %s", cfg.Source)
	}

	a.logger.Info().
		Str("source", cfg.Source).
		Int("products", a.Catalog.Len()).
		Msg("Catalog loaded")
	return nil
}

// OpenDB opens the SQL catalog database and applies pending migrations.
func (a *App) OpenDB(ctx context.Context) (*sql.DB, error) {
	return OpenDB(ctx, a.Config, a.logger)
}

// CSVOptions returns the CSV import settings from the catalog configuration.
func (a *App) CSVOptions() catalog.CSVOptions {
	return CSVOptions(a.Config)
}

// OpenDB opens the SQL catalog database named by cfg and applies pending
// migrations.
func OpenDB(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*sql.DB, error) {
	pool := catalog.PoolConfig{MaxOpenConns: cfg.Catalog.SQLite.MaxOpenConns}
	if cfg.Catalog.Source == "postgres" {
		pool = catalog.PoolConfig{
			MaxOpenConns:    cfg.Catalog.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Catalog.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Catalog.Postgres.ConnMaxLifetime,
		}
	}

	db, err := catalog.Open(cfg.Catalog.Source, cfg.CatalogDSN(), pool)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	applied, err := catalog.NewMigrator(db, cfg.Catalog.Source).Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	if applied > 0 && logger != nil {
		logger.Info().Int("migrations", applied).Msg("Applied catalog migrations")
	}
	return db, nil
}

// CSVOptions returns the CSV import settings from cfg.
func CSVOptions(cfg *config.Config) catalog.CSVOptions {
	return catalog.CSVOptions{
		DefaultDeliveryFee: decimal.NewFromFloat(cfg.Catalog.DefaultDeliveryFee),
		MarkupRatio:        decimal.NewFromFloat(cfg.Catalog.MarkupRatio),
	}
}

// Close releases the database and cache connections.
func (a *App) Close() error {
	var errs []error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	return errors.Join(errs...)
}
