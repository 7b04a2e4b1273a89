package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/smartshop-engine/internal/catalog"
	"github.com/spherical-ai/smartshop-engine/internal/config"
	"github.com/spherical-ai/smartshop-engine/internal/dialogue"
	"github.com/spherical-ai/smartshop-engine/internal/negotiation"
)

func csvConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Catalog.Source = "csv"
	cfg.Catalog.CSVDir = filepath.Join("..", "catalog", "testdata")
	return cfg
}

func TestNew_CSVCatalog(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, csvConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, 3, a.Catalog.Len())
	assert.IsType(t, &dialogue.TemplateRenderer{}, a.Renderer)
	assert.Equal(t, 3, a.Features.Stats().Entries)

	products, err := a.Catalog.Products(ctx)
	require.NoError(t, err)

	session, err := a.Negotiations.Start(ctx, products[0], "c1", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, session.MaxRounds)

	_, decision, err := a.Negotiations.Evaluate(ctx, session.ID, products[0].ListPrice)
	require.NoError(t, err)
	assert.Equal(t, negotiation.DecisionAccept, decision.Kind)
}

func TestNew_SQLiteCatalog(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Catalog.Source = "sqlite"
	cfg.Catalog.SQLite.Path = filepath.Join(t.TempDir(), "catalog.db")

	// Seed the database the way the import command does.
	db, err := OpenDB(ctx, cfg, nil)
	require.NoError(t, err)
	seed, err := catalog.LoadCSVDir(ctx, csvConfig().Catalog.CSVDir, CSVOptions(cfg))
	require.NoError(t, err)
	repo := catalog.NewRepository(db)
	products, _ := seed.Products(ctx)
	for _, p := range products {
		require.NoError(t, repo.Upsert(ctx, p))
	}
	require.NoError(t, db.Close())

	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, len(products), a.Catalog.Len())
	got, err := a.Catalog.Product(ctx, products[0].ID)
	require.NoError(t, err)
	assert.True(t, got.ListPrice.Equal(products[0].ListPrice))
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	cfg := csvConfig()
	cfg.Catalog.CSVDir = t.TempDir()
	_, err := New(ctx, cfg, nil)
	assert.Error(t, err, "empty catalog directory")

	cfg = csvConfig()
	cfg.Negotiation.PolicyFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(ctx, cfg, nil)
	assert.Error(t, err, "missing policy file")

	cfg = csvConfig()
	cfg.Cache.Driver = "memcached"
	_, err = New(ctx, cfg, nil)
	assert.Error(t, err)
}

func TestCSVOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Catalog.DefaultDeliveryFee = 7.5
	opts := CSVOptions(cfg)
	assert.True(t, opts.DefaultDeliveryFee.Equal(decimal.RequireFromString("7.5")))
	assert.True(t, opts.MarkupRatio.Equal(decimal.RequireFromString("1.3")))
}
