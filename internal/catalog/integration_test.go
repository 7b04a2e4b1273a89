//go:build integration

package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRepository_Postgres(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("smartshop_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/smartshop_test?sslmode=disable", host, port.Port())

	db, err := Open("postgres", dsn, PoolConfig{MaxOpenConns: 5})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.PingContext(ctx))

	n, err := NewMigrator(db, "postgres").Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	repo := NewRepository(db)
	for _, p := range sampleProducts() {
		require.NoError(t, repo.Upsert(ctx, p))
	}

	got, err := repo.Product(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, got.ListPrice.Equal(dec("49.99")))
	assert.True(t, got.DeliveryFee.Equal(dec("5")))

	all, err := repo.Products(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	n, err = NewMigrator(db, "postgres").Migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
