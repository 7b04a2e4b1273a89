package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
)

// DB represents a database connection interface. Both *sql.DB and *sql.Tx satisfy it.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PoolConfig holds connection pool settings for Open.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open opens a database connection for a catalog source ("sqlite" or "postgres").
func Open(source, dsn string, pool PoolConfig) (*sql.DB, error) {
	var driver string
	switch source {
	case "sqlite":
		driver = "sqlite3"
	case "postgres":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", source)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	return db, nil
}

// Repository handles product persistence and implements Provider.
type Repository struct {
	db DB
}

// NewRepository creates a new product repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

const productColumns = `id, title, category, base_cost, delivery_fee, list_price, rating, reviews, brand, link`

// Upsert inserts a product or updates the stored copy.
func (r *Repository) Upsert(ctx context.Context, p domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var rating sql.NullFloat64
	if p.Rating != nil {
		rating = sql.NullFloat64{Float64: *p.Rating, Valid: true}
	}

	query := `
		INSERT INTO products (` + productColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			base_cost = excluded.base_cost,
			delivery_fee = excluded.delivery_fee,
			list_price = excluded.list_price,
			rating = excluded.rating,
			reviews = excluded.reviews,
			brand = excluded.brand,
			link = excluded.link,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Title, p.Category,
		p.BaseCost.StringFixed(2), p.DeliveryFee.StringFixed(2), p.ListPrice.StringFixed(2),
		rating, p.Reviews, p.Brand, p.Link,
	)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}

// Products returns every stored product ordered by category and ID.
func (r *Repository) Products(ctx context.Context) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY category, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// Product retrieves a product by ID.
func (r *Repository) Product(ctx context.Context, id string) (domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ProductNotFound(id)
	}
	return p, err
}

// Delete removes a product. Deleting a missing product reports ProductNotFound.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return domain.ProductNotFound(id)
	}
	return err
}

// Count returns the number of stored products.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var rating sql.NullFloat64
	err := row.Scan(
		&p.ID, &p.Title, &p.Category,
		&p.BaseCost, &p.DeliveryFee, &p.ListPrice,
		&rating, &p.Reviews, &p.Brand, &p.Link,
	)
	if err != nil {
		return domain.Product{}, err
	}
	if rating.Valid {
		v := rating.Float64
		p.Rating = &v
	}
	return p, nil
}
