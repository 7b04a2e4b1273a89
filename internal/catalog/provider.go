// Package catalog loads product catalogs from CSV exports and SQL databases
// and serves them as immutable snapshots to the engines.
package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
)

// Provider supplies catalog products.
type Provider interface {
	Products(ctx context.Context) ([]domain.Product, error)
	Product(ctx context.Context, id string) (domain.Product, error)
}

// Sort orders accepted by Filter.
const (
	SortPriceAsc  = "price"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
	SortReviews   = "reviews"
)

// Filter narrows a catalog listing.
type Filter struct {
	Category  string
	Brand     string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	MinRating float64
	Sort      string
	Limit     int
}

// Apply returns the products matching the filter, sorted and truncated.
// The input slice is not modified.
func (f Filter) Apply(products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
			continue
		}
		if f.Brand != "" && !strings.EqualFold(p.Brand, f.Brand) {
			continue
		}
		if f.MinPrice != nil && p.ListPrice.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && p.ListPrice.GreaterThan(*f.MaxPrice) {
			continue
		}
		if f.MinRating > 0 && p.RatingOr(0) < f.MinRating {
			continue
		}
		out = append(out, p)
	}

	switch f.Sort {
	case SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ListPrice.LessThan(out[j].ListPrice) })
	case SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ListPrice.GreaterThan(out[j].ListPrice) })
	case SortRating:
		sort.SliceStable(out, func(i, j int) bool { return out[i].RatingOr(0) > out[j].RatingOr(0) })
	case SortReviews:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Reviews > out[j].Reviews })
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Categories returns the distinct categories of a catalog, sorted.
func Categories(products []domain.Product) []string {
	seen := make(map[string]struct{})
	for _, p := range products {
		seen[strings.ToLower(p.Category)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// MemoryProvider serves a fixed catalog snapshot.
type MemoryProvider struct {
	products []domain.Product
	byID     map[string]int
}

// NewMemoryProvider creates a provider over a copy of products.
func NewMemoryProvider(products []domain.Product) *MemoryProvider {
	snapshot := make([]domain.Product, len(products))
	copy(snapshot, products)

	byID := make(map[string]int, len(snapshot))
	for i, p := range snapshot {
		byID[p.ID] = i
	}
	return &MemoryProvider{products: snapshot, byID: byID}
}

// Products returns a copy of the snapshot.
func (m *MemoryProvider) Products(ctx context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, len(m.products))
	copy(out, m.products)
	return out, nil
}

// Product returns the product with the given ID.
func (m *MemoryProvider) Product(ctx context.Context, id string) (domain.Product, error) {
	i, ok := m.byID[id]
	if !ok {
		return domain.Product{}, domain.ProductNotFound(id)
	}
	return m.products[i], nil
}

// Len returns the number of products in the snapshot.
func (m *MemoryProvider) Len() int {
	return len(m.products)
}

// Snapshot loads every product from p into a MemoryProvider.
func Snapshot(ctx context.Context, p Provider) (*MemoryProvider, error) {
	products, err := p.Products(ctx)
	if err != nil {
		return nil, err
	}
	return NewMemoryProvider(products), nil
}
