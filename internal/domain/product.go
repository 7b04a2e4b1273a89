// Package domain provides the catalog types and typed errors shared by the engines.
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Product represents a catalog item. The engines treat it as immutable input.
type Product struct {
	ID       string `json:"id" db:"id"`
	Title    string `json:"title" db:"title"`
	Category string `json:"category" db:"category"`
	// BaseCost is never serialized: together with the policy margin it
	// determines the negotiation floor.
	BaseCost    decimal.Decimal `json:"-" db:"base_cost"`
	DeliveryFee decimal.Decimal `json:"deliveryFee" db:"delivery_fee"`
	ListPrice   decimal.Decimal `json:"listPrice" db:"list_price"`
	Rating      *float64        `json:"rating,omitempty" db:"rating"`
	Reviews     int             `json:"reviews" db:"reviews"`
	Brand       string          `json:"brand,omitempty" db:"brand"`
	Link        string          `json:"link,omitempty" db:"link"`
}

// Landed returns base cost plus delivery fee.
func (p Product) Landed() decimal.Decimal {
	return p.BaseCost.Add(p.DeliveryFee)
}

// RatingOr returns the rating or def when the product is unrated.
func (p Product) RatingOr(def float64) float64 {
	if p.Rating == nil {
		return def
	}
	return *p.Rating
}

// Validate checks the pricing and rating invariants of a product.
func (p Product) Validate() error {
	if p.ID == "" {
		return InvalidProduct("product id is required", nil)
	}
	if !p.BaseCost.IsPositive() {
		return InvalidProduct(fmt.Sprintf("product %s: base cost must be positive", p.ID), nil)
	}
	if p.DeliveryFee.IsNegative() {
		return InvalidProduct(fmt.Sprintf("product %s: delivery fee must not be negative", p.ID), nil)
	}
	if p.ListPrice.LessThan(p.Landed()) {
		return InvalidProduct(fmt.Sprintf("product %s: list price %s below landed cost %s",
			p.ID, p.ListPrice.StringFixed(2), p.Landed().StringFixed(2)), nil)
	}
	if p.Rating != nil && (*p.Rating < 0 || *p.Rating > 5) {
		return InvalidProduct(fmt.Sprintf("product %s: rating %.2f out of range", p.ID, *p.Rating), nil)
	}
	return nil
}

// FindProduct returns the product with the given ID from a catalog snapshot.
func FindProduct(catalog []Product, id string) (Product, error) {
	for _, p := range catalog {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ProductNotFound(id)
}
