package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProduct() Product {
	return Product{
		ID:          "electronics_001",
		Title:       "Acme Phone 128GB 8GB RAM Black",
		Category:    "electronics",
		BaseCost:    decimal.NewFromInt(200),
		DeliveryFee: decimal.NewFromInt(10),
		ListPrice:   decimal.NewFromInt(300),
	}
}

func TestProduct_Validate(t *testing.T) {
	rating := 6.0

	tests := []struct {
		name    string
		mutate  func(p *Product)
		wantErr bool
	}{
		{"valid", func(p *Product) {}, false},
		{"missing id", func(p *Product) { p.ID = "" }, true},
		{"zero base cost", func(p *Product) { p.BaseCost = decimal.Zero }, true},
		{"negative fee", func(p *Product) { p.DeliveryFee = decimal.NewFromInt(-1) }, true},
		{"list below landed", func(p *Product) { p.ListPrice = decimal.NewFromInt(205) }, true},
		{"list equals landed", func(p *Product) { p.ListPrice = decimal.NewFromInt(210) }, false},
		{"rating out of range", func(p *Product) { p.Rating = &rating }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := validProduct()
			tc.mutate(&p)
			err := p.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidProduct))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFindProduct(t *testing.T) {
	catalog := []Product{validProduct()}

	p, err := FindProduct(catalog, "electronics_001")
	require.NoError(t, err)
	assert.Equal(t, "electronics", p.Category)

	_, err = FindProduct(catalog, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProductNotFound))
	assert.Equal(t, KindProductNotFound, KindOf(err))
}

func TestError_WrappingKeepsKind(t *testing.T) {
	base := InvalidState("session is accepted")
	wrapped := errors.Join(errors.New("evaluate"), base)

	assert.True(t, errors.Is(wrapped, ErrInvalidState))
	assert.False(t, errors.Is(wrapped, ErrInvalidOffer))
	assert.Equal(t, KindInvalidState, KindOf(wrapped))
	assert.Contains(t, base.Error(), "[invalid_state]")
}
