package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
)

func TestTable_Lookup(t *testing.T) {
	table := DefaultTable()

	p, err := table.Lookup("Luxury")
	require.NoError(t, err)
	assert.Equal(t, 0.25, p.Concession)

	p, err = table.Lookup("garden")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfigurationMissing))
	assert.Equal(t, table.Default, p)
}

func TestCategoryPolicy_Margin(t *testing.T) {
	tests := []struct {
		name     string
		policy   CategoryPolicy
		baseCost string
		expected string
	}{
		{"absolute wins", CategoryPolicy{MinMargin: 20, MarginRate: 0.05}, "200", "20"},
		{"rate wins", CategoryPolicy{MinMargin: 5, MarginRate: 0.15}, "200", "30"},
		{"rounded to cents", CategoryPolicy{MarginRate: 0.15}, "33.33", "5"},
		{"zero", CategoryPolicy{}, "100", "0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.policy.Margin(decimal.RequireFromString(tc.baseCost))
			assert.True(t, decimal.RequireFromString(tc.expected).Equal(got), "got %s", got)
		})
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
default:
  min_margin: 10
  concession: 0.5
  weights:
    ram_gb: 1.0
categories:
  Phones:
    min_margin: 20
  Watches:
    min_margin: 50
    concession: 0.2
    weights:
      color: 0.9
`)

	table, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"phones", "watches"}, table.Names())

	phones, err := table.Lookup("phones")
	require.NoError(t, err)
	assert.Equal(t, 20.0, phones.MinMargin)
	assert.Equal(t, 0.5, phones.Concession)
	assert.Equal(t, 1.0, phones.Weights["ram_gb"])

	watches, err := table.Lookup("WATCHES")
	require.NoError(t, err)
	assert.Equal(t, 0.2, watches.Concession)
	assert.Equal(t, 0.9, table.Weights("watches")["color"])
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"negative margin", "categories:\n  a:\n    min_margin: -1\n"},
		{"concession above one", "categories:\n  a:\n    concession: 1.5\n"},
		{"negative weight", "categories:\n  a:\n    weights:\n      ram_gb: -2\n"},
		{"not yaml", "categories: [unterminated"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	table, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, table.Names())

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  books:\n    min_margin: 1\n"), 0o644))

	table, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"books"}, table.Names())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultTable_Valid(t *testing.T) {
	require.NoError(t, DefaultTable().Validate())
}
