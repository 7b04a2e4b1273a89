// Package policy holds per-category pricing and scoring policy.
// Supports YAML files and a built-in default table.
package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/similarity"
)

// DefaultCategory is the table key used when a category has no entry.
const DefaultCategory = "default"

// CategoryPolicy is the policy for one product category.
type CategoryPolicy struct {
	// MinMargin is the absolute margin added on top of cost and delivery.
	MinMargin float64 `yaml:"min_margin"`
	// MarginRate is a margin expressed as a fraction of base cost. The larger
	// of MinMargin and MarginRate*BaseCost applies.
	MarginRate float64 `yaml:"margin_rate"`
	// Concession is the fraction of the ask/offer gap given up per counter.
	// 0.5 counters at the midpoint; smaller values concede slower.
	Concession float64            `yaml:"concession"`
	Weights    similarity.Weights `yaml:"weights"`
}

// Margin returns the margin for a product with the given base cost.
func (p CategoryPolicy) Margin(baseCost decimal.Decimal) decimal.Decimal {
	abs := decimal.NewFromFloat(p.MinMargin)
	rel := baseCost.Mul(decimal.NewFromFloat(p.MarginRate))
	return decimal.Max(abs, rel).Round(2)
}

// Table maps lower-cased category names to policies.
type Table struct {
	Default    CategoryPolicy            `yaml:"default"`
	Categories map[string]CategoryPolicy `yaml:"categories"`
}

// Load reads a policy table from a YAML file. An empty path yields the
// built-in table.
func Load(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML policy table. Category entries inherit the default
// concession and weights when they omit them.
func Parse(data []byte) (*Table, error) {
	t := &Table{Default: DefaultTable().Default}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	normalized := make(map[string]CategoryPolicy, len(t.Categories))
	for name, p := range t.Categories {
		if p.Concession == 0 {
			p.Concession = t.Default.Concession
		}
		if p.Weights == nil {
			p.Weights = t.Default.Weights
		}
		normalized[strings.ToLower(strings.TrimSpace(name))] = p
	}
	t.Categories = normalized

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate policy: %w", err)
	}
	return t, nil
}

// Validate checks every entry of the table.
func (t *Table) Validate() error {
	if err := t.Default.validate(); err != nil {
		return fmt.Errorf("%s: %w", DefaultCategory, err)
	}
	for _, name := range t.Names() {
		p := t.Categories[name]
		if err := p.validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (p CategoryPolicy) validate() error {
	if p.MinMargin < 0 {
		return fmt.Errorf("min_margin must be >= 0, got %v", p.MinMargin)
	}
	if p.MarginRate < 0 {
		return fmt.Errorf("margin_rate must be >= 0, got %v", p.MarginRate)
	}
	if p.Concession <= 0 || p.Concession > 1 {
		return fmt.Errorf("concession must be in (0, 1], got %v", p.Concession)
	}
	for k, w := range p.Weights {
		if w < 0 {
			return fmt.Errorf("weight for %s must be >= 0, got %v", k, w)
		}
	}
	return nil
}

// Names returns the configured category names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.Categories))
	for name := range t.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the policy for a category. When the category has no entry the
// default policy is returned together with a ConfigurationMissing error; the
// policy is usable either way.
func (t *Table) Lookup(category string) (CategoryPolicy, error) {
	key := strings.ToLower(strings.TrimSpace(category))
	if p, ok := t.Categories[key]; ok {
		return p, nil
	}
	return t.Default, domain.ConfigurationMissing(fmt.Sprintf("no policy for category %q, using default", category))
}

// Weights returns the similarity weights for a category.
func (t *Table) Weights(category string) similarity.Weights {
	p, _ := t.Lookup(category)
	return p.Weights
}

// DefaultWeights are the attribute importance weights used when a category
// does not override them.
func DefaultWeights() similarity.Weights {
	return similarity.Weights{
		"processor":        0.9,
		"ram_gb":           0.8,
		"storage_gb":       0.7,
		"screen_in":        0.6,
		"resolution":       0.5,
		"refresh_hz":       0.4,
		"battery_mah":      0.4,
		"camera_mp":        0.4,
		"noise_cancelling": 0.4,
		"bluetooth":        0.3,
		"waterproof":       0.3,
		"connectivity":     0.3,
		"weight_kg":        0.3,
		"color":            0.2,
	}
}

// DefaultTable returns the built-in policy table. It uses absolute margins
// only; proportional margins are opt-in through margin_rate.
func DefaultTable() *Table {
	base := DefaultWeights()

	audio := similarity.Weights{}
	for k, v := range base {
		audio[k] = v
	}
	audio["noise_cancelling"] = 0.8
	audio["connectivity"] = 0.6
	audio["bluetooth"] = 0.5

	return &Table{
		Default: CategoryPolicy{
			MinMargin:  5,
			Concession: 0.5,
			Weights:    base,
		},
		Categories: map[string]CategoryPolicy{
			"electronics":  {MinMargin: 5, Concession: 0.5, Weights: audio},
			"computers":    {MinMargin: 20, Concession: 0.5, Weights: base},
			"home_kitchen": {MinMargin: 5, Concession: 0.5, Weights: base},
			"beauty":       {MinMargin: 2, Concession: 0.5, Weights: base},
			"toys":         {MinMargin: 2, Concession: 0.6, Weights: base},
			"tools":        {MinMargin: 5, Concession: 0.5, Weights: base},
			"books":        {MinMargin: 1, Concession: 0.6, Weights: base},
			"luxury":       {MinMargin: 50, Concession: 0.25, Weights: base},
		},
	}
}
