// Package recommend ranks catalog products against an anchor product.
package recommend

import (
	"fmt"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/features"
)

// Relation classifies a recommended product relative to the anchor.
type Relation string

const (
	RelationSimilar           Relation = "similar"
	RelationBetterAlternative Relation = "better_alternative"
)

// Comparison describes how a candidate attribute compares with the anchor's.
type Comparison string

const (
	ComparisonBetter        Comparison = "better"
	ComparisonWorse         Comparison = "worse"
	ComparisonDifferent     Comparison = "different"
	ComparisonOnlyAnchor    Comparison = "only_anchor"
	ComparisonOnlyCandidate Comparison = "only_candidate"
)

// Difference is one attribute-level difference between anchor and candidate.
type Difference struct {
	Key        string          `json:"key"`
	Anchor     *features.Value `json:"anchor,omitempty"`
	Candidate  *features.Value `json:"candidate,omitempty"`
	Comparison Comparison      `json:"comparison"`
	Score      float64         `json:"score"`
}

// Result is a ranked recommendation.
type Result struct {
	Product   domain.Product `json:"product"`
	Score     float64        `json:"score"`
	Relation  Relation       `json:"relation"`
	Rationale []Difference   `json:"rationale,omitempty"`
}

// Config holds ranking thresholds.
type Config struct {
	// MinSimilarity is the score below which candidates are dropped.
	MinSimilarity float64
	// PremiumRatio bounds how much more a better alternative may cost,
	// as a fraction of the anchor's list price.
	PremiumRatio float64
	// HistoryBoost is the largest additive boost from browsing history.
	HistoryBoost float64
}

// DefaultConfig returns the default ranking thresholds.
func DefaultConfig() Config {
	return Config{
		MinSimilarity: 0.3,
		PremiumRatio:  0.2,
		HistoryBoost:  0.1,
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.MinSimilarity <= 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be in (0, 1], got %v", c.MinSimilarity)
	}
	if c.PremiumRatio < 0 {
		return fmt.Errorf("premium_ratio must be >= 0, got %v", c.PremiumRatio)
	}
	if c.HistoryBoost < 0 || c.HistoryBoost > 1 {
		return fmt.Errorf("history_boost must be in [0, 1], got %v", c.HistoryBoost)
	}
	return nil
}

// direction is +1 when higher values are better, -1 when lower values are
// better. Numeric keys absent here never decide dominance.
var direction = map[string]int{
	"ram_gb":      1,
	"storage_gb":  1,
	"battery_mah": 1,
	"refresh_hz":  1,
	"camera_mp":   1,
	"bluetooth":   1,
	"weight_kg":   -1,
}

// compareNumeric returns +1 if candidate is better than anchor on key, -1 if
// worse and 0 if equal or undirected.
func compareNumeric(key string, anchor, candidate float64) int {
	d := direction[key]
	switch {
	case d == 0 || anchor == candidate:
		return 0
	case (candidate > anchor) == (d > 0):
		return 1
	default:
		return -1
	}
}
