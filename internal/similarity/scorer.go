// Package similarity scores how alike two attribute maps are.
package similarity

import (
	"math"
	"sort"

	"github.com/spherical-ai/smartshop-engine/internal/features"
)

// DefaultWeight applies to keys missing from a weight table.
const DefaultWeight = 1.0

// Weights maps attribute keys to their relative importance.
type Weights map[string]float64

// Weight returns the weight for a key, DefaultWeight when unlisted.
// Negative weights are treated as zero.
func (w Weights) Weight(key string) float64 {
	v, ok := w[key]
	if !ok {
		return DefaultWeight
	}
	if v < 0 {
		return 0
	}
	return v
}

// KeyScore is the contribution of one attribute to a score.
type KeyScore struct {
	Key    string  `json:"key"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// Scorer computes bounded, symmetric similarity scores.
type Scorer struct{}

// NewScorer creates a new scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns the weight-normalised similarity of a and b in [0, 1].
// A key present in only one map scores 0. Two empty maps score 0.
func (s *Scorer) Score(a, b features.AttributeMap, weights Weights) float64 {
	var num, den float64
	for _, ks := range s.Breakdown(a, b, weights) {
		num += ks.Weight * ks.Score
		den += ks.Weight
	}
	if den == 0 {
		return 0
	}
	return clamp(num / den)
}

// Breakdown returns the per-key scores over the union of keys, sorted by key.
// Keys with zero weight are omitted.
func (s *Scorer) Breakdown(a, b features.AttributeMap, weights Weights) []KeyScore {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	out := make([]KeyScore, 0, len(keys))
	for k := range keys {
		w := weights.Weight(k)
		if w == 0 {
			continue
		}
		out = append(out, KeyScore{Key: k, Score: keyScore(a, b, k), Weight: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func keyScore(a, b features.AttributeMap, key string) float64 {
	va, okA := a[key]
	vb, okB := b[key]
	if !okA || !okB || va.Kind != vb.Kind {
		return 0
	}
	if !va.IsNumeric() {
		if va.Str == vb.Str {
			return 1
		}
		return 0
	}
	return numericCloseness(va.Num, vb.Num)
}

// numericCloseness is 1 - min(1, |a-b| / max(a,b)).
func numericCloseness(a, b float64) float64 {
	if a == b {
		return 1
	}
	hi := math.Max(math.Abs(a), math.Abs(b))
	if hi == 0 {
		return 1
	}
	return clamp(1 - math.Min(1, math.Abs(a-b)/hi))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
