package recommend

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
	"github.com/spherical-ai/smartshop-engine/internal/features"
	"github.com/spherical-ai/smartshop-engine/internal/policy"
	"github.com/spherical-ai/smartshop-engine/internal/similarity"
)

// Engine ranks catalog snapshots. It holds no per-call state and is safe for
// concurrent use; attribute maps are shared through the feature cache.
type Engine struct {
	cache    *features.Cache
	scorer   *similarity.Scorer
	policies *policy.Table
	cfg      Config
}

// NewEngine creates a recommendation engine. Nil dependencies fall back to
// a fresh feature cache and the built-in policy table.
func NewEngine(cache *features.Cache, policies *policy.Table, cfg Config) *Engine {
	if cache == nil {
		cache = features.NewCache(nil)
	}
	if policies == nil {
		policies = policy.DefaultTable()
	}
	return &Engine{
		cache:    cache,
		scorer:   similarity.NewScorer(),
		policies: policies,
		cfg:      cfg,
	}
}

// Config returns the engine's ranking thresholds.
func (e *Engine) Config() Config {
	return e.cfg
}

// Recommend returns up to k products from catalog related to anchor, best
// first. Products in history bias the ranking toward attributes the customer
// has already looked at. The anchor does not need to be in the catalog.
func (e *Engine) Recommend(anchor domain.Product, catalog, history []domain.Product, k int) []Result {
	if k <= 0 || len(catalog) == 0 {
		return []Result{}
	}
	return topK(e.rank(anchor, catalog, history), k)
}

// Similar returns up to k products related to anchor regardless of relation.
func (e *Engine) Similar(anchor domain.Product, catalog []domain.Product, k int) []Result {
	return e.Recommend(anchor, catalog, nil, k)
}

// BetterAlternatives returns up to k products classified as better
// alternatives to anchor.
func (e *Engine) BetterAlternatives(anchor domain.Product, catalog []domain.Product, k int) []Result {
	if k <= 0 || len(catalog) == 0 {
		return []Result{}
	}

	var better []Result
	for _, r := range e.rank(anchor, catalog, nil) {
		if r.Relation == RelationBetterAlternative {
			better = append(better, r)
		}
	}
	return topK(better, k)
}

// Personalized recommends from a browsing history. With no history it returns
// the highest-rated products. Otherwise candidates are scored by their mean
// similarity to the viewed products, and viewed products are excluded.
func (e *Engine) Personalized(viewed, catalog []domain.Product, k int) []Result {
	if k <= 0 || len(catalog) == 0 {
		return []Result{}
	}
	if len(viewed) == 0 {
		return topK(topRated(catalog), k)
	}

	viewedIDs := make(map[string]struct{}, len(viewed))
	for _, v := range viewed {
		viewedIDs[v.ID] = struct{}{}
	}

	var out []Result
	for _, c := range catalog {
		if _, ok := viewedIDs[c.ID]; ok {
			continue
		}
		attrs := e.cache.Attributes(c)

		var sum, best float64
		var closest domain.Product
		for _, v := range viewed {
			if !sameCategory(v, c) {
				continue
			}
			s := e.scorer.Score(e.cache.Attributes(v), attrs, e.policies.Weights(v.Category))
			sum += s
			if s > best {
				best, closest = s, v
			}
		}
		if sum == 0 {
			continue
		}

		out = append(out, Result{
			Product:   c,
			Score:     sum / float64(len(viewed)),
			Relation:  RelationSimilar,
			Rationale: e.rationale(e.cache.Attributes(closest), attrs, e.policies.Weights(closest.Category)),
		})
	}
	sortResults(out)
	return topK(out, k)
}

func (e *Engine) rank(anchor domain.Product, catalog, history []domain.Product) []Result {
	anchorAttrs := e.cache.Attributes(anchor)
	weights := e.policies.Weights(anchor.Category)
	seen, inHistory := e.historyIndex(history)

	var out []Result
	for _, c := range catalog {
		if c.ID == anchor.ID || !sameCategory(anchor, c) {
			continue
		}
		attrs := e.cache.Attributes(c)
		score := e.scorer.Score(anchorAttrs, attrs, weights)
		if score < e.cfg.MinSimilarity {
			continue
		}

		relation := RelationSimilar
		if dominates(anchorAttrs, attrs) && e.withinPremium(anchor.ListPrice, c.ListPrice) {
			relation = RelationBetterAlternative
		}

		if _, ok := inHistory[c.ID]; !ok {
			score = math.Min(1, score+e.cfg.HistoryBoost*sharedShare(attrs, seen))
		}

		out = append(out, Result{
			Product:   c,
			Score:     score,
			Relation:  relation,
			Rationale: e.rationale(anchorAttrs, attrs, weights),
		})
	}
	sortResults(out)
	return out
}

// historyIndex returns the set of attribute pairs seen in history and the set
// of history product IDs.
func (e *Engine) historyIndex(history []domain.Product) (map[string]struct{}, map[string]struct{}) {
	seen := make(map[string]struct{})
	ids := make(map[string]struct{}, len(history))
	for _, h := range history {
		ids[h.ID] = struct{}{}
		for k, v := range e.cache.Attributes(h) {
			seen[pairKey(k, v)] = struct{}{}
		}
	}
	return seen, ids
}

func (e *Engine) withinPremium(anchorPrice, candidatePrice decimal.Decimal) bool {
	limit := anchorPrice.Mul(decimal.NewFromFloat(1 + e.cfg.PremiumRatio))
	return candidatePrice.LessThanOrEqual(limit)
}

// rationale lists the attributes on which candidate differs from anchor.
func (e *Engine) rationale(anchor, candidate features.AttributeMap, weights similarity.Weights) []Difference {
	var diffs []Difference
	for _, ks := range e.scorer.Breakdown(anchor, candidate, weights) {
		av, okA := anchor[ks.Key]
		cv, okC := candidate[ks.Key]
		if okA && okC && av.Equal(cv) {
			continue
		}

		d := Difference{Key: ks.Key, Score: ks.Score}
		if okA {
			d.Anchor = &av
		}
		if okC {
			d.Candidate = &cv
		}
		switch {
		case !okC:
			d.Comparison = ComparisonOnlyAnchor
		case !okA:
			d.Comparison = ComparisonOnlyCandidate
		case av.IsNumeric() && cv.IsNumeric() && compareNumeric(ks.Key, av.Num, cv.Num) > 0:
			d.Comparison = ComparisonBetter
		case av.IsNumeric() && cv.IsNumeric() && compareNumeric(ks.Key, av.Num, cv.Num) < 0:
			d.Comparison = ComparisonWorse
		default:
			d.Comparison = ComparisonDifferent
		}
		diffs = append(diffs, d)
	}
	return diffs
}

// dominates reports whether candidate is strictly better than anchor on at
// least one shared directed numeric attribute and worse on none.
func dominates(anchor, candidate features.AttributeMap) bool {
	better := false
	for k, av := range anchor {
		cv, ok := candidate[k]
		if !ok || !av.IsNumeric() || !cv.IsNumeric() {
			continue
		}
		switch compareNumeric(k, av.Num, cv.Num) {
		case 1:
			better = true
		case -1:
			return false
		}
	}
	return better
}

// sharedShare is the fraction of attrs whose key/value pair appears in seen.
func sharedShare(attrs features.AttributeMap, seen map[string]struct{}) float64 {
	if len(attrs) == 0 || len(seen) == 0 {
		return 0
	}
	matched := 0
	for k, v := range attrs {
		if _, ok := seen[pairKey(k, v)]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(attrs))
}

func pairKey(k string, v features.Value) string {
	return k + "\x00" + strconv.Itoa(int(v.Kind)) + "\x00" + v.String()
}

func topRated(catalog []domain.Product) []Result {
	var out []Result
	for _, p := range catalog {
		if p.Rating == nil {
			continue
		}
		out = append(out, Result{
			Product:  p,
			Score:    clampUnit(*p.Rating / 5),
			Relation: RelationSimilar,
		})
	}
	sortResults(out)
	return out
}

func sameCategory(a, b domain.Product) bool {
	return strings.EqualFold(strings.TrimSpace(a.Category), strings.TrimSpace(b.Category))
}

// sortResults orders by score desc, then list price asc, then ID asc.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if c := a.Product.ListPrice.Cmp(b.Product.ListPrice); c != 0 {
			return c < 0
		}
		return a.Product.ID < b.Product.ID
	})
}

func topK(results []Result, k int) []Result {
	if len(results) > k {
		results = results[:k]
	}
	if results == nil {
		return []Result{}
	}
	return results
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
