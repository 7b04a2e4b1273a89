package recommend

import (
	"strings"
	"unicode"

	"github.com/spherical-ai/smartshop-engine/internal/domain"
)

const (
	searchTitleWeight     = 0.7
	searchAttributeWeight = 0.3
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "for": {}, "in": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "with": {}, "i": {}, "me": {}, "want": {},
	"need": {}, "looking": {}, "show": {}, "some": {},
}

// Search ranks catalog products against a free-text query. Title token
// overlap counts for 70% of the score and overlap between the attributes
// extracted from the query and the product for the remaining 30%.
func (e *Engine) Search(query string, catalog []domain.Product, k int) []Result {
	if k <= 0 || len(catalog) == 0 {
		return []Result{}
	}
	queryTokens := tokenize(query)
	queryAttrs := e.cache.Extractor().Extract(query)
	if len(queryTokens) == 0 && len(queryAttrs) == 0 {
		return []Result{}
	}

	var out []Result
	for _, p := range catalog {
		var text float64
		if len(queryTokens) > 0 {
			titleTokens := tokenize(p.Title)
			matched := 0
			for t := range queryTokens {
				if _, ok := titleTokens[t]; ok {
					matched++
				}
			}
			text = float64(matched) / float64(len(queryTokens))
		}

		var attr float64
		if len(queryAttrs) > 0 {
			attrs := e.cache.Attributes(p)
			matched := 0
			for key, qv := range queryAttrs {
				if pv, ok := attrs[key]; ok && pv.Equal(qv) {
					matched++
				}
			}
			attr = float64(matched) / float64(len(queryAttrs))
		}

		score := searchTitleWeight*text + searchAttributeWeight*attr
		if score <= 0 {
			continue
		}
		out = append(out, Result{Product: p, Score: clampUnit(score), Relation: RelationSimilar})
	}
	sortResults(out)
	return topK(out, k)
}

// tokenize lower-cases s and splits it into a set of alphanumeric tokens,
// dropping stopwords.
func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, skip := stopwords[f]; skip {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}
