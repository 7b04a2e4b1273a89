package features

import "strings"

// Extractor turns product titles into attribute maps using an ordered rule table.
// It is stateless after construction and safe for concurrent use.
type Extractor struct {
	rules []Rule
}

// NewExtractor creates an extractor with the built-in rule table.
func NewExtractor() *Extractor {
	return &Extractor{rules: DefaultRules()}
}

// NewExtractorWithRules creates an extractor with a custom rule table.
func NewExtractorWithRules(rules []Rule) *Extractor {
	return &Extractor{rules: rules}
}

// Extract parses a title into canonical attributes. Text no rule recognises is
// ignored; a title with nothing recognisable yields an empty map.
func (e *Extractor) Extract(title string) AttributeMap {
	out := make(AttributeMap)
	if strings.TrimSpace(title) == "" {
		return out
	}

	var claimed [][2]int
	for _, rule := range e.rules {
		if _, done := out[rule.Key]; done {
			continue
		}
		v, span, ok := rule.match(title, claimed)
		if !ok {
			continue
		}
		out[rule.Key] = v
		claimed = append(claimed, span)
	}
	return out
}
