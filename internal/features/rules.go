package features

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Rule is one entry of the ordered extraction table. Several rules may share a
// key; the first rule that yields a value for a key wins.
type Rule struct {
	Key     string
	Pattern *regexp.Regexp
	Convert func(groups []string) (Value, bool)
	// Unique rules only yield a value when exactly one unclaimed match
	// converts; several candidates make the token ambiguous.
	Unique bool
}

// Match applies the rule to a title on its own.
func (r Rule) Match(title string) (Value, bool) {
	v, _, ok := r.match(title, nil)
	return v, ok
}

// match returns the first match that does not overlap a span already claimed by
// an earlier rule and that converts to a value. A Unique rule fails when more
// than one such match exists.
func (r Rule) match(title string, claimed [][2]int) (Value, [2]int, bool) {
	var (
		found    bool
		value    Value
		position [2]int
	)
	for _, idx := range r.Pattern.FindAllStringSubmatchIndex(title, -1) {
		span := [2]int{idx[0], idx[1]}
		if overlaps(span, claimed) {
			continue
		}
		groups := make([]string, 0, len(idx)/2)
		for i := 0; i+1 < len(idx); i += 2 {
			if idx[i] < 0 {
				groups = append(groups, "")
				continue
			}
			groups = append(groups, title[idx[i]:idx[i+1]])
		}
		v, ok := r.Convert(groups)
		if !ok {
			continue
		}
		if !r.Unique {
			return v, span, true
		}
		if found {
			return Value{}, [2]int{}, false
		}
		found, value, position = true, v, span
	}
	return value, position, found
}

func overlaps(span [2]int, claimed [][2]int) bool {
	for _, c := range claimed {
		if span[0] < c[1] && c[0] < span[1] {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in rule table in priority order.
func DefaultRules() []Rule {
	return []Rule{
		// RAM before storage so that "8GB RAM" is never read as storage.
		{Key: "ram_gb", Pattern: regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(tb|gb|g)\s*(?:of\s+)?(?:ram|unified\s+memory|memory|lpddr\d*x?|ddr\d*x?)\b`), Convert: capacityGB},
		{Key: "ram_gb", Pattern: regexp.MustCompile(`(?i)\b(?:ram|memory)\s*:?\s*(\d+(?:\.\d+)?)\s*(tb|gb|g)\b`), Convert: capacityGB},
		{Key: "storage_gb", Pattern: regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(tb|gb|t|g)\s*(?:ssd|hdd|emmc|ufs|nvme|storage|rom|flash)\b`), Convert: capacityGB},
		// A bare capacity is storage only when it is the only one left.
		{Key: "storage_gb", Pattern: regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(tb|gb)\b`), Convert: capacityGB, Unique: true},
		{Key: "screen_in", Pattern: regexp.MustCompile(`(?i)\b(\d{1,3}(?:\.\d{1,2})?)\s*(?:-\s*)?(?:inch(?:es)?\b|in\b(\s*-?\s*1\b)?|"|”)`), Convert: screenInches},
		{Key: "battery_mah", Pattern: regexp.MustCompile(`(?i)\b(\d{3,6})\s*mah\b`), Convert: plainNumber},
		{Key: "refresh_hz", Pattern: regexp.MustCompile(`(?i)\b(\d{2,3})\s*hz\b`), Convert: plainNumber},
		{Key: "camera_mp", Pattern: regexp.MustCompile(`(?i)\b(\d{1,3}(?:\.\d)?)\s*mp\b`), Convert: plainNumber},
		{Key: "weight_kg", Pattern: regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(kgs?|grams?|g|lbs?|pounds?|oz)\b`), Convert: weightKG},
		{Key: "bluetooth", Pattern: regexp.MustCompile(`(?i)\bbluetooth\s*v?(\d(?:\.\d)?)\b`), Convert: plainNumber},
		{Key: "resolution", Pattern: regexp.MustCompile(`(?i)\b(\d{3,4})\s*[x×]\s*(\d{3,4})\b`), Convert: resolutionPixels},
		{Key: "resolution", Pattern: regexp.MustCompile(`(?i)\b(8k|4k|uhd|wqhd|qhd|fhd|full\s*hd|hd|2160p|1440p|1080p|720p)\b`), Convert: resolutionLabel},
		{Key: "processor", Pattern: regexp.MustCompile(`(?i)\b(i[3579]-\d{4,5}[a-z]{0,2}|core\s+i[3579]|ryzen\s*[3579](?:\s+\d{4}[a-z]{0,2})?|snapdragon\s*\d+(?:\s+gen\s*\d)?|apple\s+m[1-4](?:\s+(?:pro|max|ultra))?|dimensity\s*\d+|(?:quad|hexa|octa)[-\s]core)\b`), Convert: lowerCollapsed},
		{Key: "color", Pattern: colorPattern(), Convert: colorName},
		{Key: "connectivity", Pattern: regexp.MustCompile(`(?i)\b(wireless|wi-?fi|cordless)\b`), Convert: constant("wireless")},
		{Key: "noise_cancelling", Pattern: regexp.MustCompile(`(?i)\b(noise[-\s]*cancell?(?:ing|ation)|anc)\b`), Convert: constant("yes")},
		{Key: "waterproof", Pattern: regexp.MustCompile(`(?i)\b(ip[x\d]\d)\b`), Convert: lowerCollapsed},
		{Key: "waterproof", Pattern: regexp.MustCompile(`(?i)\b(water[-\s]*(?:proof|resistant))\b`), Convert: constant("resistant")},
	}
}

var colorVocabulary = []string{
	"rose gold", "space gray", "space grey", "midnight blue", "black", "white", "silver",
	"gray", "grey", "gold", "blue", "navy", "red", "green", "pink", "purple", "yellow",
	"orange", "midnight", "graphite", "titanium", "starlight", "beige", "brown",
}

func colorPattern() *regexp.Regexp {
	words := append([]string(nil), colorVocabulary...)
	// Longest first so multi-word colours win over their last word.
	sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
	for i, w := range words {
		words[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
}

func capacityGB(g []string) (Value, bool) {
	n, err := strconv.ParseFloat(g[1], 64)
	if err != nil || n <= 0 {
		return Value{}, false
	}
	switch strings.ToLower(g[2]) {
	case "tb", "t":
		n *= 1024
	}
	return Num(n), true
}

func screenInches(g []string) (Value, bool) {
	n, err := strconv.ParseFloat(g[1], 64)
	if err != nil || n < 3 || n > 120 {
		return Value{}, false
	}
	// "3-in-1" names a combo product, not a screen.
	if len(g) > 2 && g[2] != "" {
		return Value{}, false
	}
	return Num(n), true
}

func plainNumber(g []string) (Value, bool) {
	n, err := strconv.ParseFloat(g[1], 64)
	if err != nil || n <= 0 {
		return Value{}, false
	}
	return Num(n), true
}

func weightKG(g []string) (Value, bool) {
	n, err := strconv.ParseFloat(g[1], 64)
	if err != nil || n <= 0 {
		return Value{}, false
	}
	unit := strings.ToLower(g[2])
	switch {
	case strings.HasPrefix(unit, "kg"):
	case strings.HasPrefix(unit, "gram"):
		n /= 1000
	case unit == "g":
		// Single digits before a bare "g" are network generations (5G).
		if n < 10 {
			return Value{}, false
		}
		n /= 1000
	case strings.HasPrefix(unit, "lb"), strings.HasPrefix(unit, "pound"):
		n *= 0.45359237
	case unit == "oz":
		n *= 0.028349523125
	default:
		return Value{}, false
	}
	return Num(math.Round(n*1000) / 1000), true
}

var knownResolutions = map[string]string{
	"7680x4320": "8k",
	"3840x2160": "4k",
	"2560x1440": "qhd",
	"1920x1080": "fhd",
	"1280x720":  "hd",
}

func resolutionPixels(g []string) (Value, bool) {
	key := g[1] + "x" + g[2]
	if label, ok := knownResolutions[key]; ok {
		return Cat(label), true
	}
	return Cat(key), true
}

func resolutionLabel(g []string) (Value, bool) {
	switch strings.Join(strings.Fields(strings.ToLower(g[1])), "") {
	case "8k":
		return Cat("8k"), true
	case "4k", "uhd", "2160p":
		return Cat("4k"), true
	case "qhd", "wqhd", "1440p":
		return Cat("qhd"), true
	case "fhd", "fullhd", "1080p":
		return Cat("fhd"), true
	case "hd", "720p":
		return Cat("hd"), true
	}
	return Value{}, false
}

func lowerCollapsed(g []string) (Value, bool) {
	s := strings.Join(strings.Fields(strings.ToLower(g[1])), " ")
	if s == "" {
		return Value{}, false
	}
	return Cat(s), true
}

func colorName(g []string) (Value, bool) {
	v, ok := lowerCollapsed(g)
	if !ok {
		return v, false
	}
	return Cat(strings.ReplaceAll(v.Str, "grey", "gray")), true
}

func constant(s string) func([]string) (Value, bool) {
	return func([]string) (Value, bool) { return Cat(s), true }
}
