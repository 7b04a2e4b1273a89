// Package features extracts canonical product attributes from free-text titles.
package features

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind distinguishes numeric from categorical attribute values.
type Kind int

const (
	KindNumeric Kind = iota + 1
	KindCategorical
)

// Value is a single typed attribute value.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

// Num returns a numeric value.
func Num(v float64) Value {
	return Value{Kind: KindNumeric, Num: v}
}

// Cat returns a categorical value.
func Cat(s string) Value {
	return Value{Kind: KindCategorical, Str: s}
}

// IsNumeric reports whether the value is numeric.
func (v Value) IsNumeric() bool { return v.Kind == KindNumeric }

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	if v.Kind == KindNumeric {
		return v.Num == o.Num
	}
	return v.Str == o.Str
}

func (v Value) String() string {
	if v.Kind == KindNumeric {
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.Str
}

// MarshalJSON encodes numeric values as JSON numbers and categorical values as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumeric:
		return json.Marshal(v.Num)
	case KindCategorical:
		return json.Marshal(v.Str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON number or string.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case float64:
		*v = Num(x)
	case string:
		*v = Cat(x)
	default:
		return fmt.Errorf("unsupported attribute value %s", string(data))
	}
	return nil
}

// AttributeMap maps canonical attribute keys (ram_gb, storage_gb, color, ...) to values.
// Maps handed out by the extractor and the cache are shared and must not be mutated.
type AttributeMap map[string]Value

// Keys returns the map keys in sorted order.
func (m AttributeMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy that the caller may modify.
func (m AttributeMap) Clone() AttributeMap {
	out := make(AttributeMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal reports whether two maps hold the same keys and values.
func (m AttributeMap) Equal(o AttributeMap) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// groups mirrors the feature categories used by the storefront's product pages.
var groups = map[string][]string{
	"technical_specs":     {"ram_gb", "storage_gb", "processor", "resolution", "screen_in", "refresh_hz", "camera_mp"},
	"physical_attributes": {"color", "weight_kg"},
	"connectivity":        {"bluetooth", "connectivity"},
	"durability":          {"waterproof", "battery_mah"},
	"audio":               {"noise_cancelling"},
}

// Group splits an attribute map into display groups. Empty groups are omitted.
func Group(m AttributeMap) map[string]AttributeMap {
	out := make(map[string]AttributeMap)
	for group, keys := range groups {
		for _, k := range keys {
			v, ok := m[k]
			if !ok {
				continue
			}
			if out[group] == nil {
				out[group] = make(AttributeMap)
			}
			out[group][k] = v
		}
	}
	return out
}
