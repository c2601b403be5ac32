package shield

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cast"
)

type ResourceKind int

const (
	KindEnumerated ResourceKind = iota
	KindNumeric
)

// ResourceSpec describes how values of a resource are compared.
type ResourceSpec struct {
	Kind ResourceKind
	// Precision is the number of decimals kept by numeric resources.
	Precision int
}

var DefaultSynonyms = map[string]string{
	"vypnutooff":       "off",
	"vypnuto":          "off",
	"off":              "off",
	"zapnutoon":        "on",
	"zapnuto":          "on",
	"on":               "on",
	"somezenimlimited": "limited",
	"somezenim":        "limited",
	"somezenímlimited": "limited",
	"somezením":        "limited",
	"limited":          "limited",
}

// Normalizer maps raw observed and expected values to a canonical string so
// that textually different representations of the same value compare equal.
// Resources without a registered spec are treated as enumerated.
type Normalizer struct {
	specs    map[string]ResourceSpec
	synonyms map[string]string
}

func NewNormalizer(specs map[string]ResourceSpec, synonyms map[string]string) *Normalizer {
	n := &Normalizer{
		specs:    make(map[string]ResourceSpec, len(specs)),
		synonyms: make(map[string]string, len(synonyms)),
	}
	for id, spec := range specs {
		n.specs[id] = spec
	}
	for k, v := range synonyms {
		n.synonyms[foldToken(k)] = v
	}
	return n
}

func (n *Normalizer) Spec(resourceID string) ResourceSpec {
	if spec, ok := n.specs[resourceID]; ok {
		return spec
	}
	return ResourceSpec{Kind: KindEnumerated}
}

func (n *Normalizer) Normalize(resourceID string, raw any) (string, error) {
	spec := n.Spec(resourceID)
	switch spec.Kind {
	case KindNumeric:
		return normalizeNumeric(resourceID, raw, spec.Precision)
	default:
		return n.normalizeEnumerated(raw), nil
	}
}

// Equal reports whether both values normalize to the same canonical form.
// A value that cannot be normalized never equals anything.
func (n *Normalizer) Equal(resourceID string, a, b any) bool {
	na, err := n.Normalize(resourceID, a)
	if err != nil {
		return false
	}
	nb, err := n.Normalize(resourceID, b)
	if err != nil {
		return false
	}
	return na == nb
}

func (n *Normalizer) normalizeEnumerated(raw any) string {
	token := foldToken(cast.ToString(raw))
	if mapped, ok := n.synonyms[token]; ok {
		return mapped
	}
	return token
}

func normalizeNumeric(resourceID string, raw any, precision int) (string, error) {
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
	}
	if raw == nil || raw == "" {
		return "", &NormalizationError{ResourceID: resourceID, Value: raw}
	}
	if _, ok := raw.(bool); ok {
		return "", &NormalizationError{ResourceID: resourceID, Value: raw}
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return "", &NormalizationError{ResourceID: resourceID, Value: raw, Err: err}
	}
	if precision < 0 {
		precision = 0
	}
	scale := math.Pow(10, float64(precision))
	rounded := math.Round(v*scale) / scale
	if rounded == 0 {
		// avoid "-0"
		rounded = 0
	}
	return strconv.FormatFloat(rounded, 'f', precision, 64), nil
}

func foldToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) || r == '/' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
