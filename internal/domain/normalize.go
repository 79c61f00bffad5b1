package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// quantityRe splits a loosely formatted quantity into number and unit,
// e.g. "50 cm" -> ("50", "cm"), "-3.5e2mm" -> ("-3.5e2", "mm").
var quantityRe = regexp.MustCompile(`^([-+]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][-+]?\d+)?)\s*(\S.*)?$`)

// NormalizeKey trims surrounding whitespace and Unicode case-folds s. It is the
// canonical form for join keys and vocabulary lookups. A Caser is not safe for
// concurrent use, so each call builds its own.
func NormalizeKey(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Fold().String(s)
}

// sentinels holds encoded "missing" markers in text and numeric form.
type sentinels struct {
	text    map[string]bool
	numbers map[float64]bool
}

func newSentinels(values []string) sentinels {
	s := sentinels{
		text:    make(map[string]bool, len(values)),
		numbers: make(map[float64]bool),
	}
	for _, v := range values {
		key := NormalizeKey(v)
		if key == "" {
			continue
		}
		s.text[key] = true
		if f, err := strconv.ParseFloat(key, 64); err == nil {
			s.numbers[f] = true
		}
	}
	return s
}

func (s sentinels) matchText(v string) bool {
	return s.text[NormalizeKey(v)]
}

func (s sentinels) matchNumber(f float64) bool {
	return s.numbers[f]
}

// rawText renders a loosely typed cell as text. The boolean is false for nil.
func rawText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

// rawNumber returns the numeric value of natively numeric cells.
func rawNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	default:
		return 0, false
	}
}

// cellOutcome classifies why a cell did or did not produce a number.
type cellOutcome int

const (
	cellPresent cellOutcome = iota
	cellMissing
	cellMalformed
)

// parseQuantity reads a cell into a number plus the unit text that followed it.
// Missing covers nil, blank and sentinel cells; malformed covers everything else
// that does not parse.
func parseQuantity(v any, miss sentinels) (float64, string, cellOutcome) {
	if f, ok := rawNumber(v); ok {
		if miss.matchNumber(f) {
			return 0, "", cellMissing
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, "", cellMalformed
		}
		return f, "", cellPresent
	}

	text, ok := rawText(v)
	if !ok {
		return 0, "", cellMissing
	}
	text = strings.TrimSpace(text)
	if text == "" || miss.matchText(text) {
		return 0, "", cellMissing
	}

	m := quantityRe.FindStringSubmatch(text)
	if m == nil {
		return 0, "", cellMalformed
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, "", cellMalformed
	}
	if miss.matchNumber(f) && m[2] == "" {
		return 0, "", cellMissing
	}
	return f, strings.TrimSpace(m[2]), cellPresent
}

// convertMeasurement turns a raw cell into a canonical-unit Value. A unit
// suffix equal to the canonical unit means the cell is already converted; no
// suffix or the source unit means the column's implied unit applies. Any other
// suffix is malformed.
func convertMeasurement(v any, conv UnitConversion, miss sentinels) (Value, cellOutcome) {
	f, unit, outcome := parseQuantity(v, miss)
	if outcome != cellPresent {
		return Absent(), outcome
	}

	switch {
	case unit != "" && conv.CanonicalUnit != "" && strings.EqualFold(unit, conv.CanonicalUnit):
		return Present(f), cellPresent
	case unit == "", conv.SourceUnit != "" && strings.EqualFold(unit, conv.SourceUnit):
		return Present(conv.apply(f)), cellPresent
	default:
		return Absent(), cellMalformed
	}
}

// formatQuantity renders a canonical value with its unit so that re-reading it
// is a no-op.
func formatQuantity(f float64, unit string) string {
	num := strconv.FormatFloat(f, 'f', -1, 64)
	if unit == "" {
		return num
	}
	return num + " " + unit
}
