package mapping

// coerce.go converts raw cell values to the semantic type named by a rule.
//
// Coercion never fails loudly: it reports ok=false and hands back the input
// unchanged so the caller can keep a best-effort value and record a warning.

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Date layouts tried in order. Four-digit-year layouts only, so a value is
// never silently shifted into another century.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"1/2/2006",
	"01/02/2006",
	"1-2-2006",
	"01-02-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"2006年1月2日",
}

// Coerce converts v to the type named by typ. Recognized names are
// case-insensitive: integer/int, decimal/float, string, date. An empty or
// unknown type passes v through with ok=true.
func Coerce(v Value, typ string) (Value, bool) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "":
		return v, true
	case "integer", "int":
		return toInteger(v)
	case "decimal", "float":
		return toDecimal(v)
	case "string":
		if v.IsMissing() {
			return String(""), true
		}
		return String(v.Text()), true
	case "date":
		return toDate(v)
	default:
		return v, true
	}
}

// KnownType reports whether typ names a coercion target.
func KnownType(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "integer", "int", "decimal", "float", "string", "date":
		return true
	}
	return false
}

func toInteger(v Value) (Value, bool) {
	switch v.Kind() {
	case KindInteger:
		return v, true
	case KindDecimal:
		f, _ := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return v, false
		}
		return Integer(int64(math.Trunc(f))), true
	case KindString:
		i, err := strconv.ParseInt(strings.TrimSpace(v.Text()), 10, 64)
		if err != nil {
			return v, false
		}
		return Integer(i), true
	default:
		return v, false
	}
}

func toDecimal(v Value) (Value, bool) {
	switch v.Kind() {
	case KindDecimal:
		return v, true
	case KindInteger, KindString:
		f, ok := v.Float()
		if !ok || math.IsInf(f, 0) {
			return v, false
		}
		return Decimal(f), true
	default:
		return v, false
	}
}

func toDate(v Value) (Value, bool) {
	switch v.Kind() {
	case KindDate:
		return v, true
	case KindString:
		s := strings.TrimSpace(v.Text())
		if s == "" {
			return v, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return Date(t), true
			}
		}
		return v, false
	default:
		return v, false
	}
}
