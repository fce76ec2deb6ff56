package mapping

// value.go defines the scalar carried by raw rows and records.
//
// Supplier files hand us strings, numbers and dates mixed freely, so every
// cell is a Value: a closed set of kinds with an explicit Missing state. A
// column that is absent from the row is Missing; a column that is present but
// blank is a String with an empty text. The two are never conflated.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindMissing Kind = iota
	KindString
	KindInteger
	KindDecimal
	KindDate
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	default:
		return "missing"
	}
}

// Value is a dynamically typed scalar. The zero Value is Missing.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	t    time.Time
}

// Missing returns the absent value.
func Missing() Value { return Value{} }

// String wraps a text value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Integer wraps a whole number.
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Decimal wraps a floating point number.
func Decimal(f float64) Value { return Value{kind: KindDecimal, f: f} }

// Date wraps a calendar date/time.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether v is absent.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// IsEmpty reports whether v is absent or an empty string.
// Rules that read a source field treat both as "nothing to do".
func (v Value) IsEmpty() bool {
	return v.kind == KindMissing || (v.kind == KindString && v.s == "")
}

// IsNumeric reports whether v is an Integer or Decimal.
func (v Value) IsNumeric() bool {
	return v.kind == KindInteger || v.kind == KindDecimal
}

// Int returns the integer payload and whether v is an Integer.
func (v Value) Int() (int64, bool) {
	return v.i, v.kind == KindInteger
}

// Time returns the date payload and whether v is a Date.
func (v Value) Time() (time.Time, bool) {
	return v.t, v.kind == KindDate
}

// Float returns v as a float64. Strings are parsed after trimming spaces;
// Missing, Date and unparseable strings report false.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.i), true
	case KindDecimal:
		return v.f, !math.IsNaN(v.f)
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Number returns v as a float64 the way the staging tables read it: strings
// go through CleanNumber first, so "(5)" is -5 and "¥1,500" is 1500.
func (v Value) Number() (float64, bool) {
	if v.kind != KindString {
		return v.Float()
	}
	f, err := strconv.ParseFloat(CleanNumber(v.s), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// CleanNumber strips currency symbols and thousands separators and turns
// accounting negatives "(123)" into "-123".
func CleanNumber(s string) string {
	s = strings.TrimSpace(s)

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, sym := range []string{"$", "€", "£", "¥", "￥", "円", ","} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}
	return s
}

// Text returns the canonical text form of v. Missing renders as "".
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindDecimal:
		return formatDecimal(v.f)
	case KindDate:
		return formatDate(v.t)
	default:
		return ""
	}
}

// String implements fmt.Stringer for log output.
func (v Value) String() string {
	if v.kind == KindMissing {
		return "<missing>"
	}
	return v.Text()
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindInteger:
		return v.i == o.i
	case KindDecimal:
		return v.f == o.f
	case KindDate:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

// MarshalJSON renders numbers as JSON numbers, dates as RFC 3339 strings and
// Missing as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInteger:
		return json.Marshal(v.i)
	case KindDecimal:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return []byte("null"), nil
		}
		return []byte(formatDecimal(v.f)), nil
	case KindDate:
		return json.Marshal(v.t.Format(time.RFC3339))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts the scalar shapes a request body or a stored sample
// can contain. Whole JSON numbers become Integer, other numbers Decimal.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// FromAny converts a decoded scalar (from JSON, YAML or a spreadsheet reader)
// into a Value.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Missing(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return String(strconv.FormatBool(x)), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Integer(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q", x.String())
		}
		return Decimal(f), nil
	case int:
		return Integer(int64(x)), nil
	case int32:
		return Integer(int64(x)), nil
	case int64:
		return Integer(x), nil
	case float32:
		return Decimal(float64(x)), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return Integer(int64(x)), nil
		}
		return Decimal(x), nil
	case time.Time:
		return Date(x), nil
	default:
		return Value{}, fmt.Errorf("unsupported scalar type %T", raw)
	}
}

func formatDecimal(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}
