package mapping

import (
	"fmt"
	"strings"
)

// BasicResult is the output of ApplyBasic.
type BasicResult struct {
	Record   *Record
	Warnings []string
}

// ApplyBasic maps row into a new record using rules, which must already be
// ordered by priority and id. A later rule writing the same db_field replaces
// the earlier value. Nothing here fails the row: coercion problems and
// unmapped columns are returned as warnings.
func ApplyBasic(row RawRow, rules []MappingRule) BasicResult {
	rec := NewRecord(row.RowNo).WithSource(row)
	var warnings []string

	for _, rule := range rules {
		value := row.Get(rule.FileField)
		if rule.HasFixedValue() {
			value = String(rule.FixedValue)
		}

		if value.IsMissing() {
			warnings = append(warnings, fmt.Sprintf("Missing value for %s -> %s", rule.FileField, rule.DBField))
			continue
		}

		coerced, ok := Coerce(value, rule.Type)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("Invalid %s value for %s", typeLabel(rule.Type), rule.DBField))
		}
		rec.Set(rule.DBField, coerced)
	}

	return BasicResult{Record: rec, Warnings: warnings}
}

func typeLabel(typ string) string {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "int", "integer":
		return "integer"
	case "float", "decimal":
		return "decimal"
	default:
		return strings.ToLower(strings.TrimSpace(typ))
	}
}
