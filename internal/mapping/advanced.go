package mapping

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// AdvancedResult is the output of Engine.ApplyAdvanced.
type AdvancedResult struct {
	Record *Record
	Skip   bool
	Errors []string
}

// Engine applies advanced rules. It holds no per-row state and is safe for
// concurrent use.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an engine that reports rule failures to logger.
// A nil logger discards output.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger}
}

// ApplyAdvanced runs rules against rec in order, mutating rec in place.
// Rules read fields through Record.Lookup and write with Record.Set.
// A failing rule is recorded in Errors and the remaining rules still run. A
// matching conditional_skip marks the row but does not stop later rules.
func (e *Engine) ApplyAdvanced(rec *Record, rules []AdvancedRule) AdvancedResult {
	res := AdvancedResult{Record: rec}

	for _, rule := range rules {
		skip, err := e.applyRule(rec, rule)
		if err != nil {
			msg := fmt.Sprintf("Rule '%s' failed: %v", rule.RuleName, err)
			res.Errors = append(res.Errors, msg)
			e.logger.Warn("advanced rule failed",
				"rule_id", rule.ID,
				"rule", rule.RuleName,
				"row", rec.RowNo,
				"error", err,
			)
			continue
		}
		if skip {
			res.Skip = true
			e.logger.Debug("row skipped by rule", "rule", rule.RuleName, "row", rec.RowNo)
		}
	}

	return res
}

func (e *Engine) applyRule(rec *Record, rule AdvancedRule) (skip bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			skip = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch p := rule.Conditions.(type) {
	case ValueMappingPayload:
		return false, applyValueMapping(rec, rule, p)
	case ConditionalSkipPayload:
		return evaluateSkip(rec, p), nil
	case CalculationPayload:
		return false, applyCalculation(rec, rule, p)
	case TextTransformPayload:
		return false, applyTextTransform(rec, rule, p)
	case nil:
		return false, fmt.Errorf("rule has no conditions")
	default:
		return false, fmt.Errorf("unsupported rule type %q", rule.RuleType)
	}
}

// ============================================================================
// value_mapping
// ============================================================================

func applyValueMapping(rec *Record, rule AdvancedRule, mappings ValueMappingPayload) error {
	source := rec.Lookup(rule.SourceField)
	if source.IsEmpty() {
		return nil
	}
	text := source.Text()

	for _, m := range mappings {
		matched, err := matchValue(text, m)
		if err != nil {
			return err
		}
		if matched {
			rec.Set(rule.TargetField, String(m.ToValue))
			return nil
		}
	}
	return nil
}

func matchValue(text string, m ValueMapping) (bool, error) {
	switch m.matchType() {
	case MatchExact:
		return text == m.FromValue, nil
	case MatchContains:
		return strings.Contains(strings.ToLower(text), strings.ToLower(m.FromValue)), nil
	case MatchRegex:
		re, err := regexp.Compile("(?i)" + m.FromValue)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", m.FromValue, err)
		}
		return re.MatchString(text), nil
	default:
		return false, nil
	}
}

// ============================================================================
// conditional_skip
// ============================================================================

// evaluateSkip folds the conditions left to right. The first result seeds the
// accumulator; each later result is joined using the logic operator of the
// condition BEFORE it (AND when unset).
func evaluateSkip(rec *Record, conditions ConditionalSkipPayload) bool {
	if len(conditions) == 0 {
		return false
	}

	acc := evaluateCondition(rec, conditions[0])
	for i := 1; i < len(conditions); i++ {
		result := evaluateCondition(rec, conditions[i])
		if conditions[i-1].joinsWithOr() {
			acc = acc || result
		} else {
			acc = acc && result
		}
	}
	return acc
}

func evaluateCondition(rec *Record, c SkipCondition) bool {
	field := rec.Lookup(c.Field)

	switch c.Operator {
	case OpEquals:
		return looseEquals(field, c.Value)
	case OpNotEquals:
		return !looseEquals(field, c.Value)
	case OpGreaterThan, OpLessThan:
		left, ok := strictFloat(field.Text())
		if field.IsMissing() || !ok {
			return false
		}
		right, ok := strictFloat(c.Value)
		if !ok {
			return false
		}
		if c.Operator == OpGreaterThan {
			return left > right
		}
		return left < right
	case OpContains:
		return strings.Contains(strings.ToLower(field.Text()), strings.ToLower(c.Value))
	case OpNotContains:
		return !strings.Contains(strings.ToLower(field.Text()), strings.ToLower(c.Value))
	default:
		return false
	}
}

// looseEquals compares a record value with condition text. Numbers compare
// numerically, with blank text reading as zero; everything else compares by
// text. A missing field equals nothing.
func looseEquals(field Value, text string) bool {
	switch {
	case field.IsMissing():
		return false
	case field.IsNumeric():
		f, _ := field.Float()
		t := strings.TrimSpace(text)
		if t == "" {
			return f == 0
		}
		other, ok := strictFloat(t)
		return ok && f == other
	default:
		return field.Text() == text
	}
}

func strictFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

// ============================================================================
// calculation
// ============================================================================

func applyCalculation(rec *Record, rule AdvancedRule, calc CalculationPayload) error {
	formula := SubstituteVariables(calc.Formula, calc.Variables, rec)
	result, err := evaluate(formula)
	if err != nil {
		return fmt.Errorf("calculation failed: %s: %w", formula, err)
	}
	rec.Set(rule.TargetField, numberValue(result))
	return nil
}

// numberValue keeps whole results as integers so they compare and render
// the way a human wrote them.
func numberValue(f float64) Value {
	if f > -1<<53 && f < 1<<53 && f == math.Trunc(f) {
		return Integer(int64(f))
	}
	return Decimal(f)
}

// ============================================================================
// text_transform
// ============================================================================

func applyTextTransform(rec *Record, rule AdvancedRule, t TextTransformPayload) error {
	source := rec.Lookup(rule.SourceField)
	if source.IsEmpty() {
		return nil
	}

	out, err := transformText(source.Text(), t)
	if err != nil {
		return err
	}
	rec.Set(rule.TargetField, String(out))
	return nil
}

func transformText(s string, t TextTransformPayload) (string, error) {
	switch t.TransformType {
	case TransformUppercase:
		return strings.ToUpper(s), nil
	case TransformLowercase:
		return strings.ToLower(s), nil
	case TransformTrim:
		return strings.TrimSpace(s), nil
	case TransformReplace:
		from := t.Parameters.String("from")
		if from == "" {
			return "", fmt.Errorf("replace requires a non-empty 'from'")
		}
		re, err := regexp.Compile(from)
		if err != nil {
			return "", fmt.Errorf("invalid pattern %q: %w", from, err)
		}
		return re.ReplaceAllString(s, t.Parameters.String("to")), nil
	case TransformSubstring:
		return substring(s, t.Parameters), nil
	case TransformCustom:
		return customTransform(s, t.Parameters.String("type"))
	default:
		return "", fmt.Errorf("unknown transform type %q", t.TransformType)
	}
}

// substring slices by character. Bounds are clamped to [0, len], a missing
// end means the end of the text, and reversed bounds are swapped.
func substring(s string, params TransformParameters) string {
	runes := []rune(s)
	n := len(runes)

	start, _ := params.Int("start")
	end, ok := params.Int("end")
	if !ok {
		end = n
	}
	start = clamp(start, 0, n)
	end = clamp(end, 0, n)
	if start > end {
		start, end = end, start
	}
	return string(runes[start:end])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func customTransform(s, name string) (string, error) {
	switch name {
	case CustomNormalizePartNumber:
		return normalizePartNumber(s), nil
	default:
		return "", fmt.Errorf("unknown custom transform %q", name)
	}
}

func normalizePartNumber(s string) string {
	upper := strings.ToUpper(s)
	var b strings.Builder
	b.Grow(utf8.RuneCountInString(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
