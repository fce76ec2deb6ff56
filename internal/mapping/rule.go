package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRule is wrapped by every rule validation failure.
var ErrInvalidRule = errors.New("invalid rule")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRule, fmt.Sprintf(format, args...))
}

// ============================================================================
// Basic rules
// ============================================================================

// MappingRule renames one supplier column into one normalized field.
type MappingRule struct {
	ID         int64     `json:"id" yaml:"id,omitempty"`
	Supplier   string    `json:"supplier" yaml:"supplier,omitempty"`
	FileField  string    `json:"file_field" yaml:"file_field"`
	DBField    string    `json:"db_field" yaml:"db_field"`
	Type       string    `json:"type,omitempty" yaml:"type,omitempty"`
	Condition  string    `json:"condition,omitempty" yaml:"condition,omitempty"`
	FixedValue string    `json:"fixed_value,omitempty" yaml:"fixed_value,omitempty"`
	Priority   int       `json:"priority" yaml:"priority,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero" yaml:"-"`
	UpdatedAt  time.Time `json:"updated_at,omitzero" yaml:"-"`
}

// HasFixedValue reports whether the rule overrides the file value.
func (r MappingRule) HasFixedValue() bool {
	return strings.TrimSpace(r.FixedValue) != ""
}

// Validate checks the fields a rule needs to be applied.
func (r MappingRule) Validate() error {
	if strings.TrimSpace(r.FileField) == "" {
		return invalid("file_field is required")
	}
	if strings.TrimSpace(r.DBField) == "" {
		return invalid("db_field is required")
	}
	if r.Priority < 0 {
		return invalid("priority must not be negative")
	}
	return nil
}

// SortBasic orders rules by priority, then id.
func SortBasic(rules []MappingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// ============================================================================
// Advanced rules
// ============================================================================

// RuleType selects the behavior and payload shape of an AdvancedRule.
type RuleType string

const (
	RuleValueMapping    RuleType = "value_mapping"
	RuleConditionalSkip RuleType = "conditional_skip"
	RuleCalculation     RuleType = "calculation"
	RuleTextTransform   RuleType = "text_transform"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleValueMapping, RuleConditionalSkip, RuleCalculation, RuleTextTransform:
		return true
	}
	return false
}

// Payload is the type-specific configuration of an AdvancedRule. The set of
// implementations is closed: ValueMappingPayload, ConditionalSkipPayload,
// CalculationPayload and TextTransformPayload.
type Payload interface {
	RuleType() RuleType
	Validate() error
}

// AdvancedRule is a higher-order rule applied after basic mapping.
type AdvancedRule struct {
	ID          int64     `json:"id"`
	Supplier    string    `json:"supplier"`
	RuleName    string    `json:"rule_name"`
	RuleType    RuleType  `json:"rule_type"`
	SourceField string    `json:"source_field"`
	TargetField string    `json:"target_field"`
	Conditions  Payload   `json:"-"`
	Priority    int       `json:"priority"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Validate checks the rule header and its payload.
func (r AdvancedRule) Validate() error {
	if strings.TrimSpace(r.Supplier) == "" {
		return invalid("supplier is required")
	}
	if strings.TrimSpace(r.RuleName) == "" {
		return invalid("rule_name is required")
	}
	if !r.RuleType.Valid() {
		return invalid("unknown rule_type %q", r.RuleType)
	}
	if r.Conditions == nil {
		return invalid("conditions are required")
	}
	if r.Conditions.RuleType() != r.RuleType {
		return invalid("conditions for %s given to a %s rule", r.Conditions.RuleType(), r.RuleType)
	}
	switch r.RuleType {
	case RuleValueMapping, RuleTextTransform:
		if strings.TrimSpace(r.SourceField) == "" {
			return invalid("source_field is required")
		}
		if strings.TrimSpace(r.TargetField) == "" {
			return invalid("target_field is required")
		}
	case RuleCalculation:
		if strings.TrimSpace(r.TargetField) == "" {
			return invalid("target_field is required")
		}
	}
	if r.Priority < 0 {
		return invalid("priority must not be negative")
	}
	return r.Conditions.Validate()
}

type advancedRuleJSON struct {
	ID          int64           `json:"id"`
	Supplier    string          `json:"supplier"`
	RuleName    string          `json:"rule_name"`
	RuleType    RuleType        `json:"rule_type"`
	SourceField string          `json:"source_field"`
	TargetField string          `json:"target_field"`
	Conditions  json.RawMessage `json:"conditions"`
	Priority    int             `json:"priority"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at,omitzero"`
	UpdatedAt   time.Time       `json:"updated_at,omitzero"`
}

// MarshalJSON renders list payloads as arrays and single payloads as objects.
func (r AdvancedRule) MarshalJSON() ([]byte, error) {
	var cond json.RawMessage = []byte("null")
	if r.Conditions != nil {
		b, err := json.Marshal(r.Conditions)
		if err != nil {
			return nil, err
		}
		cond = b
	}
	return json.Marshal(advancedRuleJSON{
		ID:          r.ID,
		Supplier:    r.Supplier,
		RuleName:    r.RuleName,
		RuleType:    r.RuleType,
		SourceField: r.SourceField,
		TargetField: r.TargetField,
		Conditions:  cond,
		Priority:    r.Priority,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	})
}

// UnmarshalJSON decodes conditions according to rule_type.
func (r *AdvancedRule) UnmarshalJSON(data []byte) error {
	var aux advancedRuleJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = AdvancedRule{
		ID:          aux.ID,
		Supplier:    aux.Supplier,
		RuleName:    aux.RuleName,
		RuleType:    aux.RuleType,
		SourceField: aux.SourceField,
		TargetField: aux.TargetField,
		Priority:    aux.Priority,
		IsActive:    aux.IsActive,
		CreatedAt:   aux.CreatedAt,
		UpdatedAt:   aux.UpdatedAt,
	}
	if len(aux.Conditions) == 0 || string(aux.Conditions) == "null" {
		return nil
	}
	p, err := DecodeConditions(aux.RuleType, aux.Conditions)
	if err != nil {
		return err
	}
	r.Conditions = p
	return nil
}

// EncodeConditions renders a payload in its stored form: always a JSON
// array, with single-object payloads wrapped in a one-element array.
func EncodeConditions(p Payload) ([]byte, error) {
	switch v := p.(type) {
	case ValueMappingPayload, ConditionalSkipPayload:
		return json.Marshal(v)
	case CalculationPayload, TextTransformPayload:
		return json.Marshal([]Payload{v})
	case nil:
		return nil, invalid("conditions are required")
	default:
		return nil, invalid("unsupported payload %T", p)
	}
}

// DecodeConditions parses a stored or submitted payload for ruleType. Single
// payloads are accepted bare or wrapped in an array; list payloads are
// accepted as an array or as a single element.
func DecodeConditions(ruleType RuleType, raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	isArray := len(raw) > 0 && raw[0] == '['

	switch ruleType {
	case RuleValueMapping:
		var p ValueMappingPayload
		if err := decodeList(raw, isArray, &p); err != nil {
			return nil, invalid("value_mapping conditions: %v", err)
		}
		return p, nil
	case RuleConditionalSkip:
		var p ConditionalSkipPayload
		if err := decodeList(raw, isArray, &p); err != nil {
			return nil, invalid("conditional_skip conditions: %v", err)
		}
		return p, nil
	case RuleCalculation:
		var p CalculationPayload
		if err := decodeSingle(raw, isArray, &p); err != nil {
			return nil, invalid("calculation conditions: %v", err)
		}
		return p, nil
	case RuleTextTransform:
		var p TextTransformPayload
		if err := decodeSingle(raw, isArray, &p); err != nil {
			return nil, invalid("text_transform conditions: %v", err)
		}
		return p, nil
	default:
		return nil, invalid("unknown rule_type %q", ruleType)
	}
}

func decodeList[S ~[]T, T any](raw []byte, isArray bool, out *S) error {
	if isArray {
		return json.Unmarshal(raw, out)
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return err
	}
	*out = S{one}
	return nil
}

func decodeSingle[T any](raw []byte, isArray bool, out *T) error {
	if !isArray {
		return json.Unmarshal(raw, out)
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		return err
	}
	if len(list) == 0 {
		return errors.New("empty payload")
	}
	*out = list[0]
	return nil
}

// SortAdvanced orders rules by priority, then creation order.
func SortAdvanced(rules []AdvancedRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// ============================================================================
// Payloads
// ============================================================================

// Match types for value mappings.
const (
	MatchExact    = "exact"
	MatchContains = "contains"
	MatchRegex    = "regex"
)

// ValueMapping rewrites one source value to one target value.
type ValueMapping struct {
	FromValue string `json:"from_value" yaml:"from_value"`
	ToValue   string `json:"to_value" yaml:"to_value"`
	MatchType string `json:"match_type,omitempty" yaml:"match_type,omitempty"`
}

func (m ValueMapping) matchType() string {
	if m.MatchType == "" {
		return MatchExact
	}
	return m.MatchType
}

// ValueMappingPayload is scanned in order; the first match wins.
type ValueMappingPayload []ValueMapping

func (ValueMappingPayload) RuleType() RuleType { return RuleValueMapping }

func (p ValueMappingPayload) Validate() error {
	if len(p) == 0 {
		return invalid("at least one mapping is required")
	}
	for i, m := range p {
		if m.FromValue == "" {
			return invalid("mapping %d: from_value is required", i+1)
		}
		switch m.matchType() {
		case MatchExact, MatchContains:
		case MatchRegex:
			if _, err := regexp.Compile("(?i)" + m.FromValue); err != nil {
				return invalid("mapping %d: bad pattern: %v", i+1, err)
			}
		default:
			return invalid("mapping %d: unknown match_type %q", i+1, m.MatchType)
		}
	}
	return nil
}

// Skip condition operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
	OpNotContains = "not_contains"
)

// SkipCondition is one comparison in a conditional_skip rule. LogicOperator
// joins this condition's result to the NEXT condition's.
type SkipCondition struct {
	Field         string `json:"field" yaml:"field"`
	Operator      string `json:"operator" yaml:"operator"`
	Value         string `json:"value" yaml:"value"`
	LogicOperator string `json:"logic_operator,omitempty" yaml:"logic_operator,omitempty"`
}

// UnmarshalJSON accepts numbers and booleans for value.
func (c *SkipCondition) UnmarshalJSON(data []byte) error {
	var aux struct {
		Field         string `json:"field"`
		Operator      string `json:"operator"`
		Value         Value  `json:"value"`
		LogicOperator string `json:"logic_operator"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = SkipCondition{
		Field:         aux.Field,
		Operator:      aux.Operator,
		Value:         aux.Value.Text(),
		LogicOperator: aux.LogicOperator,
	}
	return nil
}

func (c SkipCondition) joinsWithOr() bool {
	return strings.EqualFold(strings.TrimSpace(c.LogicOperator), "OR")
}

// ConditionalSkipPayload is folded left to right into one skip decision.
type ConditionalSkipPayload []SkipCondition

func (ConditionalSkipPayload) RuleType() RuleType { return RuleConditionalSkip }

func (p ConditionalSkipPayload) Validate() error {
	if len(p) == 0 {
		return invalid("at least one condition is required")
	}
	for i, c := range p {
		if strings.TrimSpace(c.Field) == "" {
			return invalid("condition %d: field is required", i+1)
		}
		switch c.Operator {
		case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains, OpNotContains:
		default:
			return invalid("condition %d: unknown operator %q", i+1, c.Operator)
		}
		switch strings.ToUpper(strings.TrimSpace(c.LogicOperator)) {
		case "", "AND", "OR":
		default:
			return invalid("condition %d: logic_operator must be AND or OR", i+1)
		}
	}
	return nil
}

// CalculationPayload computes a target field from an arithmetic formula.
type CalculationPayload struct {
	Formula   string   `json:"formula" yaml:"formula"`
	Variables []string `json:"variables" yaml:"variables"`
}

func (CalculationPayload) RuleType() RuleType { return RuleCalculation }

func (p CalculationPayload) Validate() error {
	if strings.TrimSpace(p.Formula) == "" {
		return invalid("formula is required")
	}
	probe := NewRecord(0)
	for i, v := range p.Variables {
		if strings.TrimSpace(v) == "" {
			return invalid("variable %d is empty", i+1)
		}
		probe.Set(v, Integer(1))
	}
	if err := checkFormula(SubstituteVariables(p.Formula, p.Variables, probe)); err != nil {
		return invalid("formula %q: %v", p.Formula, err)
	}
	return nil
}

// Text transform types.
const (
	TransformUppercase = "uppercase"
	TransformLowercase = "lowercase"
	TransformTrim      = "trim"
	TransformReplace   = "replace"
	TransformSubstring = "substring"
	TransformCustom    = "custom"
)

// CustomNormalizePartNumber upper-cases and keeps only [A-Z0-9].
const CustomNormalizePartNumber = "normalize_part_number"

// TextTransformPayload applies one string transform.
type TextTransformPayload struct {
	TransformType string              `json:"transform_type" yaml:"transform_type"`
	Parameters    TransformParameters `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

func (TextTransformPayload) RuleType() RuleType { return RuleTextTransform }

func (p TextTransformPayload) Validate() error {
	switch p.TransformType {
	case TransformUppercase, TransformLowercase, TransformTrim:
	case TransformReplace:
		from := p.Parameters.String("from")
		if from == "" {
			return invalid("replace requires parameters.from")
		}
		if _, err := regexp.Compile(from); err != nil {
			return invalid("replace parameters.from is not a valid pattern: %v", err)
		}
	case TransformSubstring:
		if _, ok := p.Parameters.Int("start"); !ok {
			return invalid("substring requires a numeric parameters.start")
		}
	case TransformCustom:
		if name := p.Parameters.String("type"); name != CustomNormalizePartNumber {
			return invalid("unknown custom transform %q", name)
		}
	default:
		return invalid("unknown transform_type %q", p.TransformType)
	}
	return nil
}

// TransformParameters is the free-form parameter bag of a text transform.
type TransformParameters map[string]any

// String returns parameter key as text. Absent keys yield "".
func (p TransformParameters) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

// Int returns parameter key as an integer, truncating fractions.
func (p TransformParameters) Int(key string) (int, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case json.Number:
		f, err := x.Float64()
		return int(f), err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return int(f), err == nil
	default:
		return 0, false
	}
}

// ============================================================================
// Rule sets
// ============================================================================

// RuleSet is the immutable snapshot of one supplier's rules used for an import
// or a test call.
type RuleSet struct {
	Supplier string
	Basic    []MappingRule
	Advanced []AdvancedRule
}

// NewRuleSet copies and orders the given rules. Inactive advanced rules are
// dropped.
func NewRuleSet(supplier string, basic []MappingRule, advanced []AdvancedRule) RuleSet {
	b := append([]MappingRule(nil), basic...)
	SortBasic(b)

	a := make([]AdvancedRule, 0, len(advanced))
	for _, r := range advanced {
		if r.IsActive {
			a = append(a, r)
		}
	}
	SortAdvanced(a)

	return RuleSet{Supplier: supplier, Basic: b, Advanced: a}
}

// Empty reports whether the set has no rules at all.
func (rs RuleSet) Empty() bool {
	return len(rs.Basic) == 0 && len(rs.Advanced) == 0
}
