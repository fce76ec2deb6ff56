package mapping

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConditions(t *testing.T) {
	t.Run("calculation bare and wrapped", func(t *testing.T) {
		bare, err := DecodeConditions(RuleCalculation, []byte(`{"formula":"a*2","variables":["a"]}`))
		require.NoError(t, err)
		wrapped, err := DecodeConditions(RuleCalculation, []byte(`[{"formula":"a*2","variables":["a"]}]`))
		require.NoError(t, err)
		assert.Equal(t, bare, wrapped)
		assert.Equal(t, CalculationPayload{Formula: "a*2", Variables: []string{"a"}}, bare)
	})

	t.Run("value mapping list", func(t *testing.T) {
		p, err := DecodeConditions(RuleValueMapping, []byte(`[{"from_value":"A","to_value":"B","match_type":"contains"},{"from_value":"C","to_value":"D"}]`))
		require.NoError(t, err)
		vm, ok := p.(ValueMappingPayload)
		require.True(t, ok)
		assert.Len(t, vm, 2)
		assert.Equal(t, MatchExact, vm[1].matchType())
	})

	t.Run("skip condition numeric value", func(t *testing.T) {
		p, err := DecodeConditions(RuleConditionalSkip, []byte(`{"field":"stock","operator":"equals","value":0}`))
		require.NoError(t, err)
		assert.Equal(t, ConditionalSkipPayload{{Field: "stock", Operator: OpEquals, Value: "0"}}, p)
	})

	t.Run("text transform parameters", func(t *testing.T) {
		p, err := DecodeConditions(RuleTextTransform, []byte(`[{"transform_type":"substring","parameters":{"start":1,"end":3}}]`))
		require.NoError(t, err)
		tt := p.(TextTransformPayload)
		start, ok := tt.Parameters.Int("start")
		assert.True(t, ok)
		assert.Equal(t, 1, start)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := DecodeConditions("lookup", []byte(`[]`))
		assert.ErrorIs(t, err, ErrInvalidRule)
	})

	t.Run("empty wrapped single", func(t *testing.T) {
		_, err := DecodeConditions(RuleCalculation, []byte(`[]`))
		assert.ErrorIs(t, err, ErrInvalidRule)
	})
}

func TestEncodeConditions_WrapsSinglePayloads(t *testing.T) {
	b, err := EncodeConditions(CalculationPayload{Formula: "a", Variables: []string{"a"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"formula":"a","variables":["a"]}]`, string(b))

	b, err = EncodeConditions(ValueMappingPayload{{FromValue: "x", ToValue: "y", MatchType: MatchExact}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"from_value":"x","to_value":"y","match_type":"exact"}]`, string(b))
}

func TestAdvancedRule_UnmarshalJSON(t *testing.T) {
	var r AdvancedRule
	err := json.Unmarshal([]byte(`{
		"id": 7, "supplier": "acme", "rule_name": "norm", "rule_type": "text_transform",
		"source_field": "supplier_part_no", "target_field": "supplier_part_no",
		"conditions": {"transform_type": "custom", "parameters": {"type": "normalize_part_number"}},
		"priority": 2, "is_active": true
	}`), &r)
	require.NoError(t, err)

	assert.Equal(t, int64(7), r.ID)
	assert.Equal(t, RuleTextTransform, r.RuleType)
	require.NoError(t, r.Validate())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"conditions":{"transform_type":"custom"`)
}

func TestAdvancedRule_Validate(t *testing.T) {
	base := func() AdvancedRule {
		return AdvancedRule{
			Supplier: "acme", RuleName: "r", RuleType: RuleCalculation,
			TargetField: "price",
			Conditions:  CalculationPayload{Formula: "cost * (rate - 1)", Variables: []string{"cost", "rate"}},
		}
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*AdvancedRule)
	}{
		{"no supplier", func(r *AdvancedRule) { r.Supplier = "" }},
		{"no name", func(r *AdvancedRule) { r.RuleName = " " }},
		{"unknown type", func(r *AdvancedRule) { r.RuleType = "lookup" }},
		{"payload mismatch", func(r *AdvancedRule) { r.Conditions = ValueMappingPayload{{FromValue: "a"}} }},
		{"no target", func(r *AdvancedRule) { r.TargetField = "" }},
		{"empty formula", func(r *AdvancedRule) { r.Conditions = CalculationPayload{Formula: " "} }},
		{"undeclared variable", func(r *AdvancedRule) {
			r.Conditions = CalculationPayload{Formula: "cost * rate", Variables: []string{"cost"}}
		}},
		{"malformed formula", func(r *AdvancedRule) {
			r.Conditions = CalculationPayload{Formula: "cost *", Variables: []string{"cost"}}
		}},
		{"negative priority", func(r *AdvancedRule) { r.Priority = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(&r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidRule)
		})
	}
}

func TestPayload_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{"mapping ok", ValueMappingPayload{{FromValue: "a", ToValue: "b"}}, false},
		{"mapping empty list", ValueMappingPayload{}, true},
		{"mapping bad regex", ValueMappingPayload{{FromValue: "([", MatchType: MatchRegex}}, true},
		{"mapping bad match type", ValueMappingPayload{{FromValue: "a", MatchType: "fuzzy"}}, true},
		{"skip ok", ConditionalSkipPayload{{Field: "a", Operator: OpEquals, LogicOperator: "or"}}, false},
		{"skip empty", ConditionalSkipPayload{}, true},
		{"skip bad operator", ConditionalSkipPayload{{Field: "a", Operator: "between"}}, true},
		{"skip bad logic", ConditionalSkipPayload{{Field: "a", Operator: OpEquals, LogicOperator: "XOR"}}, true},
		{"division by zero allowed at save", CalculationPayload{Formula: "a / (b - 1)", Variables: []string{"a", "b"}}, false},
		{"transform ok", TextTransformPayload{TransformType: TransformTrim}, false},
		{"transform replace needs from", TextTransformPayload{TransformType: TransformReplace}, true},
		{"transform replace pattern must compile", TextTransformPayload{TransformType: TransformReplace, Parameters: TransformParameters{"from": "[a-"}}, true},
		{"transform replace pattern", TextTransformPayload{TransformType: TransformReplace, Parameters: TransformParameters{"from": "[-/]"}}, false},
		{"transform substring needs start", TextTransformPayload{TransformType: TransformSubstring}, true},
		{"transform unknown custom", TextTransformPayload{TransformType: TransformCustom, Parameters: TransformParameters{"type": "x"}}, true},
		{"transform unknown", TextTransformPayload{TransformType: "reverse"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRule)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewRuleSet(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	advanced := []AdvancedRule{
		{ID: 1, RuleName: "late", Priority: 1, CreatedAt: t0.Add(time.Hour), IsActive: true},
		{ID: 2, RuleName: "off", Priority: 0, CreatedAt: t0, IsActive: false},
		{ID: 3, RuleName: "early", Priority: 1, CreatedAt: t0, IsActive: true},
		{ID: 4, RuleName: "first", Priority: 0, CreatedAt: t0.Add(2 * time.Hour), IsActive: true},
	}
	basic := []MappingRule{{ID: 2, Priority: 1}, {ID: 1, Priority: 1}}

	rs := NewRuleSet("acme", basic, advanced)

	var names []string
	for _, r := range rs.Advanced {
		names = append(names, r.RuleName)
	}
	assert.Equal(t, []string{"first", "early", "late"}, names)
	assert.Equal(t, int64(1), rs.Basic[0].ID)
	assert.Equal(t, int64(2), basic[0].ID, "input slice must not be reordered")
	assert.False(t, rs.Empty())
	assert.True(t, RuleSet{}.Empty())
}
