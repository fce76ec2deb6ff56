package rules

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/backoffice/internal/mapping"
)

const sampleRuleFile = `
suppliers:
  acme:
    basic:
      - file_field: part_number
        db_field: supplier_part_no
      - file_field: qty
        db_field: stock
        type: integer
    advanced:
      - rule_name: usd to jpy
        rule_type: calculation
        target_field: price
        conditions:
          formula: unit_price_usd * 150
          variables: [unit_price_usd]
      - rule_name: skip discontinued
        rule_type: conditional_skip
        priority: 2
        conditions:
          - field: status
            operator: equals
            value: discontinued
  bolt:
    basic:
      - file_field: maker
        db_field: supplier_maker
`

func TestLoadYAML(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.LoadYAML(ctx, strings.NewReader(sampleRuleFile)))

	set, err := Load(ctx, s, "acme")
	require.NoError(t, err)
	require.Len(t, set.Basic, 2)
	assert.Equal(t, "part_number", set.Basic[0].FileField)
	assert.Equal(t, 1, set.Basic[0].Priority)
	assert.Equal(t, 2, set.Basic[1].Priority)

	require.Len(t, set.Advanced, 2)
	calc := set.Advanced[0]
	assert.Equal(t, mapping.RuleCalculation, calc.RuleType)
	assert.Equal(t, 1, calc.Priority)
	assert.True(t, calc.IsActive)
	assert.Equal(t, mapping.CalculationPayload{
		Formula:   "unit_price_usd * 150",
		Variables: []string{"unit_price_usd"},
	}, calc.Conditions)

	skip := set.Advanced[1]
	assert.Equal(t, mapping.ConditionalSkipPayload{
		{Field: "status", Operator: mapping.OpEquals, Value: "discontinued"},
	}, skip.Conditions)

	sup, err := s.Suppliers(ctx)
	require.NoError(t, err)
	assert.Len(t, sup, 2)
}

func TestLoadYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "suppliers:\n  acme:\n    basics: []\n"},
		{"bad basic rule", "suppliers:\n  acme:\n    basic:\n      - db_field: stock\n"},
		{"bad rule type", "suppliers:\n  acme:\n    advanced:\n      - rule_name: x\n        rule_type: magic\n        conditions: {}\n"},
		{"bad formula", "suppliers:\n  acme:\n    advanced:\n      - rule_name: x\n        rule_type: calculation\n        target_field: price\n        conditions:\n          formula: price; drop\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewMemoryStore().LoadYAML(context.Background(), strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadYAML_Empty(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.LoadYAML(context.Background(), strings.NewReader("")))
	sup, err := s.Suppliers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sup)
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryStore()
	require.NoError(t, src.LoadYAML(ctx, strings.NewReader(sampleRuleFile)))
	want, err := Load(ctx, src, "acme")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, want))
	assert.NotContains(t, buf.String(), "id:")

	dst := NewMemoryStore()
	require.NoError(t, dst.LoadYAML(ctx, &buf))
	got, err := Load(ctx, dst, "acme")
	require.NoError(t, err)

	require.Len(t, got.Basic, len(want.Basic))
	for i := range want.Basic {
		assert.Equal(t, want.Basic[i].FileField, got.Basic[i].FileField)
		assert.Equal(t, want.Basic[i].DBField, got.Basic[i].DBField)
		assert.Equal(t, want.Basic[i].Type, got.Basic[i].Type)
		assert.Equal(t, want.Basic[i].Priority, got.Basic[i].Priority)
	}
	require.Len(t, got.Advanced, len(want.Advanced))
	for i := range want.Advanced {
		assert.Equal(t, want.Advanced[i].RuleName, got.Advanced[i].RuleName)
		assert.Equal(t, want.Advanced[i].Conditions, got.Advanced[i].Conditions)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRuleFile), 0o644))

	s, err := LoadFile(path)
	require.NoError(t, err)
	rules, err := s.BasicRules(context.Background(), "bolt")
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
