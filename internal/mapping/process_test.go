package mapping

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func endToEndRules() RuleSet {
	basic := []MappingRule{
		{ID: 1, FileField: "part_number", DBField: "supplier_part_no", Type: "string", Priority: 1},
		{ID: 2, FileField: "maker_name", DBField: "supplier_maker", Priority: 2},
		{ID: 3, FileField: "stock_qty", DBField: "stock", Type: "integer", Priority: 3},
	}
	advanced := []AdvancedRule{
		{
			ID: 1, RuleName: "usd to jpy", RuleType: RuleCalculation,
			SourceField: "unit_price_usd", TargetField: "price",
			Conditions: CalculationPayload{Formula: "unit_price_usd*150", Variables: []string{"unit_price_usd"}},
			Priority:   1, IsActive: true,
		},
		{
			ID: 2, RuleName: "normalize part", RuleType: RuleTextTransform,
			SourceField: "supplier_part_no", TargetField: "supplier_part_no",
			Conditions: TextTransformPayload{
				TransformType: TransformCustom,
				Parameters:    TransformParameters{"type": CustomNormalizePartNumber},
			},
			Priority: 2, IsActive: true,
		},
	}
	return NewRuleSet("acme", basic, advanced)
}

func endToEndRow(rowNo int) RawRow {
	return NewRawRow(rowNo, map[string]string{
		"part_number":    "abc-123",
		"maker_name":     "SONY",
		"stock_qty":      "10",
		"unit_price_usd": "2",
	})
}

func TestBasicThenAdvanced_EndToEnd(t *testing.T) {
	rs := endToEndRules()

	basic := ApplyBasic(endToEndRow(1), rs.Basic)
	adv := NewEngine(nil).ApplyAdvanced(basic.Record, rs.Advanced)

	assert.Empty(t, basic.Warnings)
	assert.Empty(t, adv.Errors)
	assert.False(t, adv.Skip)
	assert.Equal(t, map[string]Value{
		"supplier_part_no": String("ABC123"),
		"supplier_maker":   String("SONY"),
		"stock":            Integer(10),
		"price":            Integer(300),
	}, adv.Record.Map())
}

func TestProcessor_ProcessRow(t *testing.T) {
	p := NewProcessor(endToEndRules(), WithDefaults(map[string]Value{"supplier_id": String("acme")}))

	out := p.ProcessRow(endToEndRow(5))

	assert.Equal(t, 5, out.RowNo)
	assert.True(t, out.Accepted())
	assert.Empty(t, out.Errors())
	assert.Equal(t, "acme", out.Record.Get("supplier_id").Text())
}

func TestProcessor_ProcessRow_ValidationFailure(t *testing.T) {
	p := NewProcessor(endToEndRules())

	out := p.ProcessRow(endToEndRow(2))

	assert.False(t, out.Accepted())
	assert.Equal(t, []string{"supplier_id is required"}, out.ValidationErrors)
}

func TestProcessor_ProcessRow_SkippedRowIsNotValidated(t *testing.T) {
	rs := NewRuleSet("acme", nil, []AdvancedRule{{
		ID: 1, RuleName: "skip all", RuleType: RuleConditionalSkip, IsActive: true,
		Conditions: ConditionalSkipPayload{{Field: "status", Operator: OpEquals, Value: "discontinued"}},
	}})
	p := NewProcessor(rs)

	out := p.ProcessRow(NewRawRow(1, map[string]string{"status": "discontinued"}))

	assert.True(t, out.Skipped)
	assert.False(t, out.Accepted())
	assert.Empty(t, out.ValidationErrors)
}

func TestProcessor_RuleErrorsDoNotRejectRow(t *testing.T) {
	rs := NewRuleSet("acme",
		[]MappingRule{
			{ID: 1, FileField: "id", DBField: "supplier_id"},
			{ID: 2, FileField: "part", DBField: "supplier_part_no"},
		},
		[]AdvancedRule{{
			ID: 1, RuleName: "bad calc", RuleType: RuleCalculation, TargetField: "price", IsActive: true,
			Conditions: CalculationPayload{Formula: "x / 0", Variables: []string{"x"}},
		}},
	)

	out := NewProcessor(rs).ProcessRow(NewRawRow(1, map[string]string{"id": "acme", "part": "P1"}))

	assert.True(t, out.Accepted())
	require.Len(t, out.RuleErrors, 1)
	assert.Contains(t, out.RuleErrors[0], "Rule 'bad calc' failed")
}

func TestProcessor_ProcessAll_KeepsOrder(t *testing.T) {
	p := NewProcessor(endToEndRules(), WithDefaults(map[string]Value{"supplier_id": String("acme")}))

	rows := make([]RawRow, 200)
	for i := range rows {
		rows[i] = NewRawRow(i+1, map[string]string{
			"part_number": fmt.Sprintf("p-%d", i+1),
			"stock_qty":   fmt.Sprint(i),
		})
	}

	for _, workers := range []int{1, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			outs, err := p.ProcessAll(context.Background(), rows, workers)
			require.NoError(t, err)
			require.Len(t, outs, len(rows))
			for i, o := range outs {
				assert.Equal(t, i+1, o.RowNo)
				assert.Equal(t, fmt.Sprintf("P%d", i+1), o.Record.Get("supplier_part_no").Text())
			}
		})
	}
}

func TestProcessor_ProcessAll_Cancelled(t *testing.T) {
	p := NewProcessor(endToEndRules())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessAll(ctx, []RawRow{endToEndRow(1), endToEndRow(2)}, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	outs := []RowOutcome{
		{RowNo: 1},
		{RowNo: 2, Skipped: true},
		{RowNo: 3, ValidationErrors: []string{"supplier_id is required"}},
		{RowNo: 4, RuleErrors: []string{"Rule 'x' failed: y"}},
	}

	assert.Equal(t, Summary{Total: 4, Accepted: 2, Skipped: 1, Errors: 1}, Summarize(outs))
}
