package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	db "github.com/JonMunkholm/backoffice/internal/database"
	"github.com/JonMunkholm/backoffice/internal/mapping"
)

// PGStore keeps rules in the mapping_rules and advanced_mapping_rules tables.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a store over pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// ----------------------------------------------------------------------------
// Basic rules
// ----------------------------------------------------------------------------

func (s *PGStore) BasicRules(ctx context.Context, supplier string) ([]mapping.MappingRule, error) {
	rows, err := db.New(s.pool).ListMappingRules(ctx, supplier)
	if err != nil {
		return nil, fmt.Errorf("list mapping rules: %w", err)
	}
	out := make([]mapping.MappingRule, len(rows))
	for i, r := range rows {
		out[i] = basicFromRow(r)
	}
	return out, nil
}

func (s *PGStore) BasicRule(ctx context.Context, id int64) (mapping.MappingRule, error) {
	row, err := db.New(s.pool).GetMappingRule(ctx, id)
	if err != nil {
		return mapping.MappingRule{}, notFound(err)
	}
	return basicFromRow(row), nil
}

func (s *PGStore) Suppliers(ctx context.Context) ([]SupplierSummary, error) {
	rows, err := db.New(s.pool).ListRuleSuppliers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	out := make([]SupplierSummary, len(rows))
	for i, r := range rows {
		out[i] = SupplierSummary{Supplier: r.Supplier, RuleCount: r.RuleCount}
	}
	return out, nil
}

func (s *PGStore) ReplaceBasicRules(ctx context.Context, supplier string, rules []mapping.MappingRule) ([]mapping.MappingRule, error) {
	normalized, err := normalizeReplacement(supplier, rules)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	q := db.New(s.pool).WithTx(tx)
	if _, err := q.DeleteMappingRulesBySupplier(ctx, supplier); err != nil {
		return nil, fmt.Errorf("delete mapping rules: %w", err)
	}

	out := make([]mapping.MappingRule, 0, len(normalized))
	for _, r := range normalized {
		row, err := q.InsertMappingRule(ctx, db.InsertMappingRuleParams{
			Supplier:   supplier,
			FileField:  r.FileField,
			DbField:    r.DBField,
			Type:       pgText(r.Type),
			Condition:  pgText(r.Condition),
			FixedValue: pgText(r.FixedValue),
			Priority:   int32(r.Priority),
		})
		if err != nil {
			return nil, fmt.Errorf("insert mapping rule %s -> %s: %w", r.FileField, r.DBField, err)
		}
		out = append(out, basicFromRow(row))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (s *PGStore) SaveBasicRule(ctx context.Context, rule mapping.MappingRule) (mapping.MappingRule, error) {
	if err := rule.Validate(); err != nil {
		return mapping.MappingRule{}, err
	}
	row, err := db.New(s.pool).UpdateMappingRule(ctx, db.UpdateMappingRuleParams{
		ID:         rule.ID,
		FileField:  rule.FileField,
		DbField:    rule.DBField,
		Type:       pgText(rule.Type),
		Condition:  pgText(rule.Condition),
		FixedValue: pgText(rule.FixedValue),
		Priority:   int32(rule.Priority),
	})
	if err != nil {
		return mapping.MappingRule{}, notFound(err)
	}
	return basicFromRow(row), nil
}

func (s *PGStore) DeleteBasicRule(ctx context.Context, id int64) (string, error) {
	supplier, err := db.New(s.pool).DeleteMappingRule(ctx, id)
	if err != nil {
		return "", notFound(err)
	}
	return supplier, nil
}

// ----------------------------------------------------------------------------
// Advanced rules
// ----------------------------------------------------------------------------

func (s *PGStore) AdvancedRules(ctx context.Context, supplier string) ([]mapping.AdvancedRule, error) {
	rows, err := db.New(s.pool).ListActiveAdvancedRules(ctx, supplier)
	if err != nil {
		return nil, fmt.Errorf("list advanced rules: %w", err)
	}
	out := make([]mapping.AdvancedRule, 0, len(rows))
	for _, r := range rows {
		rule, err := advancedFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func (s *PGStore) AdvancedRule(ctx context.Context, id int64) (mapping.AdvancedRule, error) {
	row, err := db.New(s.pool).GetAdvancedRule(ctx, id)
	if err != nil {
		return mapping.AdvancedRule{}, notFound(err)
	}
	return advancedFromRow(row)
}

func (s *PGStore) CreateAdvancedRule(ctx context.Context, rule mapping.AdvancedRule) (mapping.AdvancedRule, error) {
	if err := rule.Validate(); err != nil {
		return mapping.AdvancedRule{}, err
	}
	cond, err := mapping.EncodeConditions(rule.Conditions)
	if err != nil {
		return mapping.AdvancedRule{}, err
	}
	row, err := db.New(s.pool).InsertAdvancedRule(ctx, db.InsertAdvancedRuleParams{
		Supplier:    rule.Supplier,
		RuleName:    rule.RuleName,
		RuleType:    string(rule.RuleType),
		SourceField: rule.SourceField,
		TargetField: rule.TargetField,
		Conditions:  cond,
		Priority:    int32(rule.Priority),
		IsActive:    rule.IsActive,
	})
	if err != nil {
		return mapping.AdvancedRule{}, fmt.Errorf("insert advanced rule: %w", err)
	}
	return advancedFromRow(row)
}

func (s *PGStore) SaveAdvancedRule(ctx context.Context, rule mapping.AdvancedRule) (mapping.AdvancedRule, error) {
	if err := rule.Validate(); err != nil {
		return mapping.AdvancedRule{}, err
	}
	cond, err := mapping.EncodeConditions(rule.Conditions)
	if err != nil {
		return mapping.AdvancedRule{}, err
	}
	row, err := db.New(s.pool).UpdateAdvancedRule(ctx, db.UpdateAdvancedRuleParams{
		ID:          rule.ID,
		RuleName:    rule.RuleName,
		SourceField: rule.SourceField,
		TargetField: rule.TargetField,
		Conditions:  cond,
		Priority:    int32(rule.Priority),
		IsActive:    rule.IsActive,
	})
	if err != nil {
		return mapping.AdvancedRule{}, notFound(err)
	}
	return advancedFromRow(row)
}

func (s *PGStore) DeactivateAdvancedRule(ctx context.Context, id int64) (string, error) {
	supplier, err := db.New(s.pool).DeactivateAdvancedRule(ctx, id)
	if err != nil {
		return "", notFound(err)
	}
	return supplier, nil
}

// ----------------------------------------------------------------------------
// Row conversion
// ----------------------------------------------------------------------------

func pgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func basicFromRow(r db.MappingRule) mapping.MappingRule {
	return mapping.MappingRule{
		ID:         r.ID,
		Supplier:   r.Supplier,
		FileField:  r.FileField,
		DBField:    r.DbField,
		Type:       r.Type.String,
		Condition:  r.Condition.String,
		FixedValue: r.FixedValue.String,
		Priority:   int(r.Priority),
		CreatedAt:  r.CreatedAt.Time,
		UpdatedAt:  r.UpdatedAt.Time,
	}
}

func advancedFromRow(r db.AdvancedMappingRule) (mapping.AdvancedRule, error) {
	ruleType := mapping.RuleType(r.RuleType)
	cond, err := mapping.DecodeConditions(ruleType, r.Conditions)
	if err != nil {
		return mapping.AdvancedRule{}, fmt.Errorf("advanced rule %d: %w", r.ID, err)
	}
	return mapping.AdvancedRule{
		ID:          r.ID,
		Supplier:    r.Supplier,
		RuleName:    r.RuleName,
		RuleType:    ruleType,
		SourceField: r.SourceField,
		TargetField: r.TargetField,
		Conditions:  cond,
		Priority:    int(r.Priority),
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt.Time,
		UpdatedAt:   r.UpdatedAt.Time,
	}, nil
}
