package database

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const advancedRuleColumns = `id, supplier, rule_name, rule_type, source_field, target_field, conditions, priority, is_active, created_at, updated_at`

func scanAdvancedRule(row pgx.Row) (AdvancedMappingRule, error) {
	var i AdvancedMappingRule
	err := row.Scan(
		&i.ID,
		&i.Supplier,
		&i.RuleName,
		&i.RuleType,
		&i.SourceField,
		&i.TargetField,
		&i.Conditions,
		&i.Priority,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listActiveAdvancedRules = `-- name: ListActiveAdvancedRules :many
SELECT ` + advancedRuleColumns + `
FROM advanced_mapping_rules
WHERE supplier = $1 AND is_active = true
ORDER BY priority ASC, created_at ASC, id ASC
`

func (q *Queries) ListActiveAdvancedRules(ctx context.Context, supplier string) ([]AdvancedMappingRule, error) {
	rows, err := q.db.Query(ctx, listActiveAdvancedRules, supplier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AdvancedMappingRule
	for rows.Next() {
		i, err := scanAdvancedRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getAdvancedRule = `-- name: GetAdvancedRule :one
SELECT ` + advancedRuleColumns + `
FROM advanced_mapping_rules
WHERE id = $1
`

func (q *Queries) GetAdvancedRule(ctx context.Context, id int64) (AdvancedMappingRule, error) {
	return scanAdvancedRule(q.db.QueryRow(ctx, getAdvancedRule, id))
}

const insertAdvancedRule = `-- name: InsertAdvancedRule :one
INSERT INTO advanced_mapping_rules
    (supplier, rule_name, rule_type, source_field, target_field, conditions, priority, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + advancedRuleColumns

type InsertAdvancedRuleParams struct {
	Supplier    string
	RuleName    string
	RuleType    string
	SourceField string
	TargetField string
	Conditions  []byte
	Priority    int32
	IsActive    bool
}

func (q *Queries) InsertAdvancedRule(ctx context.Context, arg InsertAdvancedRuleParams) (AdvancedMappingRule, error) {
	row := q.db.QueryRow(ctx, insertAdvancedRule,
		arg.Supplier,
		arg.RuleName,
		arg.RuleType,
		arg.SourceField,
		arg.TargetField,
		arg.Conditions,
		arg.Priority,
		arg.IsActive,
	)
	return scanAdvancedRule(row)
}

const updateAdvancedRule = `-- name: UpdateAdvancedRule :one
UPDATE advanced_mapping_rules
SET rule_name = $2, source_field = $3, target_field = $4, conditions = $5,
    priority = $6, is_active = $7, updated_at = now()
WHERE id = $1
RETURNING ` + advancedRuleColumns

type UpdateAdvancedRuleParams struct {
	ID          int64
	RuleName    string
	SourceField string
	TargetField string
	Conditions  []byte
	Priority    int32
	IsActive    bool
}

func (q *Queries) UpdateAdvancedRule(ctx context.Context, arg UpdateAdvancedRuleParams) (AdvancedMappingRule, error) {
	row := q.db.QueryRow(ctx, updateAdvancedRule,
		arg.ID,
		arg.RuleName,
		arg.SourceField,
		arg.TargetField,
		arg.Conditions,
		arg.Priority,
		arg.IsActive,
	)
	return scanAdvancedRule(row)
}

const deactivateAdvancedRule = `-- name: DeactivateAdvancedRule :one
UPDATE advanced_mapping_rules
SET is_active = false, updated_at = now()
WHERE id = $1
RETURNING supplier
`

// DeactivateAdvancedRule soft-deletes a rule and returns its supplier.
func (q *Queries) DeactivateAdvancedRule(ctx context.Context, id int64) (string, error) {
	var supplier string
	err := q.db.QueryRow(ctx, deactivateAdvancedRule, id).Scan(&supplier)
	return supplier, err
}
