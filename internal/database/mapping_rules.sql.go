package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const mappingRuleColumns = `id, supplier, file_field, db_field, type, condition, fixed_value, priority, created_at, updated_at`

func scanMappingRule(row pgx.Row) (MappingRule, error) {
	var i MappingRule
	err := row.Scan(
		&i.ID,
		&i.Supplier,
		&i.FileField,
		&i.DbField,
		&i.Type,
		&i.Condition,
		&i.FixedValue,
		&i.Priority,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectMappingRules(rows pgx.Rows) ([]MappingRule, error) {
	defer rows.Close()
	var items []MappingRule
	for rows.Next() {
		i, err := scanMappingRule(rows)
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

const listMappingRules = `-- name: ListMappingRules :many
SELECT ` + mappingRuleColumns + `
FROM mapping_rules
WHERE ($1::text = '' OR supplier = $1)
ORDER BY supplier, priority ASC, id ASC
`

// ListMappingRules returns all rules, or one supplier's when supplier is set.
func (q *Queries) ListMappingRules(ctx context.Context, supplier string) ([]MappingRule, error) {
	rows, err := q.db.Query(ctx, listMappingRules, supplier)
	if err != nil {
		return nil, err
	}
	return collectMappingRules(rows)
}

const getMappingRule = `-- name: GetMappingRule :one
SELECT ` + mappingRuleColumns + `
FROM mapping_rules
WHERE id = $1
`

func (q *Queries) GetMappingRule(ctx context.Context, id int64) (MappingRule, error) {
	return scanMappingRule(q.db.QueryRow(ctx, getMappingRule, id))
}

const listRuleSuppliers = `-- name: ListRuleSuppliers :many
SELECT supplier, COUNT(*) AS rule_count
FROM mapping_rules
GROUP BY supplier
ORDER BY supplier
`

func (q *Queries) ListRuleSuppliers(ctx context.Context) ([]SupplierRuleCount, error) {
	rows, err := q.db.Query(ctx, listRuleSuppliers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SupplierRuleCount
	for rows.Next() {
		var i SupplierRuleCount
		if err := rows.Scan(&i.Supplier, &i.RuleCount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteMappingRulesBySupplier = `-- name: DeleteMappingRulesBySupplier :execrows
DELETE FROM mapping_rules WHERE supplier = $1
`

func (q *Queries) DeleteMappingRulesBySupplier(ctx context.Context, supplier string) (int64, error) {
	result, err := q.db.Exec(ctx, deleteMappingRulesBySupplier, supplier)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const insertMappingRule = `-- name: InsertMappingRule :one
INSERT INTO mapping_rules (supplier, file_field, db_field, type, condition, fixed_value, priority)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + mappingRuleColumns

type InsertMappingRuleParams struct {
	Supplier   string
	FileField  string
	DbField    string
	Type       pgtype.Text
	Condition  pgtype.Text
	FixedValue pgtype.Text
	Priority   int32
}

func (q *Queries) InsertMappingRule(ctx context.Context, arg InsertMappingRuleParams) (MappingRule, error) {
	row := q.db.QueryRow(ctx, insertMappingRule,
		arg.Supplier,
		arg.FileField,
		arg.DbField,
		arg.Type,
		arg.Condition,
		arg.FixedValue,
		arg.Priority,
	)
	return scanMappingRule(row)
}

const updateMappingRule = `-- name: UpdateMappingRule :one
UPDATE mapping_rules
SET file_field = $2, db_field = $3, type = $4, condition = $5, fixed_value = $6, priority = $7,
    updated_at = now()
WHERE id = $1
RETURNING ` + mappingRuleColumns

type UpdateMappingRuleParams struct {
	ID         int64
	FileField  string
	DbField    string
	Type       pgtype.Text
	Condition  pgtype.Text
	FixedValue pgtype.Text
	Priority   int32
}

func (q *Queries) UpdateMappingRule(ctx context.Context, arg UpdateMappingRuleParams) (MappingRule, error) {
	row := q.db.QueryRow(ctx, updateMappingRule,
		arg.ID,
		arg.FileField,
		arg.DbField,
		arg.Type,
		arg.Condition,
		arg.FixedValue,
		arg.Priority,
	)
	return scanMappingRule(row)
}

const deleteMappingRule = `-- name: DeleteMappingRule :one
DELETE FROM mapping_rules WHERE id = $1
RETURNING supplier
`

// DeleteMappingRule removes one rule and returns its supplier.
func (q *Queries) DeleteMappingRule(ctx context.Context, id int64) (string, error) {
	var supplier string
	err := q.db.QueryRow(ctx, deleteMappingRule, id).Scan(&supplier)
	return supplier, err
}
