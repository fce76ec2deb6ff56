package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type MappingRule struct {
	ID         int64
	Supplier   string
	FileField  string
	DbField    string
	Type       pgtype.Text
	Condition  pgtype.Text
	FixedValue pgtype.Text
	Priority   int32
	CreatedAt  pgtype.Timestamptz
	UpdatedAt  pgtype.Timestamptz
}

type AdvancedMappingRule struct {
	ID          int64
	Supplier    string
	RuleName    string
	RuleType    string
	SourceField string
	TargetField string
	Conditions  []byte
	Priority    int32
	IsActive    bool
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

type ImportManagement struct {
	ImportNo     int64
	Supplier     string
	FileName     pgtype.Text
	FileType     pgtype.Text
	TotalRows    pgtype.Int4
	SuccessRows  pgtype.Int4
	ErrorRows    pgtype.Int4
	SkippedRows  pgtype.Int4
	Status       string
	ErrorMessage pgtype.Text
	CreatedAt    pgtype.Timestamptz
	CompletedAt  pgtype.Timestamptz
}

type ErrorLog struct {
	ID           int64
	ImportNo     int64
	RowNo        pgtype.Int4
	Field        pgtype.Text
	ErrorMessage pgtype.Text
	CreatedAt    pgtype.Timestamptz
}

type SupplierRuleCount struct {
	Supplier  string
	RuleCount int64
}
