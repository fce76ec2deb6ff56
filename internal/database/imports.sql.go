package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const importColumns = `import_no, supplier, file_name, file_type, total_rows, success_rows, error_rows, skipped_rows, status, error_message, created_at, completed_at`

func scanImport(row pgx.Row) (ImportManagement, error) {
	var i ImportManagement
	err := row.Scan(
		&i.ImportNo,
		&i.Supplier,
		&i.FileName,
		&i.FileType,
		&i.TotalRows,
		&i.SuccessRows,
		&i.ErrorRows,
		&i.SkippedRows,
		&i.Status,
		&i.ErrorMessage,
		&i.CreatedAt,
		&i.CompletedAt,
	)
	return i, err
}

const insertImport = `-- name: InsertImport :one
INSERT INTO import_management (supplier, file_name, file_type, status)
VALUES ($1, $2, $3, 'processing')
RETURNING import_no
`

type InsertImportParams struct {
	Supplier string
	FileName pgtype.Text
	FileType pgtype.Text
}

func (q *Queries) InsertImport(ctx context.Context, arg InsertImportParams) (int64, error) {
	var importNo int64
	err := q.db.QueryRow(ctx, insertImport, arg.Supplier, arg.FileName, arg.FileType).Scan(&importNo)
	return importNo, err
}

const completeImport = `-- name: CompleteImport :exec
UPDATE import_management
SET total_rows = $2, success_rows = $3, error_rows = $4, skipped_rows = $5,
    status = $6, completed_at = now()
WHERE import_no = $1
`

type CompleteImportParams struct {
	ImportNo    int64
	TotalRows   int32
	SuccessRows int32
	ErrorRows   int32
	SkippedRows int32
	Status      string
}

func (q *Queries) CompleteImport(ctx context.Context, arg CompleteImportParams) error {
	_, err := q.db.Exec(ctx, completeImport,
		arg.ImportNo,
		arg.TotalRows,
		arg.SuccessRows,
		arg.ErrorRows,
		arg.SkippedRows,
		arg.Status,
	)
	return err
}

const failImport = `-- name: FailImport :exec
UPDATE import_management
SET status = 'failed', error_message = $2, completed_at = now()
WHERE import_no = $1
`

func (q *Queries) FailImport(ctx context.Context, importNo int64, message string) error {
	_, err := q.db.Exec(ctx, failImport, importNo, message)
	return err
}

const getImport = `-- name: GetImport :one
SELECT ` + importColumns + `
FROM import_management
WHERE import_no = $1
`

func (q *Queries) GetImport(ctx context.Context, importNo int64) (ImportManagement, error) {
	return scanImport(q.db.QueryRow(ctx, getImport, importNo))
}

const countImports = `-- name: CountImports :one
SELECT COUNT(*)
FROM import_management
WHERE ($1::text = '' OR supplier = $1)
  AND ($2::text = '' OR status = $2)
`

type ImportFilter struct {
	Supplier string
	Status   string
}

func (q *Queries) CountImports(ctx context.Context, arg ImportFilter) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countImports, arg.Supplier, arg.Status).Scan(&count)
	return count, err
}

const listImports = `-- name: ListImports :many
SELECT ` + importColumns + `
FROM import_management
WHERE ($1::text = '' OR supplier = $1)
  AND ($2::text = '' OR status = $2)
ORDER BY created_at DESC, import_no DESC
LIMIT $3 OFFSET $4
`

type ListImportsParams struct {
	ImportFilter
	Limit  int32
	Offset int32
}

func (q *Queries) ListImports(ctx context.Context, arg ListImportsParams) ([]ImportManagement, error) {
	rows, err := q.db.Query(ctx, listImports, arg.Supplier, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImportManagement
	for rows.Next() {
		i, err := scanImport(rows)
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

const insertErrorLog = `-- name: InsertErrorLog :exec
INSERT INTO error_logs (import_no, row_no, field, error_message)
VALUES ($1, $2, $3, $4)
`

type InsertErrorLogParams struct {
	ImportNo     int64
	RowNo        pgtype.Int4
	Field        pgtype.Text
	ErrorMessage pgtype.Text
}

// QueueInsertErrorLog adds an error_logs insert to b.
func QueueInsertErrorLog(b *pgx.Batch, arg InsertErrorLogParams) {
	b.Queue(insertErrorLog, arg.ImportNo, arg.RowNo, arg.Field, arg.ErrorMessage)
}

const countErrorLogs = `-- name: CountErrorLogs :one
SELECT COUNT(*) FROM error_logs WHERE import_no = $1
`

func (q *Queries) CountErrorLogs(ctx context.Context, importNo int64) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countErrorLogs, importNo).Scan(&count)
	return count, err
}

const listErrorLogs = `-- name: ListErrorLogs :many
SELECT id, import_no, row_no, field, error_message, created_at
FROM error_logs
WHERE import_no = $1
ORDER BY row_no ASC NULLS FIRST, id ASC
LIMIT $2 OFFSET $3
`

type ListErrorLogsParams struct {
	ImportNo int64
	Limit    int32
	Offset   int32
}

func (q *Queries) ListErrorLogs(ctx context.Context, arg ListErrorLogsParams) ([]ErrorLog, error) {
	rows, err := q.db.Query(ctx, listErrorLogs, arg.ImportNo, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ErrorLog
	for rows.Next() {
		var i ErrorLog
		if err := rows.Scan(
			&i.ID,
			&i.ImportNo,
			&i.RowNo,
			&i.Field,
			&i.ErrorMessage,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// SendBatch executes b and checks every queued statement.
func (q *Queries) SendBatch(ctx context.Context, b *pgx.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	br := q.db.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

const deleteImport = `-- name: DeleteImport :execrows
DELETE FROM import_management
WHERE import_no = $1 AND status <> 'processing'
`

// DeleteImport removes a finished run. Error logs and staging rows go with it
// through ON DELETE CASCADE.
func (q *Queries) DeleteImport(ctx context.Context, importNo int64) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteImport, importNo)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const importStatistics = `-- name: ImportStatistics :many
SELECT
    supplier,
    COUNT(*)                                                  AS total_imports,
    COUNT(*) FILTER (WHERE status = 'completed')              AS completed_imports,
    COUNT(*) FILTER (WHERE status = 'completed_with_errors')  AS completed_with_errors,
    COUNT(*) FILTER (WHERE status = 'failed')                 AS failed_imports,
    COUNT(*) FILTER (WHERE status = 'processing')             AS processing_imports,
    COALESCE(SUM(total_rows), 0)::bigint                      AS total_rows,
    COALESCE(SUM(success_rows), 0)::bigint                    AS success_rows,
    COALESCE(SUM(error_rows), 0)::bigint                      AS error_rows,
    COALESCE(SUM(skipped_rows), 0)::bigint                    AS skipped_rows
FROM import_management
WHERE created_at >= $1
  AND ($2::text = '' OR supplier = $2)
GROUP BY supplier
ORDER BY supplier
`

type ImportStatisticsParams struct {
	Since    pgtype.Timestamptz
	Supplier string
}

type ImportStatisticsRow struct {
	Supplier            string
	TotalImports        int64
	CompletedImports    int64
	CompletedWithErrors int64
	FailedImports       int64
	ProcessingImports   int64
	TotalRows           int64
	SuccessRows         int64
	ErrorRows           int64
	SkippedRows         int64
}

func (q *Queries) ImportStatistics(ctx context.Context, arg ImportStatisticsParams) ([]ImportStatisticsRow, error) {
	rows, err := q.db.Query(ctx, importStatistics, arg.Since, arg.Supplier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImportStatisticsRow
	for rows.Next() {
		var i ImportStatisticsRow
		if err := rows.Scan(
			&i.Supplier,
			&i.TotalImports,
			&i.CompletedImports,
			&i.CompletedWithErrors,
			&i.FailedImports,
			&i.ProcessingImports,
			&i.TotalRows,
			&i.SuccessRows,
			&i.ErrorRows,
			&i.SkippedRows,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
