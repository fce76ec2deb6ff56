package database

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const upsertStock = `-- name: UpsertStock :exec
INSERT INTO chukan_file_zaiko
    (import_no, import_date, supplier_id, supplier_maker, supplier_part_no, moq, spq, stock)
VALUES ($1, CURRENT_DATE, $2, $3, $4, $5, $6, $7)
ON CONFLICT (import_no, supplier_id, supplier_part_no)
DO UPDATE SET supplier_maker = EXCLUDED.supplier_maker,
              moq = EXCLUDED.moq,
              spq = EXCLUDED.spq,
              stock = EXCLUDED.stock
`

type UpsertStockParams struct {
	ImportNo       int64
	SupplierID     string
	SupplierMaker  pgtype.Text
	SupplierPartNo string
	Moq            pgtype.Int4
	Spq            pgtype.Int4
	Stock          pgtype.Int4
}

// QueueUpsertStock adds a stock staging upsert to b.
func QueueUpsertStock(b *pgx.Batch, arg UpsertStockParams) {
	b.Queue(upsertStock,
		arg.ImportNo,
		arg.SupplierID,
		arg.SupplierMaker,
		arg.SupplierPartNo,
		arg.Moq,
		arg.Spq,
		arg.Stock,
	)
}

const upsertPrice = `-- name: UpsertPrice :exec
INSERT INTO chukan_file_tanka
    (import_no, import_date, supplier_id, supplier_maker, supplier_part_no, quantity, price, currency)
VALUES ($1, CURRENT_DATE, $2, $3, $4, $5, $6, $7)
ON CONFLICT (import_no, supplier_id, supplier_part_no)
DO UPDATE SET supplier_maker = EXCLUDED.supplier_maker,
              quantity = EXCLUDED.quantity,
              price = EXCLUDED.price,
              currency = EXCLUDED.currency
`

type UpsertPriceParams struct {
	ImportNo       int64
	SupplierID     string
	SupplierMaker  pgtype.Text
	SupplierPartNo string
	Quantity       pgtype.Int4
	Price          pgtype.Numeric
	Currency       pgtype.Text
}

// QueueUpsertPrice adds a price staging upsert to b.
func QueueUpsertPrice(b *pgx.Batch, arg UpsertPriceParams) {
	b.Queue(upsertPrice,
		arg.ImportNo,
		arg.SupplierID,
		arg.SupplierMaker,
		arg.SupplierPartNo,
		arg.Quantity,
		arg.Price,
		arg.Currency,
	)
}
