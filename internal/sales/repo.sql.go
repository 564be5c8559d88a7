package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/platform/db"
	"github.com/odyssey-erp/pharmstock/internal/shared"
)

const idempotencyModule = "sales"

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	idempotency *shared.IdempotencyStore
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, idem *shared.IdempotencyStore) *Repository {
	return &Repository{pool: pool, idempotency: idem}
}

type txRepository struct {
	*inventory.TxStore
	tx          pgx.Tx
	idempotency *shared.IdempotencyStore
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxStore: inventory.NewTxStore(tx, true), tx: tx, idempotency: r.idempotency})
	})
	return inventory.WrapStoreError("sale tx", err)
}

func (r *txRepository) ClaimIdempotencyKey(ctx context.Context, key string) error {
	if r.idempotency == nil {
		return nil
	}
	return r.idempotency.CheckAndInsertWith(ctx, r.tx, key, idempotencyModule)
}

func (r *txRepository) InsertSale(ctx context.Context, sale Sale) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sales (id, channel, patient_name, patient_national_code, doctor_ref, idempotency_key, status, total, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, sale.ID, string(sale.Channel), sale.PatientName, sale.PatientNationalCode, sale.DoctorRef,
		nullString(sale.IdempotencyKey), string(sale.Status), sale.Total, sale.CreatedAt)
	if db.IsUniqueViolation(err) {
		return shared.ErrIdempotencyConflict
	}
	return err
}

func (r *txRepository) InsertLine(ctx context.Context, saleID uuid.UUID, line Line) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sale_line_items (sale_id, position, product_code, quantity, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5,$6)`, saleID, line.Position, line.ProductCode, line.Quantity, line.UnitPrice, line.LineTotal)
	return err
}

func (r *txRepository) InsertAllocations(ctx context.Context, saleID uuid.UUID, position int, allocations []Allocation) error {
	batch := &pgx.Batch{}
	for _, a := range allocations {
		batch.Queue(`INSERT INTO sale_allocations (sale_id, position, lot_id, source, quantity) VALUES ($1,$2,$3,$4,$5)`,
			saleID, position, nullInt(a.LotID), string(a.Source), a.Quantity)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

// GetSale loads a sale with lines and allocations.
func (r *Repository) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	return r.loadSale(ctx, `WHERE id=$1`, id)
}

// FindByIdempotencyKey loads the sale committed under key.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, key string) (Sale, error) {
	return r.loadSale(ctx, `WHERE idempotency_key=$1`, key)
}

func (r *Repository) loadSale(ctx context.Context, where string, arg any) (Sale, error) {
	var sale Sale
	var channel, status string
	var key *string
	err := r.pool.QueryRow(ctx, `SELECT id, channel, patient_name, patient_national_code, doctor_ref, idempotency_key, status, total, created_at FROM sales `+where, arg).
		Scan(&sale.ID, &channel, &sale.PatientName, &sale.PatientNationalCode, &sale.DoctorRef, &key, &status, &sale.Total, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrNotFound
		}
		return Sale{}, inventory.WrapStoreError("get sale", err)
	}
	sale.Channel = Channel(channel)
	sale.Status = Status(status)
	if key != nil {
		sale.IdempotencyKey = *key
	}

	rows, err := r.pool.Query(ctx, `SELECT position, product_code, quantity, unit_price, line_total FROM sale_line_items WHERE sale_id=$1 ORDER BY position`, sale.ID)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: load lines: %w", err)
	}
	byPosition := map[int]int{}
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.Position, &line.ProductCode, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			rows.Close()
			return Sale{}, err
		}
		byPosition[line.Position] = len(sale.Lines)
		sale.Lines = append(sale.Lines, line)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Sale{}, err
	}

	rows, err = r.pool.Query(ctx, `SELECT a.position, COALESCE(a.lot_id, 0), COALESCE(l.batch_number, ''), a.source, a.quantity
FROM sale_allocations a LEFT JOIN lots l ON l.id = a.lot_id
WHERE a.sale_id=$1 ORDER BY a.position, a.id`, sale.ID)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: load allocations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var position int
		var alloc Allocation
		var source string
		if err := rows.Scan(&position, &alloc.LotID, &alloc.BatchNumber, &source, &alloc.Quantity); err != nil {
			return Sale{}, err
		}
		alloc.Source = inventory.StockSourceKind(source)
		if idx, ok := byPosition[position]; ok {
			sale.Lines[idx].Allocations = append(sale.Lines[idx].Allocations, alloc)
		}
	}
	return sale, rows.Err()
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
