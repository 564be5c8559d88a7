package reports

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmstock/internal/platform/db"
)

// PgRepository runs report queries in read-only transactions.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) read(ctx context.Context, fn func(pgx.Tx) error) error {
	if r == nil || r.pool == nil {
		return errors.New("reports repository not initialised")
	}
	return db.WithReadOnlyTx(ctx, r.pool, fn)
}

// LowStock lists products with a reorder level whose stock has reached it.
func (r *PgRepository) LowStock(ctx context.Context) ([]LowStockRow, error) {
	var out []LowStockRow
	err := r.read(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT code, name, stock, reorder_level FROM products
WHERE reorder_level > 0 AND stock <= reorder_level
ORDER BY stock - reorder_level ASC, code ASC`)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (LowStockRow, error) {
			var l LowStockRow
			err := row.Scan(&l.ProductCode, &l.Name, &l.Stock, &l.ReorderLevel)
			return l, err
		})
		return err
	})
	return out, err
}

// NearExpiry lists lots with quantity left that expire on or before until.
func (r *PgRepository) NearExpiry(ctx context.Context, asOf, until time.Time) ([]NearExpiryRow, error) {
	var out []NearExpiryRow
	err := r.read(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT l.id, l.product_code, p.name, l.batch_number, l.quantity, l.expires_at
FROM lots l JOIN products p ON p.code = l.product_code
WHERE l.quantity > 0 AND l.expires_at IS NOT NULL AND l.expires_at <= $1
ORDER BY l.expires_at ASC, l.id ASC`, until)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (NearExpiryRow, error) {
			var n NearExpiryRow
			if err := row.Scan(&n.LotID, &n.ProductCode, &n.Name, &n.BatchNumber, &n.Quantity, &n.ExpiresAt); err != nil {
				return n, err
			}
			n.DaysLeft = daysBetween(asOf, n.ExpiresAt)
			return n, nil
		})
		return err
	})
	return out, err
}

// Drift lists products that have lots and whose stock differs from the lot sum.
func (r *PgRepository) Drift(ctx context.Context) ([]DriftRow, error) {
	var out []DriftRow
	err := r.read(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT p.code, p.name, p.stock, SUM(l.quantity)::int
FROM products p JOIN lots l ON l.product_code = p.code
GROUP BY p.code, p.name, p.stock
HAVING p.stock <> SUM(l.quantity)
ORDER BY p.code`)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (DriftRow, error) {
			var d DriftRow
			if err := row.Scan(&d.ProductCode, &d.Name, &d.Stock, &d.LotTotal); err != nil {
				return d, err
			}
			d.Difference = d.Stock - d.LotTotal
			return d, nil
		})
		return err
	})
	return out, err
}

func daysBetween(from, to time.Time) int {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
