package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmstock/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction. Product
// and lot reads lock their rows until commit.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx, true))
	})
	return WrapStoreError("inventory tx", err)
}

// ReadOnly runs fn against a read-only snapshot without row locks.
func (r *Repository) ReadOnly(ctx context.Context, fn func(context.Context, Reader) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	err := db.WithReadOnlyTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx, false))
	})
	return WrapStoreError("inventory read", err)
}

// ListLots returns a product's lots in FEFO order.
func (r *Repository) ListLots(ctx context.Context, code string, includeEmpty bool) ([]Lot, error) {
	query := selectLots + ` WHERE product_code=$1`
	if !includeEmpty {
		query += ` AND quantity > 0`
	}
	query += fefoOrder
	rows, err := r.pool.Query(ctx, query, code)
	if err != nil {
		return nil, WrapStoreError("list lots", err)
	}
	return collectLots(rows)
}

var _ Tx = (*TxStore)(nil)

// TxStore implements Tx over any pgx querier. Sales and receiving embed it
// in their own transaction repositories.
type TxStore struct {
	q    db.Querier
	lock bool
}

// NewTxStore wraps q. When lock is set, product and lot reads take row locks.
func NewTxStore(q db.Querier, lock bool) *TxStore {
	return &TxStore{q: q, lock: lock}
}

const (
	selectProduct = `SELECT code, name, unit_price, stock, reorder_level, created_at, updated_at FROM products`
	selectLots    = `SELECT id, product_code, COALESCE(source_document::text, ''), batch_number, quantity, received_quantity, expires_at, created_at FROM lots`
	fefoOrder     = ` ORDER BY expires_at ASC NULLS LAST, id ASC`
)

func (s *TxStore) forUpdate(query string) string {
	if s.lock {
		return query + ` FOR UPDATE`
	}
	return query
}

func (s *TxStore) GetProduct(ctx context.Context, code string) (Product, error) {
	var p Product
	err := s.q.QueryRow(ctx, s.forUpdate(selectProduct+` WHERE code=$1`), code).
		Scan(&p.Code, &p.Name, &p.UnitPrice, &p.Stock, &p.ReorderLevel, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, &UnknownProductError{Code: code}
		}
		return Product{}, WrapStoreError("get product", err)
	}
	return p, nil
}

func (s *TxStore) CountLots(ctx context.Context, code string) (int, error) {
	var count int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM lots WHERE product_code=$1`, code).Scan(&count); err != nil {
		return 0, WrapStoreError("count lots", err)
	}
	return count, nil
}

func (s *TxStore) LotsForProduct(ctx context.Context, code string) ([]Lot, error) {
	rows, err := s.q.Query(ctx, s.forUpdate(selectLots+` WHERE product_code=$1 AND quantity > 0`+fefoOrder), code)
	if err != nil {
		return nil, WrapStoreError("lots for product", err)
	}
	return collectLots(rows)
}

func (s *TxStore) GetLot(ctx context.Context, id int64) (Lot, error) {
	rows, err := s.q.Query(ctx, s.forUpdate(selectLots+` WHERE id=$1`), id)
	if err != nil {
		return Lot{}, WrapStoreError("get lot", err)
	}
	lots, err := collectLots(rows)
	if err != nil {
		return Lot{}, err
	}
	if len(lots) == 0 {
		return Lot{}, ErrLotNotFound
	}
	return lots[0], nil
}

func (s *TxStore) SetLotQuantity(ctx context.Context, id int64, quantity int) error {
	if quantity < 0 {
		return ErrNegativeQuantity
	}
	tag, err := s.q.Exec(ctx, `UPDATE lots SET quantity=$2 WHERE id=$1`, id, quantity)
	if err != nil {
		if db.IsCheckViolation(err) {
			return ErrNegativeQuantity
		}
		return WrapStoreError("set lot quantity", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (s *TxStore) InsertLot(ctx context.Context, lot Lot) (Lot, error) {
	err := s.q.QueryRow(ctx, `INSERT INTO lots (product_code, source_document, batch_number, quantity, received_quantity, expires_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id, created_at`,
		lot.ProductCode, nullUUID(lot.SourceDocument), lot.BatchNumber, lot.Quantity, lot.Received, nullDate(lot.ExpiresAt)).
		Scan(&lot.ID, &lot.CreatedAt)
	if err != nil {
		return Lot{}, WrapStoreError("insert lot", err)
	}
	return lot, nil
}

func (s *TxStore) SetProductStock(ctx context.Context, code string, stock int) error {
	if stock < 0 {
		return ErrNegativeQuantity
	}
	tag, err := s.q.Exec(ctx, `UPDATE products SET stock=$2, updated_at=NOW() WHERE code=$1`, code, stock)
	if err != nil {
		return WrapStoreError("set product stock", err)
	}
	if tag.RowsAffected() == 0 {
		return &UnknownProductError{Code: code}
	}
	return nil
}

func (s *TxStore) InsertProduct(ctx context.Context, p Product) (Product, error) {
	err := s.q.QueryRow(ctx, `INSERT INTO products (code, name, unit_price, stock, reorder_level, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING created_at, updated_at`,
		p.Code, p.Name, p.UnitPrice, p.Stock, p.ReorderLevel).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Product{}, ErrProductExists
		}
		return Product{}, WrapStoreError("insert product", err)
	}
	return p, nil
}

func collectLots(rows pgx.Rows) ([]Lot, error) {
	defer rows.Close()
	lots := []Lot{}
	for rows.Next() {
		var lot Lot
		if err := rows.Scan(&lot.ID, &lot.ProductCode, &lot.SourceDocument, &lot.BatchNumber, &lot.Quantity, &lot.Received, &lot.ExpiresAt, &lot.CreatedAt); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapStoreError("scan lots", err)
	}
	return lots, nil
}

func nullUUID(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullDate(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}
