package receiving

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/platform/db"
)

// Repository persists purchase documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	*inventory.TxStore
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("receiving repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxStore: inventory.NewTxStore(tx, true), tx: tx})
	})
	return inventory.WrapStoreError("receiving tx", err)
}

func (r *txRepository) InsertDocument(ctx context.Context, doc Document) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_documents (id, invoice_number, supplier, invoice_date, note, discount_percent, discount_amount, tax_percent, shipping_cost, total_cost, payable, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		doc.ID, doc.InvoiceNumber, doc.Supplier, doc.InvoiceDate, doc.Note, doc.DiscountPercent, doc.DiscountAmount,
		doc.TaxPercent, doc.ShippingCost, doc.TotalCost, doc.Payable, doc.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateDocument
	}
	return err
}

func (r *txRepository) InsertLine(ctx context.Context, documentID uuid.UUID, line Line) error {
	var lotID any
	if line.LotID != 0 {
		lotID = line.LotID
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_document_lines (document_id, position, product_code, batch_number, expires_at, quantity, unit_cost, lot_id, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		documentID, line.Position, line.ProductCode, line.BatchNumber, line.ExpiresAt, line.Quantity, line.UnitCost, lotID, string(line.Status))
	return err
}

// GetDocument loads a document with its lines.
func (r *Repository) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	var doc Document
	err := r.pool.QueryRow(ctx, `SELECT id, invoice_number, supplier, invoice_date, note, discount_percent, discount_amount, tax_percent, shipping_cost, total_cost, payable, created_at
FROM purchase_documents WHERE id=$1`, id).Scan(
		&doc.ID, &doc.InvoiceNumber, &doc.Supplier, &doc.InvoiceDate, &doc.Note, &doc.DiscountPercent, &doc.DiscountAmount,
		&doc.TaxPercent, &doc.ShippingCost, &doc.TotalCost, &doc.Payable, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, inventory.WrapStoreError("get document", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT position, product_code, batch_number, expires_at, quantity, unit_cost, COALESCE(lot_id, 0), status
FROM purchase_document_lines WHERE document_id=$1 ORDER BY position`, id)
	if err != nil {
		return Document{}, fmt.Errorf("receiving: load lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		var status string
		if err := rows.Scan(&line.Position, &line.ProductCode, &line.BatchNumber, &line.ExpiresAt, &line.Quantity, &line.UnitCost, &line.LotID, &status); err != nil {
			return Document{}, err
		}
		line.Status = LineStatus(status)
		doc.Lines = append(doc.Lines, line)
	}
	return doc, rows.Err()
}
