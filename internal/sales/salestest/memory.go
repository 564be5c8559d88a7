// Package salestest provides an in-memory sales repository for tests.
package salestest

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/inventory/inventorytest"
	"github.com/odyssey-erp/pharmstock/internal/sales"
	"github.com/odyssey-erp/pharmstock/internal/shared"
)

// Repo stores sales next to an inventorytest.Store and rolls both back together.
type Repo struct {
	Inventory *inventorytest.Store

	mu    sync.Mutex
	sales map[uuid.UUID]sales.Sale
	keys  map[string]uuid.UUID
	order []uuid.UUID
}

// NewRepo wraps store.
func NewRepo(store *inventorytest.Store) *Repo {
	return &Repo{Inventory: store, sales: map[uuid.UUID]sales.Sale{}, keys: map[string]uuid.UUID{}}
}

// WithTx runs fn inside an inventory transaction.
func (r *Repo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	var (
		salesSnap map[uuid.UUID]sales.Sale
		keysSnap  map[string]uuid.UUID
		orderSnap []uuid.UUID
	)
	hooks := inventorytest.Hooks{
		Snapshot: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			salesSnap, keysSnap, orderSnap = maps.Clone(r.sales), maps.Clone(r.keys), append([]uuid.UUID(nil), r.order...)
		},
		Restore: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.sales, r.keys, r.order = salesSnap, keysSnap, orderSnap
		},
	}
	return r.Inventory.WithTxHooks(ctx, hooks, func(ctx context.Context, tx inventory.Tx) error {
		return fn(ctx, &memoryTx{Tx: tx, repo: r})
	})
}

// GetSale returns a committed sale.
func (r *Repo) GetSale(ctx context.Context, id uuid.UUID) (sales.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.sales[id]
	if !ok {
		return sales.Sale{}, sales.ErrNotFound
	}
	return sale, nil
}

// FindByIdempotencyKey returns the sale stored under key.
func (r *Repo) FindByIdempotencyKey(ctx context.Context, key string) (sales.Sale, error) {
	r.mu.Lock()
	id, ok := r.keys[key]
	r.mu.Unlock()
	if !ok {
		return sales.Sale{}, sales.ErrNotFound
	}
	return r.GetSale(ctx, id)
}

// Sales returns committed sales in insertion order.
func (r *Repo) Sales() []sales.Sale {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sales.Sale, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sales[id])
	}
	return out
}

type memoryTx struct {
	inventory.Tx
	repo *Repo
}

func (t *memoryTx) ClaimIdempotencyKey(ctx context.Context, key string) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if _, ok := t.repo.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	t.repo.keys[key] = uuid.Nil
	return nil
}

func (t *memoryTx) InsertSale(ctx context.Context, sale sales.Sale) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	sale.Lines = nil
	t.repo.sales[sale.ID] = sale
	t.repo.order = append(t.repo.order, sale.ID)
	if sale.IdempotencyKey != "" {
		t.repo.keys[sale.IdempotencyKey] = sale.ID
	}
	return nil
}

func (t *memoryTx) InsertLine(ctx context.Context, saleID uuid.UUID, line sales.Line) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	sale := t.repo.sales[saleID]
	line.Allocations = nil
	sale.Lines = append(sale.Lines, line)
	t.repo.sales[saleID] = sale
	return nil
}

func (t *memoryTx) InsertAllocations(ctx context.Context, saleID uuid.UUID, position int, allocations []sales.Allocation) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	sale := t.repo.sales[saleID]
	lines := append([]sales.Line(nil), sale.Lines...)
	for i := range lines {
		if lines[i].Position == position {
			lines[i].Allocations = append([]sales.Allocation(nil), allocations...)
		}
	}
	sale.Lines = lines
	t.repo.sales[saleID] = sale
	return nil
}
