// Package inventorytest provides an in-memory inventory store for tests.
package inventorytest

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
)

// Operation names accepted by FailOnce and Calls.
const (
	OpBegin           = "begin"
	OpGetProduct      = "get_product"
	OpCountLots       = "count_lots"
	OpLotsForProduct  = "lots_for_product"
	OpGetLot          = "get_lot"
	OpSetLotQuantity  = "set_lot_quantity"
	OpInsertLot       = "insert_lot"
	OpSetProductStock = "set_product_stock"
	OpInsertProduct   = "insert_product"
)

type fault struct {
	skip int
	err  error
}

// Store keeps products and lots in maps. WithTx serialises transactions and
// restores a snapshot when the callback fails.
type Store struct {
	mu       sync.Mutex
	products map[string]inventory.Product
	lots     map[int64]inventory.Lot
	nextLot  int64
	faults   map[string]*fault
	calls    map[string]int
	now      func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		products: map[string]inventory.Product{},
		lots:     map[int64]inventory.Lot{},
		faults:   map[string]*fault{},
		calls:    map[string]int{},
		now:      func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

type snapshot struct {
	products map[string]inventory.Product
	lots     map[int64]inventory.Lot
	nextLot  int64
}

// Hooks lets wrapping stores add their own state to snapshots.
type Hooks struct {
	Snapshot func()
	Restore  func()
}

// WithTx runs fn under the store lock.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.Tx) error) error {
	return s.WithTxHooks(ctx, Hooks{}, fn)
}

// WithTxHooks is WithTx with callbacks that snapshot and restore extra state.
func (s *Store) WithTxHooks(ctx context.Context, hooks Hooks, fn func(context.Context, inventory.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit(OpBegin); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := snapshot{products: maps.Clone(s.products), lots: maps.Clone(s.lots), nextLot: s.nextLot}
	if hooks.Snapshot != nil {
		hooks.Snapshot()
	}
	if err := fn(ctx, &tx{s: s}); err != nil {
		s.products, s.lots, s.nextLot = snap.products, snap.lots, snap.nextLot
		if hooks.Restore != nil {
			hooks.Restore()
		}
		return err
	}
	return nil
}

// ReadOnly runs fn with a reader over the current state.
func (s *Store) ReadOnly(ctx context.Context, fn func(context.Context, inventory.Reader) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &tx{s: s})
}

// ListLots returns the product's lots in FEFO order.
func (s *Store) ListLots(ctx context.Context, code string, includeEmpty bool) ([]inventory.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLots(code, includeEmpty), nil
}

// FailOnce makes op return err after skip successful calls. The fault fires once.
func (s *Store) FailOnce(op string, skip int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{skip: skip, err: err}
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p inventory.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
		p.UpdatedAt = p.CreatedAt
	}
	s.products[p.Code] = p
}

// PutLot stores a lot and returns its id. Received defaults to Quantity.
func (s *Store) PutLot(l inventory.Lot) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.Received == 0 {
		l.Received = l.Quantity
	}
	return s.insertLot(l).ID
}

// Product returns a product by code.
func (s *Store) Product(code string) (inventory.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[code]
	return p, ok
}

// Lot returns a lot by id.
func (s *Store) Lot(id int64) (inventory.Lot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lots[id]
	return l, ok
}

// Lots returns every lot of a product, exhausted ones included, in FEFO order.
func (s *Store) Lots(code string) []inventory.Lot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLots(code, true)
}

// LotTotal sums the quantities of a product's lots.
func (s *Store) LotTotal(code string) int {
	total := 0
	for _, l := range s.Lots(code) {
		total += l.Quantity
	}
	return total
}

// Date is a helper for building expiry dates.
func Date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func (s *Store) hit(op string) error {
	s.calls[op]++
	f, ok := s.faults[op]
	if !ok {
		return nil
	}
	if f.skip > 0 {
		f.skip--
		return nil
	}
	delete(s.faults, op)
	return f.err
}

func (s *Store) insertLot(l inventory.Lot) inventory.Lot {
	s.nextLot++
	l.ID = s.nextLot
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	s.lots[l.ID] = l
	return l
}

func (s *Store) sortedLots(code string, includeEmpty bool) []inventory.Lot {
	out := []inventory.Lot{}
	for _, l := range s.lots {
		if l.ProductCode != code || (!includeEmpty && l.Quantity <= 0) {
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, compareFEFO)
	return out
}

func compareFEFO(a, b inventory.Lot) int {
	switch {
	case a.ExpiresAt == nil && b.ExpiresAt != nil:
		return 1
	case a.ExpiresAt != nil && b.ExpiresAt == nil:
		return -1
	case a.ExpiresAt != nil && b.ExpiresAt != nil && !a.ExpiresAt.Equal(*b.ExpiresAt):
		return a.ExpiresAt.Compare(*b.ExpiresAt)
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

type tx struct {
	s *Store
}

var _ inventory.Tx = (*tx)(nil)

func (t *tx) GetProduct(ctx context.Context, code string) (inventory.Product, error) {
	if err := t.s.hit(OpGetProduct); err != nil {
		return inventory.Product{}, err
	}
	p, ok := t.s.products[code]
	if !ok {
		return inventory.Product{}, &inventory.UnknownProductError{Code: code}
	}
	return p, nil
}

func (t *tx) CountLots(ctx context.Context, code string) (int, error) {
	if err := t.s.hit(OpCountLots); err != nil {
		return 0, err
	}
	return len(t.s.sortedLots(code, true)), nil
}

func (t *tx) LotsForProduct(ctx context.Context, code string) ([]inventory.Lot, error) {
	if err := t.s.hit(OpLotsForProduct); err != nil {
		return nil, err
	}
	return t.s.sortedLots(code, false), nil
}

func (t *tx) GetLot(ctx context.Context, id int64) (inventory.Lot, error) {
	if err := t.s.hit(OpGetLot); err != nil {
		return inventory.Lot{}, err
	}
	l, ok := t.s.lots[id]
	if !ok {
		return inventory.Lot{}, inventory.ErrLotNotFound
	}
	return l, nil
}

func (t *tx) SetLotQuantity(ctx context.Context, id int64, quantity int) error {
	if err := t.s.hit(OpSetLotQuantity); err != nil {
		return err
	}
	if quantity < 0 {
		return inventory.ErrNegativeQuantity
	}
	l, ok := t.s.lots[id]
	if !ok {
		return inventory.ErrLotNotFound
	}
	l.Quantity = quantity
	t.s.lots[id] = l
	return nil
}

func (t *tx) InsertLot(ctx context.Context, lot inventory.Lot) (inventory.Lot, error) {
	if err := t.s.hit(OpInsertLot); err != nil {
		return inventory.Lot{}, err
	}
	if _, ok := t.s.products[lot.ProductCode]; !ok {
		return inventory.Lot{}, &inventory.UnknownProductError{Code: lot.ProductCode}
	}
	return t.s.insertLot(lot), nil
}

func (t *tx) SetProductStock(ctx context.Context, code string, stock int) error {
	if err := t.s.hit(OpSetProductStock); err != nil {
		return err
	}
	if stock < 0 {
		return inventory.ErrNegativeQuantity
	}
	p, ok := t.s.products[code]
	if !ok {
		return &inventory.UnknownProductError{Code: code}
	}
	p.Stock = stock
	p.UpdatedAt = t.s.now()
	t.s.products[code] = p
	return nil
}

func (t *tx) InsertProduct(ctx context.Context, product inventory.Product) (inventory.Product, error) {
	if err := t.s.hit(OpInsertProduct); err != nil {
		return inventory.Product{}, err
	}
	if _, ok := t.s.products[product.Code]; ok {
		return inventory.Product{}, inventory.ErrProductExists
	}
	product.CreatedAt = t.s.now()
	product.UpdatedAt = product.CreatedAt
	t.s.products[product.Code] = product
	return product, nil
}
