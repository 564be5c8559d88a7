// Package receivingtest provides an in-memory receiving repository for tests.
package receivingtest

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/inventory/inventorytest"
	"github.com/odyssey-erp/pharmstock/internal/receiving"
)

// Repo stores documents next to an inventorytest.Store and rolls both back together.
type Repo struct {
	Inventory *inventorytest.Store

	mu       sync.Mutex
	docs     map[uuid.UUID]receiving.Document
	invoices map[string]uuid.UUID
}

// NewRepo wraps store.
func NewRepo(store *inventorytest.Store) *Repo {
	return &Repo{Inventory: store, docs: map[uuid.UUID]receiving.Document{}, invoices: map[string]uuid.UUID{}}
}

// WithTx runs fn inside an inventory transaction.
func (r *Repo) WithTx(ctx context.Context, fn func(context.Context, receiving.TxRepository) error) error {
	var (
		docsSnap     map[uuid.UUID]receiving.Document
		invoicesSnap map[string]uuid.UUID
	)
	hooks := inventorytest.Hooks{
		Snapshot: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			docsSnap, invoicesSnap = maps.Clone(r.docs), maps.Clone(r.invoices)
		},
		Restore: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.docs, r.invoices = docsSnap, invoicesSnap
		},
	}
	return r.Inventory.WithTxHooks(ctx, hooks, func(ctx context.Context, tx inventory.Tx) error {
		return fn(ctx, &memoryTx{Tx: tx, repo: r})
	})
}

// GetDocument returns a committed document.
func (r *Repo) GetDocument(ctx context.Context, id uuid.UUID) (receiving.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return receiving.Document{}, receiving.ErrNotFound
	}
	return doc, nil
}

// Documents returns how many documents are stored.
func (r *Repo) Documents() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

type memoryTx struct {
	inventory.Tx
	repo *Repo
}

func (t *memoryTx) InsertDocument(ctx context.Context, doc receiving.Document) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if _, ok := t.repo.invoices[doc.InvoiceNumber]; ok {
		return receiving.ErrDuplicateDocument
	}
	doc.Lines = nil
	t.repo.docs[doc.ID] = doc
	t.repo.invoices[doc.InvoiceNumber] = doc.ID
	return nil
}

func (t *memoryTx) InsertLine(ctx context.Context, documentID uuid.UUID, line receiving.Line) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	doc := t.repo.docs[documentID]
	doc.Lines = append(append([]receiving.Line(nil), doc.Lines...), line)
	t.repo.docs[documentID] = doc
	return nil
}
