package sales_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/inventory/inventorytest"
	"github.com/odyssey-erp/pharmstock/internal/sales"
	"github.com/odyssey-erp/pharmstock/internal/sales/salestest"
	"github.com/odyssey-erp/pharmstock/internal/shared"
)

// ============================================================================
// FIXTURES
// ============================================================================

type fixture struct {
	store  *inventorytest.Store
	repo   *salestest.Repo
	audit  *recordingAudit
	events *recordingIntegration
	cache  *countingCache
	obs    *recordingObserver
	svc    *sales.Service
}

func newFixture(cfg sales.ServiceConfig) *fixture {
	store := inventorytest.NewStore()
	f := &fixture{
		store:  store,
		repo:   salestest.NewRepo(store),
		audit:  &recordingAudit{},
		events: &recordingIntegration{},
		cache:  &countingCache{},
		obs:    &recordingObserver{outcomes: map[string]int{}},
	}
	f.svc = sales.NewService(f.repo, f.audit, f.events, f.cache, f.obs, cfg, nil)
	return f
}

func (f *fixture) product(code string, price int64, stock int) {
	f.store.PutProduct(inventory.Product{Code: code, Name: code, UnitPrice: decimal.NewFromInt(price), Stock: stock})
}

func (f *fixture) lot(code string, qty int, year int, month int) int64 {
	return f.store.PutLot(inventory.Lot{ProductCode: code, BatchNumber: code + "-B", Quantity: qty, ExpiresAt: inventorytest.Date(year, time.Month(month), 1)})
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type recordingIntegration struct {
	events []sales.SaleCommittedEvent
	err    error
}

func (r *recordingIntegration) HandleSaleCommitted(ctx context.Context, evt sales.SaleCommittedEvent) error {
	r.events = append(r.events, evt)
	return r.err
}

type countingCache struct{ bumps int }

func (c *countingCache) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *recordingObserver) ObserveSale(outcome string, lines int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[outcome]++
}

func otc(lines ...sales.LineInput) sales.SubmitInput {
	return sales.SubmitInput{Channel: sales.ChannelOTC, Lines: lines}
}

func line(code string, qty int) sales.LineInput {
	return sales.LineInput{ProductCode: code, Quantity: qty}
}

// ============================================================================
// SETTLEMENT
// ============================================================================

func TestSubmitDeductsExactlyTheQuantitySold(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	f.product("AMOX", 2500, 15)
	f.lot("AMOX", 5, 2025, 1)
	f.lot("AMOX", 10, 2025, 6)
	f.product("PARA", 1000, 7)
	f.lot("PARA", 7, 2025, 3)

	result, err := f.svc.Submit(context.Background(), otc(line("AMOX", 8), line("PARA", 2)))
	require.NoError(t, err)
	require.False(t, result.Duplicate)
	require.Equal(t, sales.StatusCommitted, result.Sale.Status)
	require.True(t, decimal.NewFromInt(8*2500+2*1000).Equal(result.Sale.Total))

	amox, _ := f.store.Product("AMOX")
	require.Equal(t, 7, amox.Stock)
	require.Equal(t, 7, f.store.LotTotal("AMOX"))
	para, _ := f.store.Product("PARA")
	require.Equal(t, 5, para.Stock)
	require.Equal(t, 5, f.store.LotTotal("PARA"))

	stored, err := f.svc.GetSale(context.Background(), result.Sale.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 2)
	sum := 0
	for _, a := range stored.Lines[0].Allocations {
		sum += a.Quantity
	}
	require.Equal(t, 8, sum)
}

func TestSubmitHealsAggregateDriftedBelowLots(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	f.product("IBU", 300, 2)
	f.lot("IBU", 10, 2026, 3)

	result, err := f.svc.Submit(context.Background(), otc(line("IBU", 5)))
	require.NoError(t, err)
	require.Equal(t, sales.StatusCommitted, result.Sale.Status)

	ibu, _ := f.store.Product("IBU")
	require.Equal(t, 5, ibu.Stock)
	require.Equal(t, 5, f.store.LotTotal("IBU"))
}

func TestSubmitFEFOTakesEarliestLotFirst(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	f.product("AMOX", 100, 15)
	early := f.lot("AMOX", 5, 2025, 1)
	late := f.lot("AMOX", 10, 2025, 6)

	result, err := f.svc.Submit(context.Background(), otc(line("AMOX", 8)))
	require.NoError(t, err)

	allocations := result.Sale.Lines[0].Allocations
	require.Len(t, allocations, 2)
	require.Equal(t, early, allocations[0].LotID)
	require.Equal(t, 5, allocations[0].Quantity)
	require.Equal(t, late, allocations[1].LotID)
	require.Equal(t, 3, allocations[1].Quantity)

	lot, _ := f.store.Lot(early)
	require.Zero(t, lot.Quantity)
	lot, _ = f.store.Lot(late)
	require.Equal(t, 7, lot.Quantity)
}

func TestSubmitIsAllOrNothing(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	f.product("AMOX", 100, 10)
	f.lot("AMOX", 10, 2025, 1)
	f.product("PARA", 100, 2)
	f.lot("PARA", 2, 2025, 1)

	_, err := f.svc.Submit(context.Background(), otc(line("AMOX", 3), line("PARA", 5)))
	require.ErrorIs(t, err, sales.ErrRejected)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	var rejected *sales.RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, rejected.Lines, 1)
	require.Equal(t, 2, rejected.Lines[0].Position)
	require.Equal(t, "PARA", rejected.Lines[0].ProductCode)
	require.Equal(t, "insufficient_stock", rejected.Lines[0].Reason())

	amox, _ := f.store.Product("AMOX")
	require.Equal(t, 10, amox.Stock)
	require.Equal(t, 10, f.store.LotTotal("AMOX"))
	require.Empty(t, f.repo.Sales())
	require.Zero(t, f.store.Calls(inventorytest.OpSetLotQuantity))
	require.Equal(t, 1, f.obs.outcomes["rejected"])
}

func TestSubmitCollectsEveryLineFailure(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	f.product("AMOX", 100, 1)
	f.lot("AMOX", 1, 2025, 1)

	_, err := f.svc.Submit(context.Background(), otc(line("GHOST", 1), line("AMOX", 2), line("AMOX", 1)))
	var rejected *sales.RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, rejected.Lines, 2)
	require.Equal(t, "unknown_product", rejected.Lines[0].Reason())
	require.Equal(t, 2, rejected.Lines[1].Position)

	var shortfall *inventory.InsufficientStockError
	require.ErrorAs(t, rejected.Lines[1].Err, &shortfall)
	require.Equal(t, 1, shortfall.Available)
	require.Equal(t, 2, shortfall.Requested)
}

func TestSubmitRejectsNonPositiveQuantityBeforeLookup(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	f.product("AMOX", 100, 5)

	_, err := f.svc.Submit(context.Background(), otc(line("AMOX", 0), line("AMOX", -2)))
	var rejected *sales.RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, rejected.Lines, 2)
	for _, l := range rejected.Lines {
		require.Equal(t, "invalid_quantity", l.Reason())
	}
	require.Zero(t, f.store.Calls(inventorytest.OpGetProduct))
	require.Zero(t, f.store.Calls(inventorytest.OpBegin))
}

func TestSubmitValidatesHeader(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	_, err := f.svc.Submit(context.Background(), sales.SubmitInput{Channel: "MAIL", Lines: []sales.LineInput{line("A", 1)}})
	require.ErrorIs(t, err, sales.ErrInvalidSale)

	_, err = f.svc.Submit(context.Background(), otc())
	require.ErrorIs(t, err, sales.ErrInvalidSale)
}

func TestSubmitSameProductOnTwoLinesSharesAvailability(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	f.product("AMOX", 100, 10)
	f.lot("AMOX", 10, 2025, 1)

	_, err := f.svc.Submit(context.Background(), otc(line("AMOX", 6), line("AMOX", 6)))
	var rejected *sales.RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, rejected.Lines, 1)
	require.Equal(t, 2, rejected.Lines[0].Position)

	result, err := f.svc.Submit(context.Background(), otc(line("amox", 6), line("AMOX", 4)))
	require.NoError(t, err)
	require.Len(t, result.Sale.Lines, 2)
	require.Zero(t, f.store.LotTotal("AMOX"))
	amox, _ := f.store.Product("AMOX")
	require.Zero(t, amox.Stock)
}

// ============================================================================
// LEGACY AGGREGATE STOCK
// ============================================================================

func TestSubmitAggregateOnlyWithoutMigration(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	f.product("OLD", 100, 9)

	result, err := f.svc.Submit(context.Background(), otc(line("OLD", 4)))
	require.NoError(t, err)
	require.Equal(t, []sales.Allocation{{Source: inventory.SourceAggregateOnly, Quantity: 4}}, result.Sale.Lines[0].Allocations)
	old, _ := f.store.Product("OLD")
	require.Equal(t, 5, old.Stock)
	require.Empty(t, f.store.Lots("OLD"))
}

func TestSubmitAggregateOnlyMigratesToLegacyLot(t *testing.T) {
	f := newFixture(sales.ServiceConfig{MigrateLegacy: true})
	f.product("OLD", 100, 9)

	result, err := f.svc.Submit(context.Background(), otc(line("OLD", 4), line("OLD", 3)))
	require.NoError(t, err)
	require.Len(t, result.Sale.Lines, 2)

	lots := f.store.Lots("OLD")
	require.Len(t, lots, 1)
	require.True(t, lots[0].Legacy())
	require.Equal(t, 2, lots[0].Quantity)
	old, _ := f.store.Product("OLD")
	require.Equal(t, 2, old.Stock)
	for _, l := range result.Sale.Lines {
		require.Equal(t, lots[0].ID, l.Allocations[0].LotID)
	}

	_, err = f.svc.Submit(context.Background(), otc(line("OLD", 3)))
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
}

// ============================================================================
// ATOMICITY AND RETRIES
// ============================================================================

func TestSubmitRollsBackWhenApplyFails(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	f.product("AMOX", 100, 10)
	f.lot("AMOX", 10, 2025, 1)
	f.product("PARA", 100, 10)
	f.lot("PARA", 10, 2025, 1)
	boom := errors.New("connection reset")
	f.store.FailOnce(inventorytest.OpSetLotQuantity, 1, boom)

	_, err := f.svc.Submit(context.Background(), otc(line("AMOX", 2), line("PARA", 2)))
	require.ErrorIs(t, err, boom)

	require.Equal(t, 10, f.store.LotTotal("AMOX"))
	amox, _ := f.store.Product("AMOX")
	require.Equal(t, 10, amox.Stock)
	require.Empty(t, f.repo.Sales())
	require.Zero(t, f.cache.bumps)
	require.Empty(t, f.events.events)
}

func TestSubmitRetriesTransientFailures(t *testing.T) {
	f := newFixture(sales.ServiceConfig{MaxAttempts: 3})
	f.product("AMOX", 100, 10)
	f.lot("AMOX", 10, 2025, 1)
	f.store.FailOnce(inventorytest.OpSetProductStock, 0, &inventory.TransientStoreError{Op: "update", Err: errors.New("40001")})

	result, err := f.svc.Submit(context.Background(), otc(line("AMOX", 4)))
	require.NoError(t, err)
	require.Len(t, f.repo.Sales(), 1)
	require.Equal(t, result.Sale.ID, f.repo.Sales()[0].ID)
	require.Equal(t, 6, f.store.LotTotal("AMOX"))
	require.Equal(t, 2, f.store.Calls(inventorytest.OpBegin))
}

func TestSubmitSurfacesTransientFailureWhenAttemptsRunOut(t *testing.T) {
	f := newFixture(sales.ServiceConfig{MaxAttempts: 1})
	f.product("AMOX", 100, 10)
	f.lot("AMOX", 10, 2025, 1)
	f.store.FailOnce(inventorytest.OpBegin, 0, &inventory.TransientStoreError{Op: "begin", Err: context.DeadlineExceeded})

	_, err := f.svc.Submit(context.Background(), otc(line("AMOX", 4)))
	require.ErrorIs(t, err, inventory.ErrTransientStore)
	require.NotErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Equal(t, 10, f.store.LotTotal("AMOX"))
	require.Equal(t, 1, f.obs.outcomes["transient"])
}

// ============================================================================
// IDEMPOTENCY AND SIDE EFFECTS
// ============================================================================

func TestSubmitReplaysIdempotencyKey(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	f.product("AMOX", 100, 10)
	f.lot("AMOX", 10, 2025, 1)
	input := otc(line("AMOX", 3))
	input.IdempotencyKey = "till-7:0001"

	first, err := f.svc.Submit(context.Background(), input)
	require.NoError(t, err)
	second, err := f.svc.Submit(context.Background(), input)
	require.NoError(t, err)

	require.True(t, second.Duplicate)
	require.Equal(t, first.Sale.ID, second.Sale.ID)
	require.Equal(t, 7, f.store.LotTotal("AMOX"))
	require.Len(t, f.repo.Sales(), 1)
	require.Equal(t, 1, f.cache.bumps)
}

func TestSubmitRunsPostCommitHooks(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	f.events.err = errors.New("broker down")
	f.product("AMOX", 100, 10)
	f.lot("AMOX", 10, 2025, 1)

	input := sales.SubmitInput{
		Channel:     sales.ChannelPrescription,
		PatientName: "  Sara Ahmadi ",
		DoctorRef:   "MC-4411",
		Lines:       []sales.LineInput{line("AMOX", 1)},
	}
	result, err := f.svc.Submit(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "Sara Ahmadi", result.Sale.PatientName)

	require.Len(t, f.audit.logs, 1)
	require.Equal(t, "sales:committed", f.audit.logs[0].Action)
	require.Equal(t, result.Sale.ID.String(), f.audit.logs[0].EntityID)
	require.Len(t, f.events.events, 1)
	require.Equal(t, result.Sale.ID, f.events.events[0].SaleID)
	require.Equal(t, 1, f.cache.bumps)
	require.Equal(t, 1, f.obs.outcomes["committed"])
}

func TestGetSaleNotFound(t *testing.T) {
	f := newFixture(sales.ServiceConfig{})
	_, err := f.svc.GetSale(context.Background(), uuid.New())
	require.ErrorIs(t, err, sales.ErrNotFound)
}
