package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// LegacyBatchNumber marks the synthetic lot created when aggregate-only stock is migrated.
const LegacyBatchNumber = "LEGACY"

// Product is a catalog entry. Stock is the aggregate on-hand counter kept
// alongside the lots.
type Product struct {
	Code         string
	Name         string
	UnitPrice    decimal.Decimal
	Stock        int
	ReorderLevel int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Lot is a received batch of one product. A nil ExpiresAt sorts after every
// dated lot and is only used for migrated legacy stock.
type Lot struct {
	ID             int64
	ProductCode    string
	SourceDocument string
	BatchNumber    string
	Quantity       int
	Received       int
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// Legacy reports whether the lot was synthesised from aggregate stock.
func (l Lot) Legacy() bool {
	return l.BatchNumber == LegacyBatchNumber && l.ExpiresAt == nil
}

// StockSourceKind tells where availability for a product comes from.
type StockSourceKind string

const (
	// SourceLotBacked products are allocated from their lots.
	SourceLotBacked StockSourceKind = "LOT_BACKED"
	// SourceAggregateOnly products have never had a lot row and draw from Product.Stock.
	SourceAggregateOnly StockSourceKind = "AGGREGATE_ONLY"
)

// StockSource is the resolved availability of one product. Lots holds only
// lots with positive quantity, in FEFO order.
type StockSource struct {
	Kind    StockSourceKind
	Product Product
	Lots    []Lot
}

// LotBacked builds a lot-backed source.
func LotBacked(product Product, lots []Lot) StockSource {
	return StockSource{Kind: SourceLotBacked, Product: product, Lots: lots}
}

// AggregateOnly builds a source backed only by the product counter.
func AggregateOnly(product Product) StockSource {
	return StockSource{Kind: SourceAggregateOnly, Product: product}
}

// Available returns the quantity that can be planned from the source.
func (s StockSource) Available() int {
	if s.Kind == SourceAggregateOnly {
		return max(s.Product.Stock, 0)
	}
	total := 0
	for _, lot := range s.Lots {
		if lot.Quantity > 0 {
			total += lot.Quantity
		}
	}
	return total
}

// PlanEntry is one draw of a plan. LotID is zero for a draw on the aggregate counter.
type PlanEntry struct {
	LotID       int64
	BatchNumber string
	ExpiresAt   *time.Time
	Quantity    int
}

// Aggregate reports whether the entry draws on Product.Stock rather than a lot.
func (e PlanEntry) Aggregate() bool {
	return e.LotID == 0
}

// Plan is the ordered list of draws that satisfies one requested quantity.
type Plan struct {
	ProductCode string
	Requested   int
	Source      StockSourceKind
	Entries     []PlanEntry
}

// Total sums the planned quantities.
func (p Plan) Total() int {
	total := 0
	for _, e := range p.Entries {
		total += e.Quantity
	}
	return total
}

// CreateProductInput registers a product. OpeningStock seeds the aggregate
// counter without creating lots, as imported legacy stock does.
type CreateProductInput struct {
	Code         string          `json:"code" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ReorderLevel int             `json:"reorder_level" validate:"gte=0"`
	OpeningStock int             `json:"opening_stock" validate:"gte=0"`
}
