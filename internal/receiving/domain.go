package receiving

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
)

// LineStatus records what happened to a purchase line.
type LineStatus string

const (
	// LineReceived lines created a lot and raised aggregate stock.
	LineReceived LineStatus = "RECEIVED"
	// LineUnknownProduct lines were kept on the document but moved no stock.
	LineUnknownProduct LineStatus = "UNKNOWN_PRODUCT"
)

// Document is a recorded purchase invoice.
type Document struct {
	ID              uuid.UUID       `json:"id"`
	InvoiceNumber   string          `json:"invoice_number"`
	Supplier        string          `json:"supplier"`
	InvoiceDate     *time.Time      `json:"invoice_date,omitempty"`
	Note            string          `json:"note,omitempty"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	Payable         decimal.Decimal `json:"payable"`
	CreatedAt       time.Time       `json:"created_at"`
	Lines           []Line          `json:"lines"`
}

// Line is one purchased item.
type Line struct {
	Position    int             `json:"position"`
	ProductCode string          `json:"product_code"`
	BatchNumber string          `json:"batch_number"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Quantity    int             `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	LotID       int64           `json:"lot_id,omitempty"`
	Status      LineStatus      `json:"status"`
}

// ReceiveInput is a purchase document submission. Dates use YYYY-MM-DD.
type ReceiveInput struct {
	InvoiceNumber   string          `json:"invoice_number" validate:"required,max=64"`
	Supplier        string          `json:"supplier" validate:"max=200"`
	InvoiceDate     string          `json:"invoice_date" validate:"omitempty,datetime=2006-01-02"`
	Note            string          `json:"note" validate:"max=1000"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	Lines           []LineInput     `json:"lines" validate:"required,min=1,dive"`
}

// LineInput gives either Quantity in units or Packages with UnitsPerPackage.
type LineInput struct {
	ProductCode     string          `json:"product_code" validate:"required,max=64"`
	BatchNumber     string          `json:"batch_number" validate:"max=64"`
	ExpiryDate      string          `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	Quantity        int             `json:"quantity" validate:"gte=0,lte=2147483647"`
	Packages        int             `json:"packages" validate:"gte=0,lte=2147483647"`
	UnitsPerPackage int             `json:"units_per_package" validate:"gte=0,lte=2147483647"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

// MaxLineUnits is the largest quantity a lot or stock column can hold.
const MaxLineUnits = math.MaxInt32

// Units resolves the received quantity. ok is false when the quantity does
// not fit MaxLineUnits.
func (l LineInput) Units() (units int, ok bool) {
	if l.Quantity > 0 {
		return l.Quantity, l.Quantity <= MaxLineUnits
	}
	if l.Packages <= 0 || l.UnitsPerPackage <= 0 {
		return 0, true
	}
	if l.Packages > MaxLineUnits/l.UnitsPerPackage {
		return 0, false
	}
	return l.Packages * l.UnitsPerPackage, true
}

// LineFailure reports a line whose stock movement was skipped.
type LineFailure struct {
	Position    int
	ProductCode string
	Err         error
}

func (f LineFailure) Error() string {
	return fmt.Sprintf("line %d (%s): %v", f.Position, f.ProductCode, f.Err)
}

func (f LineFailure) Unwrap() error { return f.Err }

// Result carries the committed document and the lines that moved no stock.
type Result struct {
	Document Document
	Failures []LineFailure
}

var (
	// ErrDuplicateDocument indicates the invoice number was already received.
	ErrDuplicateDocument = errors.New("receiving: invoice already received")
	// ErrInvalidDocument indicates a malformed document.
	ErrInvalidDocument = errors.New("receiving: invalid document")
	// ErrNotFound indicates a missing document.
	ErrNotFound = errors.New("receiving: document not found")
)

// DocumentReceivedEvent is emitted after a purchase document commits.
type DocumentReceivedEvent struct {
	DocumentID    uuid.UUID
	InvoiceNumber string
	Supplier      string
	Payable       decimal.Decimal
	Lines         []Line
	OccurredAt    time.Time
}

var hundred = decimal.NewFromInt(100)

// ComputePayable applies percentage and flat discounts, tax and shipping to
// the line total. The result never drops below zero.
func ComputePayable(total, discountPercent, discountAmount, taxPercent, shipping decimal.Decimal) decimal.Decimal {
	discount := total.Mul(discountPercent).Div(hundred)
	tax := total.Mul(taxPercent).Div(hundred)
	payable := total.Sub(discount).Sub(discountAmount).Add(tax).Add(shipping)
	if payable.IsNegative() {
		return decimal.Zero
	}
	return payable.Round(2)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(inventory.DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
