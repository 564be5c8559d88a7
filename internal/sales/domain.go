package sales

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
)

// ============================================================================
// SALE
// ============================================================================

// Channel identifies how a sale was dispensed.
type Channel string

const (
	ChannelOTC          Channel = "OTC"
	ChannelPrescription Channel = "PRESCRIPTION"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelOTC || c == ChannelPrescription
}

// Status is the lifecycle state of a sale. Only committed sales are persisted.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusCommitted Status = "COMMITTED"
)

type Sale struct {
	ID                  uuid.UUID       `json:"id"`
	Channel             Channel         `json:"channel"`
	PatientName         string          `json:"patient_name,omitempty"`
	PatientNationalCode string          `json:"patient_national_code,omitempty"`
	DoctorRef           string          `json:"doctor_ref,omitempty"`
	IdempotencyKey      string          `json:"idempotency_key,omitempty"`
	Status              Status          `json:"status"`
	Total               decimal.Decimal `json:"total"`
	CreatedAt           time.Time       `json:"created_at"`
	Lines               []Line          `json:"lines"`
}

type Line struct {
	Position    int             `json:"position"`
	ProductCode string          `json:"product_code"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Allocations []Allocation    `json:"allocations"`
}

// Allocation records one draw made for a line. LotID is zero for a draw on
// the aggregate counter.
type Allocation struct {
	LotID       int64                     `json:"lot_id,omitempty"`
	BatchNumber string                    `json:"batch_number,omitempty"`
	Source      inventory.StockSourceKind `json:"source"`
	Quantity    int                       `json:"quantity"`
}

// ============================================================================
// REQUESTS
// ============================================================================

type SubmitInput struct {
	Channel             Channel     `json:"channel" validate:"required,oneof=OTC PRESCRIPTION"`
	PatientName         string      `json:"patient_name" validate:"max=200"`
	PatientNationalCode string      `json:"patient_national_code" validate:"max=32"`
	DoctorRef           string      `json:"doctor_ref" validate:"max=64"`
	IdempotencyKey      string      `json:"idempotency_key" validate:"max=128"`
	Lines               []LineInput `json:"lines" validate:"required,min=1,dive"`
}

type LineInput struct {
	ProductCode string `json:"product_code" validate:"required,max=64"`
	Quantity    int    `json:"quantity"`
}

// Result is returned by Submit. Duplicate is set when the idempotency key
// matched an already committed sale, which is returned unchanged.
type Result struct {
	Sale      Sale
	Duplicate bool
}

// ============================================================================
// ERRORS
// ============================================================================

var (
	// ErrNotFound indicates a missing sale.
	ErrNotFound = errors.New("sales: sale not found")
	// ErrInvalidSale indicates a malformed sale header or empty line list.
	ErrInvalidSale = errors.New("sales: invalid sale")
	// ErrRejected matches every *RejectedError.
	ErrRejected = errors.New("sales: sale rejected")
)

// LineError ties a failure to the line that caused it.
type LineError struct {
	Position    int
	ProductCode string
	Err         error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d (%s): %v", e.Position, e.ProductCode, e.Err)
}

func (e LineError) Unwrap() error { return e.Err }

// Reason is a stable machine-readable failure kind.
func (e LineError) Reason() string {
	switch {
	case errors.Is(e.Err, inventory.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(e.Err, inventory.ErrUnknownProduct):
		return "unknown_product"
	case errors.Is(e.Err, inventory.ErrInvalidQuantity):
		return "invalid_quantity"
	default:
		return "error"
	}
}

// RejectedError lists every line that prevented a sale from committing.
// Nothing was written when it is returned.
type RejectedError struct {
	Lines []LineError
}

func (e *RejectedError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		parts = append(parts, l.Error())
	}
	return fmt.Sprintf("sales: sale rejected, %d line(s) failed: %s", len(e.Lines), strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrRejected) hold.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Unwrap exposes each line failure to errors.Is and errors.As.
func (e *RejectedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Lines))
	for _, l := range e.Lines {
		errs = append(errs, l)
	}
	return errs
}

// ============================================================================
// EVENTS
// ============================================================================

// SaleCommittedEvent is emitted after a sale transaction commits.
type SaleCommittedEvent struct {
	SaleID     uuid.UUID
	Channel    Channel
	Total      decimal.Decimal
	Lines      []Line
	OccurredAt time.Time
}
