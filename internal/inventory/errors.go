package inventory

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/pharmstock/internal/platform/db"
)

var (
	// ErrInvalidQuantity indicates a requested quantity below one.
	ErrInvalidQuantity = errors.New("inventory: quantity must be greater than zero")
	// ErrNegativeQuantity is returned when a mutation would drive a lot or product below zero.
	ErrNegativeQuantity = errors.New("inventory: quantity cannot go negative")
	// ErrInsufficientStock matches every *InsufficientStockError.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrUnknownProduct matches every *UnknownProductError.
	ErrUnknownProduct = errors.New("inventory: unknown product")
	// ErrTransientStore matches every *TransientStoreError.
	ErrTransientStore = errors.New("inventory: transient store failure")
	// ErrLotNotFound indicates a missing lot id.
	ErrLotNotFound = errors.New("inventory: lot not found")
	// ErrProductExists indicates a duplicate product code.
	ErrProductExists = errors.New("inventory: product already registered")
	// ErrInvalidProduct indicates a product registration that fails validation.
	ErrInvalidProduct = errors.New("inventory: invalid product")
	// ErrInvalidLot indicates a lot that cannot be stored.
	ErrInvalidLot = errors.New("inventory: invalid lot")
)

// InsufficientStockError reports a shortfall for one product.
type InsufficientStockError struct {
	ProductCode string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %s: requested %d, available %d", e.ProductCode, e.Requested, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientStock) hold.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// UnknownProductError reports a product code missing from the catalog.
type UnknownProductError struct {
	Code string
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("inventory: unknown product %q", e.Code)
}

// Is makes errors.Is(err, ErrUnknownProduct) hold.
func (e *UnknownProductError) Is(target error) bool {
	return target == ErrUnknownProduct
}

// TransientStoreError wraps a store failure that may succeed on retry:
// serialization conflicts, deadlocks, lock and statement timeouts.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("inventory: transient store failure during %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransientStore) hold.
func (e *TransientStoreError) Is(target error) bool {
	return target == ErrTransientStore
}

// WrapStoreError converts transient database failures into *TransientStoreError
// and passes every other error through untouched.
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var transient *TransientStoreError
	if errors.As(err, &transient) {
		return err
	}
	if db.IsTransient(err) {
		return &TransientStoreError{Op: op, Err: err}
	}
	return err
}

// IsDomainError reports whether err is a business rejection rather than an
// infrastructure failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrInvalidQuantity)
}
