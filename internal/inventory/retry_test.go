package inventory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
)

func TestRetryRepeatsTransientFailures(t *testing.T) {
	calls := 0
	err := inventory.Retry(context.Background(), 3, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return &inventory.TransientStoreError{Op: "commit", Err: errors.New("serialization failure")}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryStopsOnDomainErrors(t *testing.T) {
	calls := 0
	err := inventory.Retry(context.Background(), 5, func(ctx context.Context, attempt int) error {
		calls++
		return &inventory.InsufficientStockError{ProductCode: "X", Requested: 2, Available: 1}
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.Equal(t, 1, calls)
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := inventory.Retry(context.Background(), 2, func(ctx context.Context, attempt int) error {
		calls++
		return &inventory.TransientStoreError{Op: "lock", Err: errors.New("timeout")}
	})
	require.ErrorIs(t, err, inventory.ErrTransientStore)
	require.Equal(t, 2, calls)
}

func TestWrapStoreErrorClassifies(t *testing.T) {
	err := inventory.WrapStoreError("update lot", &pgconn.PgError{Code: "40P01"})
	var transient *inventory.TransientStoreError
	require.ErrorAs(t, err, &transient)
	require.Equal(t, "update lot", transient.Op)

	plain := errors.New("syntax error")
	require.Same(t, plain, inventory.WrapStoreError("x", plain))
	require.NoError(t, inventory.WrapStoreError("x", nil))
	require.False(t, inventory.IsDomainError(err))
	require.True(t, inventory.IsDomainError(&inventory.UnknownProductError{Code: "A"}))
}

func TestRetrySkipsWorkWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := inventory.Retry(ctx, 3, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls)
}

func TestRetryReturnsLastTransientErrorOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	err := inventory.Retry(ctx, 5, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return &inventory.TransientStoreError{Op: "commit", Err: errors.New("serialization failure")}
	})
	require.ErrorIs(t, err, inventory.ErrTransientStore)
	require.Equal(t, 1, calls)
}
