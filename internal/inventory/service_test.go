package inventory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/inventory/inventorytest"
	"github.com/odyssey-erp/pharmstock/internal/shared"
)

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestRegisterProductNormalisesAndAudits(t *testing.T) {
	store := inventorytest.NewStore()
	audit := &recordingAudit{}
	svc := inventory.NewService(store, audit, nil)

	product, err := svc.RegisterProduct(context.Background(), inventory.CreateProductInput{
		Code:         " amox５００ ",
		Name:         "Amoxicillin 500mg",
		UnitPrice:    decimal.RequireFromString("12500.456"),
		ReorderLevel: 20,
		OpeningStock: 40,
	})
	require.NoError(t, err)
	require.Equal(t, "AMOX500", product.Code)
	require.True(t, decimal.RequireFromString("12500.46").Equal(product.UnitPrice))

	stored, ok := store.Product("AMOX500")
	require.True(t, ok)
	require.Equal(t, 40, stored.Stock)
	require.Empty(t, store.Lots("AMOX500"))

	require.Len(t, audit.logs, 1)
	require.Equal(t, "AMOX500", audit.logs[0].EntityID)

	_, err = svc.RegisterProduct(context.Background(), inventory.CreateProductInput{Code: "amox500", Name: "dup"})
	require.ErrorIs(t, err, inventory.ErrProductExists)
}

func TestRegisterProductValidates(t *testing.T) {
	svc := inventory.NewService(inventorytest.NewStore(), nil, nil)
	_, err := svc.RegisterProduct(context.Background(), inventory.CreateProductInput{Code: "X"})
	require.ErrorIs(t, err, inventory.ErrInvalidProduct)

	_, err = svc.RegisterProduct(context.Background(), inventory.CreateProductInput{Code: "X", Name: "x", UnitPrice: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, inventory.ErrInvalidProduct)

	_, err = svc.RegisterProduct(context.Background(), inventory.CreateProductInput{Code: "X", Name: "x", OpeningStock: -1})
	require.ErrorIs(t, err, inventory.ErrInvalidProduct)
}

func TestPreviewPlanAndListLots(t *testing.T) {
	store := inventorytest.NewStore()
	seedProduct(store, "PARA", 5)
	store.PutLot(inventory.Lot{ProductCode: "PARA", Quantity: 0, Received: 3, ExpiresAt: inventorytest.Date(2024, 1, 1)})
	store.PutLot(inventory.Lot{ProductCode: "PARA", Quantity: 5, ExpiresAt: inventorytest.Date(2025, 1, 1)})
	svc := inventory.NewService(store, nil, nil)

	plan, err := svc.PreviewPlan(context.Background(), "para", 2)
	require.NoError(t, err)
	require.Equal(t, 2, plan.Total())

	lots, err := svc.ListLots(context.Background(), "PARA", false)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	lots, err = svc.ListLots(context.Background(), "PARA", true)
	require.NoError(t, err)
	require.Len(t, lots, 2)

	_, err = svc.ListLots(context.Background(), "NOPE", true)
	require.ErrorIs(t, err, inventory.ErrUnknownProduct)

	_, err = svc.PreviewPlan(context.Background(), "PARA", 0)
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
}
