package perf

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/inventory/inventorytest"
	"github.com/odyssey-erp/pharmstock/internal/sales"
	"github.com/odyssey-erp/pharmstock/internal/sales/salestest"
)

func lotBackedSource(lots int) inventory.StockSource {
	product := inventory.Product{Code: "AMOX500", UnitPrice: decimal.RequireFromString("1.20")}
	out := make([]inventory.Lot, 0, lots)
	base := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < lots; i++ {
		exp := base.AddDate(0, 0, i)
		out = append(out, inventory.Lot{ID: int64(i + 1), ProductCode: product.Code, Quantity: 10, Received: 10, ExpiresAt: &exp})
		product.Stock += 10
	}
	return inventory.LotBacked(product, out)
}

func BenchmarkPlanAcrossLots(b *testing.B) {
	planner := inventory.NewPlanner()
	for _, lots := range []int{1, 16, 256} {
		src := lotBackedSource(lots)
		qty := lots * 10
		b.Run(fmt.Sprintf("lots=%d", lots), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := planner.PlanFrom(src, qty); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func newSettlementFixture(tb testing.TB, stock int) (*sales.Service, *inventorytest.Store) {
	tb.Helper()
	store := inventorytest.NewStore()
	perLot := stock / 8
	store.PutProduct(inventory.Product{Code: "PARA500", Name: "Paracetamol", UnitPrice: decimal.RequireFromString("0.35"), Stock: perLot * 8})
	for i := 0; i < 8; i++ {
		store.PutLot(inventory.Lot{
			ProductCode: "PARA500",
			BatchNumber: fmt.Sprintf("PCM-%d", i),
			Quantity:    perLot,
			Received:    perLot,
			ExpiresAt:   inventorytest.Date(2027, time.Month(i+1), 1),
		})
	}
	return sales.NewService(salestest.NewRepo(store), nil, nil, nil, nil, sales.ServiceConfig{}, nil), store
}

func BenchmarkSettleSingleLine(b *testing.B) {
	svc, _ := newSettlementFixture(b, 8*b.N+8)
	input := sales.SubmitInput{
		Channel: sales.ChannelOTC,
		Lines:   []sales.LineInput{{ProductCode: "PARA500", Quantity: 1}},
	}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Submit(ctx, input); err != nil {
			b.Fatal(err)
		}
	}
}

func TestSettlementLatencyTarget(t *testing.T) {
	svc, store := newSettlementFixture(t, 800)
	ctx := context.Background()
	input := sales.SubmitInput{
		Channel: sales.ChannelOTC,
		Lines:   []sales.LineInput{{ProductCode: "PARA500", Quantity: 3}},
	}

	samples := make([]time.Duration, 0, 100)
	for i := 0; i < 100; i++ {
		start := time.Now()
		_, err := svc.Submit(ctx, input)
		require.NoError(t, err)
		samples = append(samples, time.Since(start))
	}

	require.Equal(t, 500, store.LotTotal("PARA500"))
	if p95 := percentile95(samples); p95 > 50*time.Millisecond {
		t.Fatalf("in-memory settlement regression: p95=%s", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
