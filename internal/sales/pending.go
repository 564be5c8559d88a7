package sales

import (
	"context"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
)

// pendingView resolves each product's stock source once per transaction and
// hides quantities already planned by earlier lines of the same sale.
type pendingView struct {
	reader   inventory.Reader
	sources  map[string]inventory.StockSource
	lotDraws map[int64]int
	aggDraws map[string]int
}

func newPendingView(r inventory.Reader) *pendingView {
	return &pendingView{
		reader:   r,
		sources:  map[string]inventory.StockSource{},
		lotDraws: map[int64]int{},
		aggDraws: map[string]int{},
	}
}

func (v *pendingView) source(ctx context.Context, code string) (inventory.StockSource, error) {
	src, ok := v.sources[code]
	if !ok {
		var err error
		src, err = inventory.ResolveSource(ctx, v.reader, code)
		if err != nil {
			return inventory.StockSource{}, err
		}
		v.sources[code] = src
	}

	adjusted := src
	adjusted.Product.Stock -= v.aggDraws[code]
	if src.Kind == inventory.SourceLotBacked {
		adjusted.Lots = make([]inventory.Lot, 0, len(src.Lots))
		for _, lot := range src.Lots {
			lot.Quantity -= v.lotDraws[lot.ID]
			if lot.Quantity > 0 {
				adjusted.Lots = append(adjusted.Lots, lot)
			}
		}
	}
	return adjusted, nil
}

func (v *pendingView) reserve(plan inventory.Plan) {
	for _, e := range plan.Entries {
		if e.Aggregate() {
			v.aggDraws[plan.ProductCode] += e.Quantity
			continue
		}
		v.lotDraws[e.LotID] += e.Quantity
	}
}
