package valuation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PricePort resolves a market quote per livestock category. Implementations
// may return ok=false when no quote exists for the category and date; the run
// then falls back to the method's reference price.
type PricePort interface {
	CategoryPrice(ctx context.Context, categoryID int64, method Method, asOf time.Time) (decimal.Decimal, bool, error)
}

// Reference prices per kg used when no market quote is available. These are
// stand-ins pending a real market-price integration and the persisted record
// names its price source so consumers can tell them apart.
var fallbackPrices = map[Method]decimal.Decimal{
	MethodWeightedAvg: decimal.NewFromInt(500),
	MethodHistorical:  decimal.NewFromInt(480),
	MethodMarket:      decimal.NewFromInt(520),
	MethodMixed:       decimal.NewFromInt(500),
}

// PriceSourceFallback marks a record whose unit prices came from the
// reference table rather than a market quote.
const PriceSourceFallback = "reference"

func fallbackPrice(method Method) decimal.Decimal {
	if price, ok := fallbackPrices[method]; ok {
		return price
	}
	return fallbackPrices[MethodWeightedAvg]
}

// weightedAvgUnitCost computes the quantity-weighted mean unit cost over all
// receipt movements dated at or before asOf. Zero when no qualifying movement
// exists.
func weightedAvgUnitCost(movements []StockMovement, asOf time.Time) decimal.Decimal {
	totalCost := decimal.Zero
	totalQty := decimal.Zero
	for _, m := range movements {
		if m.Kind != MovementEntry && m.Kind != MovementPurchase {
			continue
		}
		if m.At.After(asOf) {
			continue
		}
		qty := decimal.NewFromFloat(m.Quantity)
		totalCost = totalCost.Add(qty.Mul(m.UnitCost))
		totalQty = totalQty.Add(qty)
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalCost.Div(totalQty)
}
