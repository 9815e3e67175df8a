package valuation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type marketPrices struct {
	pool *pgxpool.Pool
}

// NewMarketPrices constructs a PricePort over the market_prices table.
func NewMarketPrices(pool *pgxpool.Pool) PricePort {
	return &marketPrices{pool: pool}
}

// CategoryPrice returns the latest quote at or before asOf for the category
// and method. ok=false when no quote exists.
func (p *marketPrices) CategoryPrice(ctx context.Context, categoryID int64, method Method, asOf time.Time) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := p.pool.QueryRow(ctx,
		`SELECT price_per_kg
FROM market_prices
WHERE category_id = $1 AND method = $2 AND quoted_at <= $3
ORDER BY quoted_at DESC
LIMIT 1`, categoryID, method, asOf).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return price, true, nil
}
