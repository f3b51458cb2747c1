package pricefeeder

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceSource fetches the spot price of a market ticker from an exchange.
type PriceSource interface {
	Name() string
	GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// ErrUnknownTicker is returned by sources that don't list the ticker.
type ErrUnknownTicker struct {
	Source string
	Ticker string
}

func (e ErrUnknownTicker) Error() string {
	return fmt.Sprintf("%s: unknown ticker %s", e.Source, e.Ticker)
}
