package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDisplayPivot is the auction progress at which the display curve
// crosses the market price.
var DefaultDisplayPivot = decimal.NewFromFloat(0.5)

// DisplayPrice returns the piecewise linear price used only to animate the
// auction for users. The curve goes from StartPrice to the market price in
// the first pivot fraction of the auction and from there to EndPrice in the
// remaining time. A market price outside [EndPrice, StartPrice] is clamped.
//
// It never drives settlement: fill prices always come from CurrentPrice.
func (o Order) DisplayPrice(
	now time.Time, marketPrice, pivot decimal.Decimal,
) decimal.Decimal {
	if !pivot.IsPositive() || pivot.GreaterThanOrEqual(decimalOne) {
		pivot = DefaultDisplayPivot
	}
	market := decimal.Min(decimal.Max(marketPrice, o.EndPrice), o.StartPrice)

	progress := o.Progress(now)
	if progress.LessThanOrEqual(pivot) {
		fraction := progress.Div(pivot)
		return o.StartPrice.Sub(o.StartPrice.Sub(market).Mul(fraction))
	}

	fraction := progress.Sub(pivot).Div(decimalOne.Sub(pivot))
	return market.Sub(market.Sub(o.EndPrice).Mul(fraction))
}
