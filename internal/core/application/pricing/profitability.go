// Package pricing evaluates the profitability of filling an order for a
// resolver as the auction price decays.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

var (
	DefaultMinProfitMargin = decimal.NewFromFloat(0.01)
	DefaultGasBuffer       = decimal.NewFromFloat(0.2)
)

// Evaluation is the profitability signal of an order at a given time.
type Evaluation struct {
	IsProfitable         bool
	ExpectedReturn       decimal.Decimal
	NetProfit            decimal.Decimal
	OptimalExecutionTime time.Time
}

// Analyzer computes profitability signals for resolvers. The expected return
// of a fill is the difference between the value of the source amount at the
// reference price and what the resolver pays at the current auction price,
// both in destination units.
type Analyzer struct {
	minProfitMargin decimal.Decimal
	gasBuffer       decimal.Decimal
}

func NewAnalyzer(minProfitMargin, gasBuffer decimal.Decimal) (*Analyzer, error) {
	if minProfitMargin.IsNegative() || minProfitMargin.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("min profit margin must be in range [0, 1)")
	}
	if gasBuffer.IsNegative() {
		return nil, fmt.Errorf("gas buffer must not be negative")
	}
	return &Analyzer{minProfitMargin, gasBuffer}, nil
}

// Evaluate uses the auction start price as reference price.
func (a *Analyzer) Evaluate(
	order domain.Order, now time.Time, gasCost decimal.Decimal,
) Evaluation {
	return a.EvaluateWithReference(order, now, gasCost, order.StartPrice)
}

// EvaluateWithReference evaluates the order against the given reference
// price, typically the market price of the pair.
func (a *Analyzer) EvaluateWithReference(
	order domain.Order, now time.Time, gasCost, reference decimal.Decimal,
) Evaluation {
	expectedReturn, netProfit, ok := a.evaluateAt(order, now, gasCost, reference)
	return Evaluation{
		IsProfitable:         ok,
		ExpectedReturn:       expectedReturn,
		NetProfit:            netProfit,
		OptimalExecutionTime: a.optimalExecutionTime(order, gasCost, reference),
	}
}

func (a *Analyzer) evaluateAt(
	order domain.Order, at time.Time, gasCost, reference decimal.Decimal,
) (decimal.Decimal, decimal.Decimal, bool) {
	price := order.CurrentPrice(at)
	expectedReturn := order.SrcAmount.Mul(reference.Sub(price))
	totalCost := gasCost.Mul(decimal.NewFromInt(1).Add(a.gasBuffer))
	netProfit := expectedReturn.Sub(totalCost)

	if !expectedReturn.IsPositive() {
		return expectedReturn, netProfit, false
	}
	margin := netProfit.Div(expectedReturn)
	return expectedReturn, netProfit, margin.GreaterThanOrEqual(a.minProfitMargin)
}

// optimalExecutionTime returns the earliest time of the auction at which the
// fill meets the target margin, or the auction end if it never does. Profit
// is non-decreasing while the price decays, so a binary search over the
// auction window in milliseconds is enough.
func (a *Analyzer) optimalExecutionTime(
	order domain.Order, gasCost, reference decimal.Decimal,
) time.Time {
	lo, hi := order.AuctionStart*1000, order.AuctionEnd*1000
	end := time.UnixMilli(hi)
	if _, _, ok := a.evaluateAt(order, end, gasCost, reference); !ok {
		return end
	}

	for lo < hi {
		mid := lo + (hi-lo)/2
		if _, _, ok := a.evaluateAt(order, time.UnixMilli(mid), gasCost, reference); ok {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return time.UnixMilli(lo)
}
