package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the position of a timestamp with respect to the auction
// window of an order.
type AuctionStatus int

const (
	AuctionPending AuctionStatus = iota
	AuctionActive
	AuctionExpired
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionPending:
		return "pending"
	case AuctionActive:
		return "active"
	case AuctionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// AuctionQuote is the price snapshot of an order at a given time. It's
// derived on demand and never stored.
type AuctionQuote struct {
	CurrentPrice  decimal.Decimal
	Progress      decimal.Decimal
	TimeRemaining time.Duration
}

var (
	decimalZero = decimal.Zero
	decimalOne  = decimal.NewFromInt(1)
)

// AuctionStatus returns pending before the auction start, active within the
// window bounds included, and expired strictly after the auction end.
func (o Order) AuctionStatus(now time.Time) AuctionStatus {
	ms := now.UnixMilli()
	switch {
	case ms < o.AuctionStart*1000:
		return AuctionPending
	case ms > o.AuctionEnd*1000:
		return AuctionExpired
	default:
		return AuctionActive
	}
}

// Progress returns the elapsed fraction of the auction clamped to [0, 1].
func (o Order) Progress(now time.Time) decimal.Decimal {
	elapsed, duration := o.elapsed(now)
	if elapsed <= 0 {
		return decimalZero
	}
	if elapsed >= duration {
		return decimalOne
	}
	return decimal.NewFromInt(elapsed).Div(decimal.NewFromInt(duration))
}

// CurrentPrice returns the price of the linear decay curve at the given time.
// It's exactly StartPrice up to the auction start and exactly EndPrice from
// the auction end on. This is the only curve used to agree on fill prices.
func (o Order) CurrentPrice(now time.Time) decimal.Decimal {
	elapsed, duration := o.elapsed(now)
	if elapsed <= 0 {
		return o.StartPrice
	}
	if elapsed >= duration {
		return o.EndPrice
	}
	decay := o.StartPrice.Sub(o.EndPrice).
		Mul(decimal.NewFromInt(elapsed)).
		Div(decimal.NewFromInt(duration))
	return o.StartPrice.Sub(decay)
}

// DecayRate returns how much the price drops every second of the auction.
func (o Order) DecayRate() decimal.Decimal {
	duration := o.AuctionEnd - o.AuctionStart
	if duration <= 0 {
		return decimalZero
	}
	return o.StartPrice.Sub(o.EndPrice).Div(decimal.NewFromInt(duration))
}

// TimeRemaining returns the time left before the auction end, zero once the
// auction is over.
func (o Order) TimeRemaining(now time.Time) time.Duration {
	remaining := time.Unix(o.AuctionEnd, 0).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Quote returns the auction snapshot at the given time.
func (o Order) Quote(now time.Time) AuctionQuote {
	return AuctionQuote{
		CurrentPrice:  o.CurrentPrice(now),
		Progress:      o.Progress(now),
		TimeRemaining: o.TimeRemaining(now),
	}
}

// elapsed returns milliseconds passed since the auction start and the
// auction duration in milliseconds.
func (o Order) elapsed(now time.Time) (int64, int64) {
	start := o.AuctionStart * 1000
	return now.UnixMilli() - start, o.AuctionEnd*1000 - start
}
