package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource fetches the spot price of a market ticker from an external
// provider.
type PriceSource interface {
	Name() string
	GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// PriceFeed is the latest known price of a ticker.
type PriceFeed struct {
	Ticker    string
	Price     decimal.Decimal
	UpdatedAt time.Time
}

// PriceFeeder keeps the prices of the subscribed tickers up to date. Polling
// of a ticker starts with its first subscriber and stops with the last one.
type PriceFeeder interface {
	// Subscribe registers interest in the ticker and returns the id of the
	// subscription.
	Subscribe(ticker string) string
	// Unsubscribe removes the subscription with the given id.
	Unsubscribe(id string)
	// GetPrice returns the latest price fetched for the ticker, if any.
	GetPrice(ticker string) (*PriceFeed, bool)
	// Close stops every running poller.
	Close()
}
