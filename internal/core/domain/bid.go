package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ResolverBid is the offer of a resolver to fill an order at the given price.
type ResolverBid struct {
	OrderID    string
	ResolverID string
	Price      decimal.Decimal
	Timestamp  time.Time
}

// Validate checks the bid against the order at the time of submission.
func (b ResolverBid) Validate(order Order) error {
	if strings.TrimSpace(b.ResolverID) == "" {
		return newValidationError("resolver_id", "missing")
	}
	if b.OrderID != order.ID {
		return newValidationError("order_id", "bid does not target order %s", order.ID)
	}
	if !b.Price.IsPositive() {
		return newValidationError("price", "must be positive")
	}
	if b.Price.LessThan(order.CurrentPrice(b.Timestamp)) {
		return ErrBidBelowPrice
	}
	if order.DstAmountAt(b.Price).LessThan(order.MinDstAmount) {
		return newValidationError("price", "fill below min destination amount")
	}
	return nil
}

// Better returns whether the bid is preferable to other for the maker: higher
// price first, earlier timestamp on ties.
func (b ResolverBid) Better(other ResolverBid) bool {
	if !b.Price.Equal(other.Price) {
		return b.Price.GreaterThan(other.Price)
	}
	return b.Timestamp.Before(other.Timestamp)
}

// RankBids returns a copy of the bids sorted from the best to the worst.
func RankBids(bids []ResolverBid) []ResolverBid {
	ranked := make([]ResolverBid, len(bids))
	copy(ranked, bids)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Better(ranked[j])
	})
	return ranked
}
