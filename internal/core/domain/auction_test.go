package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

func TestAuctionCurrentPrice(t *testing.T) {
	start := time.Unix(1700000000, 0)
	order := newTestOrder(t, start, 600*time.Second)

	tests := []struct {
		name           string
		at             time.Time
		expectedPrice  string
		expectedStatus domain.AuctionStatus
	}{
		{
			name:           "before_start",
			at:             start.Add(-time.Minute),
			expectedPrice:  "100",
			expectedStatus: domain.AuctionPending,
		},
		{
			name:           "at_start",
			at:             start,
			expectedPrice:  "100",
			expectedStatus: domain.AuctionActive,
		},
		{
			name:           "half_way",
			at:             start.Add(300 * time.Second),
			expectedPrice:  "75",
			expectedStatus: domain.AuctionActive,
		},
		{
			name:           "at_end",
			at:             start.Add(600 * time.Second),
			expectedPrice:  "50",
			expectedStatus: domain.AuctionActive,
		},
		{
			name:           "after_end",
			at:             start.Add(601 * time.Second),
			expectedPrice:  "50",
			expectedStatus: domain.AuctionExpired,
		},
	}

	for i := range tests {
		tt := tests[i]

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			price := order.CurrentPrice(tt.at)
			require.True(
				t, decimal.RequireFromString(tt.expectedPrice).Equal(price),
				"expected %s, got %s", tt.expectedPrice, price,
			)
			require.Equal(t, tt.expectedStatus, order.AuctionStatus(tt.at))
		})
	}
}

func TestAuctionPriceIsMonotonic(t *testing.T) {
	start := time.Unix(1700000000, 0)
	order := newTestOrder(t, start, 600*time.Second)

	prev := order.CurrentPrice(start)
	for ms := int64(0); ms <= 600_000; ms += 997 {
		price := order.CurrentPrice(start.Add(time.Duration(ms) * time.Millisecond))
		require.True(t, price.LessThanOrEqual(prev))
		require.True(t, price.GreaterThanOrEqual(order.EndPrice))
		require.True(t, price.LessThanOrEqual(order.StartPrice))
		prev = price
	}
}

func TestAuctionQuote(t *testing.T) {
	start := time.Unix(1700000000, 0)
	order := newTestOrder(t, start, 600*time.Second)

	quote := order.Quote(start.Add(150 * time.Second))
	require.Equal(t, "87.5", quote.CurrentPrice.String())
	require.Equal(t, "0.25", quote.Progress.String())
	require.Equal(t, 450*time.Second, quote.TimeRemaining)

	require.Equal(t, "0.0833333333333333", order.DecayRate().String())
	require.Zero(t, order.TimeRemaining(start.Add(time.Hour)))
}

func TestDisplayPrice(t *testing.T) {
	start := time.Unix(1700000000, 0)
	order := newTestOrder(t, start, 600*time.Second)
	market := decimal.NewFromInt(90)
	pivot := domain.DefaultDisplayPivot

	require.Equal(t, "100", order.DisplayPrice(start, market, pivot).String())
	require.Equal(t, "90", order.DisplayPrice(start.Add(300*time.Second), market, pivot).String())
	require.Equal(t, "50", order.DisplayPrice(start.Add(600*time.Second), market, pivot).String())

	// Market prices outside the auction range are clamped.
	outOfRange := decimal.NewFromInt(1000)
	require.Equal(
		t, "100", order.DisplayPrice(start.Add(300*time.Second), outOfRange, pivot).String(),
	)
}

func TestBidRanking(t *testing.T) {
	now := time.Now()
	bids := []domain.ResolverBid{
		{ResolverID: "a", Price: decimal.NewFromInt(60), Timestamp: now},
		{ResolverID: "b", Price: decimal.NewFromInt(62), Timestamp: now.Add(50 * time.Millisecond)},
		{ResolverID: "c", Price: decimal.NewFromInt(62), Timestamp: now.Add(10 * time.Millisecond)},
	}

	ranked := domain.RankBids(bids)
	require.Equal(t, []string{"c", "b", "a"}, []string{
		ranked[0].ResolverID, ranked[1].ResolverID, ranked[2].ResolverID,
	})
	require.Equal(t, "a", bids[0].ResolverID)
}

func TestBidValidate(t *testing.T) {
	start := time.Now().Add(-300 * time.Second)
	order := newTestOrder(t, start, 600*time.Second)
	at := start.Add(300 * time.Second)

	bid := domain.ResolverBid{
		OrderID:    order.ID,
		ResolverID: resolverID,
		Price:      decimal.NewFromInt(76),
		Timestamp:  at,
	}
	require.NoError(t, bid.Validate(order))

	bid.Price = decimal.NewFromInt(74)
	require.ErrorIs(t, bid.Validate(order), domain.ErrBidBelowPrice)
	require.ErrorIs(t, bid.Validate(order), domain.ErrValidation)

	bid.Price = decimal.NewFromInt(80)
	bid.OrderID = "other"
	require.ErrorIs(t, bid.Validate(order), domain.ErrValidation)
}
