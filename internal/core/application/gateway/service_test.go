package gateway_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xswap-network/xswapd/internal/core/application/events"
	"github.com/xswap-network/xswapd/internal/core/application/gateway"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

func TestSubmitOrder(t *testing.T) {
	env := newTestEnv(t, testConfig())

	t.Run("valid", func(t *testing.T) {
		order := newTestOrder(t, anchor, 10*time.Minute)
		info, err := env.svc.SubmitOrder(ctx, order)
		require.NoError(t, err)
		require.Equal(t, order.HashString(), info.Order.ID)
		require.Equal(t, domain.OrderStateActive, info.State)

		_, err = env.svc.SubmitOrder(ctx, order)
		require.ErrorIs(t, err, domain.ErrOrderAlreadyExists)

		orders, err := env.svc.ListOrders(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, orders)
	})

	t.Run("pending until auction start", func(t *testing.T) {
		order := newTestOrder(t, anchor.Add(time.Minute), 10*time.Minute)
		info, err := env.svc.SubmitOrder(ctx, order)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatePending, info.State)

		_, err = env.svc.SubmitBid(ctx, info.Order.ID, "resolver", decimal.NewFromInt(100))
		require.ErrorIs(t, err, domain.ErrOrderNotBiddable)

		env.clock.Advance(time.Minute)
		env.waitForState(t, info.Order.ID, domain.OrderStateActive)
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name        string
			order       func() domain.Order
			expectedErr error
		}{
			{
				name: "tampered order",
				order: func() domain.Order {
					o := newTestOrder(t, anchor, 10*time.Minute)
					o.SrcAmount = decimal.NewFromInt(3)
					return o
				},
				expectedErr: domain.ErrValidation,
			},
			{
				name: "expired",
				order: func() domain.Order {
					return newTestOrder(t, anchor.Add(-time.Hour), 10*time.Minute)
				},
				expectedErr: domain.ErrOrderExpired,
			},
		}

		for i := range tests {
			tt := tests[i]
			t.Run(tt.name, func(t *testing.T) {
				_, err := env.svc.SubmitOrder(ctx, tt.order())
				require.ErrorIs(t, err, tt.expectedErr)
			})
		}
	})
}

func TestSubmitBid(t *testing.T) {
	env := newTestEnv(t, testConfig())

	order := newTestOrder(t, anchor, 10*time.Minute)
	_, err := env.svc.SubmitOrder(ctx, order)
	require.NoError(t, err)
	env.clock.Advance(5 * time.Minute)

	tests := []struct {
		name        string
		orderID     string
		resolverID  string
		price       decimal.Decimal
		expectedErr error
	}{
		{"unknown order", "unknown", "r1", decimal.NewFromInt(80), domain.ErrOrderNotFound},
		{"missing resolver", order.ID, "", decimal.NewFromInt(80), domain.ErrValidation},
		{"non positive price", order.ID, "r1", decimal.Zero, domain.ErrValidation},
		{"below current price", order.ID, "r1", decimal.NewFromInt(74), domain.ErrBidBelowPrice},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.SubmitBid(ctx, tt.orderID, tt.resolverID, tt.price)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}

	t.Run("replace with better bid only", func(t *testing.T) {
		bid, err := env.svc.SubmitBid(ctx, order.ID, "r1", decimal.NewFromInt(80))
		require.NoError(t, err)
		require.Equal(t, "80", bid.Price.String())

		bid, err = env.svc.SubmitBid(ctx, order.ID, "r1", decimal.NewFromInt(76))
		require.NoError(t, err)
		require.Equal(t, "80", bid.Price.String())

		_, err = env.svc.SubmitBid(ctx, order.ID, "r1", decimal.NewFromInt(85))
		require.NoError(t, err)
		_, err = env.svc.SubmitBid(ctx, order.ID, "r2", decimal.NewFromInt(75))
		require.NoError(t, err)

		bids, err := env.svc.ListBids(ctx, order.ID)
		require.NoError(t, err)
		require.Len(t, bids, 2)
		require.Equal(t, "r1", bids[0].ResolverID)
		require.Equal(t, "85", bids[0].Price.String())
	})
}

// Two bids a few milliseconds apart: the best one wins and the other
// resolver is told it lost the race.
func TestBidRace(t *testing.T) {
	env := newTestEnv(t, testConfig())

	order := newTestOrder(t, anchor, 10*time.Minute)
	_, err := env.svc.SubmitOrder(ctx, order)
	require.NoError(t, err)

	loserConn, winnerConn := newFakeConn(false), newFakeConn(false)
	_, err = env.svc.Connect("r1", loserConn, nil)
	require.NoError(t, err)
	_, err = env.svc.Connect("r2", winnerConn, nil)
	require.NoError(t, err)

	// Current price is 60 at 80% of the auction.
	env.clock.Advance(8 * time.Minute)
	_, err = env.svc.SubmitBid(ctx, order.ID, "r1", decimal.NewFromInt(60))
	require.NoError(t, err)
	env.clock.Advance(20 * time.Millisecond)
	_, err = env.svc.SubmitBid(ctx, order.ID, "r2", decimal.NewFromInt(62))
	require.NoError(t, err)

	commitment, err := env.svc.AcceptBid(ctx, order.ID, "")
	require.NoError(t, err)
	require.Equal(t, "r2", commitment.ResolverID)
	require.Equal(t, "62", commitment.FillPrice.String())
	require.Equal(t, "124", commitment.DstAmount.String())
	require.Nil(t, commitment.Secret)
	require.NotEmpty(t, commitment.SecretHash)

	rejected := loserConn.waitFor(t, events.BidRejected)
	require.Equal(t, domain.ErrBidRaceLost.Error(), rejected.Data.(events.BidRejectedData).Reason)
	winnerConn.waitFor(t, events.OrderMatched)
	require.Empty(t, winnerConn.received(events.BidRejected))

	_, err = env.svc.SubmitBid(ctx, order.ID, "r1", decimal.NewFromInt(70))
	require.ErrorIs(t, err, domain.ErrBidRaceLost)
	_, err = env.svc.AcceptBid(ctx, order.ID, "r1")
	require.ErrorIs(t, err, domain.ErrBidRaceLost)

	info, err := env.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStateMatched, info.State)
	require.Equal(t, 1, env.committer.numOfCommits())
}

func TestConcurrentAcceptance(t *testing.T) {
	env := newTestEnv(t, testConfig())

	order := newTestOrder(t, anchor, 10*time.Minute)
	_, err := env.svc.SubmitOrder(ctx, order)
	require.NoError(t, err)

	resolvers := []string{"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8", "r9"}
	for i, r := range resolvers {
		_, err := env.svc.SubmitBid(ctx, order.ID, r, decimal.NewFromInt(int64(100+i)))
		require.NoError(t, err)
	}

	var (
		wg        sync.WaitGroup
		lock      sync.Mutex
		successes int
		lost      int
	)
	for _, r := range resolvers {
		wg.Add(1)
		go func(resolverID string) {
			defer wg.Done()
			_, err := env.svc.AcceptBid(ctx, order.ID, resolverID)

			lock.Lock()
			defer lock.Unlock()
			if err == nil {
				successes++
				return
			}
			if err == domain.ErrBidRaceLost {
				lost++
			}
		}(r)
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, len(resolvers)-1, lost)
	require.Equal(t, 1, env.committer.numOfCommits())
}

func TestOrderExpiration(t *testing.T) {
	env := newTestEnv(t, testConfig())

	conn := newFakeConn(false)
	_, err := env.svc.Connect("r1", conn, nil)
	require.NoError(t, err)

	order := newTestOrder(t, anchor, time.Minute)
	_, err = env.svc.SubmitOrder(ctx, order)
	require.NoError(t, err)
	_, err = env.svc.SubmitBid(ctx, order.ID, "r1", decimal.NewFromInt(100))
	require.NoError(t, err)

	env.clock.Advance(time.Minute + time.Second)
	env.waitForState(t, order.ID, domain.OrderStateExpired)

	conn.waitFor(t, events.OrderExpired)
	rejected := conn.waitFor(t, events.BidRejected)
	require.Equal(t, domain.ErrOrderExpired.Error(), rejected.Data.(events.BidRejectedData).Reason)

	_, err = env.svc.SubmitBid(ctx, order.ID, "r1", decimal.NewFromInt(100))
	require.ErrorIs(t, err, domain.ErrOrderExpired)
	_, err = env.svc.AcceptBid(ctx, order.ID, "r1")
	require.ErrorIs(t, err, domain.ErrOrderExpired)
	require.Zero(t, env.committer.numOfCommits())
}

func TestAutoAccept(t *testing.T) {
	cfg := testConfig()
	cfg.BidWindow = 30 * time.Millisecond
	env := newTestEnv(t, cfg)

	order := newTestOrder(t, anchor, 10*time.Minute)
	_, err := env.svc.SubmitOrder(ctx, order)
	require.NoError(t, err)

	conn := newFakeConn(false)
	_, err = env.svc.Connect("r1", conn, nil)
	require.NoError(t, err)

	_, err = env.svc.SubmitBid(ctx, order.ID, "r1", decimal.NewFromInt(100))
	require.NoError(t, err)

	env.waitForState(t, order.ID, domain.OrderStateMatched)
	matched := conn.waitFor(t, events.OrderMatched)
	require.Equal(t, "r1", matched.Data.(events.OrderMatchedData).ResolverID)
	require.Equal(t, 1, env.committer.numOfCommits())
}

func TestRequestCancel(t *testing.T) {
	env := newTestEnv(t, testConfig())

	active := newTestOrder(t, anchor, 10*time.Minute)
	_, err := env.svc.SubmitOrder(ctx, active)
	require.NoError(t, err)
	require.NoError(t, env.svc.RequestCancel(ctx, active.ID))
	env.waitForState(t, active.ID, domain.OrderStateCancelled)

	_, err = env.svc.SubmitBid(ctx, active.ID, "r1", decimal.NewFromInt(100))
	require.ErrorIs(t, err, domain.ErrOrderNotBiddable)
	err = env.svc.RequestCancel(ctx, active.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	matched := newTestOrder(t, anchor, 10*time.Minute)
	_, err = env.svc.SubmitOrder(ctx, matched)
	require.NoError(t, err)
	_, err = env.svc.SubmitBid(ctx, matched.ID, "r1", decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = env.svc.AcceptBid(ctx, matched.ID, "r1")
	require.NoError(t, err)

	require.NoError(t, env.svc.RequestCancel(ctx, matched.ID))
	require.Equal(t, int32(1), env.committer.cancelRequests)
}

func TestFailedCommitCancelsOrder(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.committer.err = errors.New("store unavailable")

	order := newTestOrder(t, anchor, 10*time.Minute)
	_, err := env.svc.SubmitOrder(ctx, order)
	require.NoError(t, err)

	conn := newFakeConn(false)
	_, err = env.svc.Connect("r1", conn, nil)
	require.NoError(t, err)

	_, err = env.svc.SubmitBid(ctx, order.ID, "r1", decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = env.svc.AcceptBid(ctx, order.ID, "r1")
	require.EqualError(t, err, "store unavailable")

	info, err := env.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStateCancelled, info.State)

	rejected := conn.waitFor(t, events.BidRejected)
	require.Contains(t, rejected.Data.(events.BidRejectedData).Reason, "store unavailable")
	cancelled := conn.waitFor(t, events.OrderCancelled)
	require.Contains(t, cancelled.Data.(events.OrderCancelledData).Reason, "store unavailable")
	require.Empty(t, conn.received(events.OrderMatched))

	_, err = env.svc.SubmitBid(ctx, order.ID, "r2", decimal.NewFromInt(100))
	require.ErrorIs(t, err, domain.ErrOrderNotBiddable)
	_, err = env.svc.AcceptBid(ctx, order.ID, "r1")
	require.ErrorIs(t, err, domain.ErrOrderNotBiddable)
	err = env.svc.RequestCancel(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.Zero(t, env.committer.cancelRequests)
	require.Equal(t, 1, env.committer.numOfCommits())
}

func TestGetQuote(t *testing.T) {
	env := newTestEnv(t, testConfig())

	order := newTestOrder(t, anchor, 10*time.Minute)
	_, err := env.svc.SubmitOrder(ctx, order)
	require.NoError(t, err)

	env.clock.Advance(5 * time.Minute)
	quote, err := env.svc.GetQuote(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AuctionActive, quote.Status)
	require.Equal(t, "75", quote.CurrentPrice.String())
	require.Equal(t, "75", quote.DisplayPrice.String())
	require.Equal(t, 5*time.Minute, quote.TimeRemaining)
	require.True(t, quote.MarketPrice.IsZero())
}

func TestLivenessEviction(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.LivenessTimeout = 50 * time.Millisecond
	env := newTestEnv(t, cfg)

	order := newTestOrder(t, anchor, 10*time.Minute)
	_, err := env.svc.SubmitOrder(ctx, order)
	require.NoError(t, err)

	conn := newFakeConn(false)
	_, err = env.svc.Connect("r1", conn, nil)
	require.NoError(t, err)
	_, err = env.svc.SubmitBid(ctx, order.ID, "r1", decimal.NewFromInt(100))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return env.svc.ConnectedResolvers() == 0
	}, waitFor, tick)
	require.True(t, conn.isClosed())

	bids, err := env.svc.ListBids(ctx, order.ID)
	require.NoError(t, err)
	require.Empty(t, bids)

	_, err = env.svc.AcceptBid(ctx, order.ID, "r1")
	require.ErrorIs(t, err, domain.ErrBidNotFound)
}

func TestSlowResolverEviction(t *testing.T) {
	cfg := testConfig()
	cfg.OutboundQueueSize = 4
	env := newTestEnv(t, cfg)

	slow, fast := newFakeConn(true), newFakeConn(false)
	_, err := env.svc.Connect("slow", slow, nil)
	require.NoError(t, err)
	_, err = env.svc.Connect("fast", fast, nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		env.hub.Publish(events.New(events.PriceUpdate, "order", nil))
		time.Sleep(time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return slow.isClosed() && env.svc.ConnectedResolvers() == 1
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return len(fast.received(events.PriceUpdate)) == 20
	}, waitFor, tick)
}

func TestReplay(t *testing.T) {
	env := newTestEnv(t, testConfig())

	order := newTestOrder(t, anchor, 10*time.Minute)
	_, err := env.svc.SubmitOrder(ctx, order)
	require.NoError(t, err)

	replayed := newFakeConn(false)
	since := uint64(0)
	_, err = env.svc.Connect("r1", replayed, &since)
	require.NoError(t, err)
	first := replayed.waitFor(t, "")
	require.Equal(t, events.OrderCreated, first.Type)
	require.Equal(t, uint64(1), first.Seq)

	fresh := newFakeConn(false)
	_, err = env.svc.Connect("r2", fresh, nil)
	require.NoError(t, err)
	other := newTestOrder(t, anchor, 10*time.Minute)
	_, err = env.svc.SubmitOrder(ctx, other)
	require.NoError(t, err)

	created := fresh.waitFor(t, events.OrderCreated)
	require.Equal(t, other.ID, created.OrderID)
	require.Len(t, fresh.received(events.OrderCreated), 1)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MessageRate = 1
	env := newTestEnv(t, cfg)

	id, err := env.svc.Connect("r1", newFakeConn(false), nil)
	require.NoError(t, err)

	require.NoError(t, env.svc.Allow(id))
	require.NoError(t, env.svc.Allow(id))
	require.ErrorIs(t, env.svc.Allow(id), gateway.ErrRateLimited)
	require.ErrorIs(t, env.svc.Allow("unknown"), gateway.ErrConnectionNotFound)

	resolverID, err := env.svc.ResolverOf(id)
	require.NoError(t, err)
	require.Equal(t, "r1", resolverID)

	env.svc.Disconnect(id)
	require.Zero(t, env.svc.ConnectedResolvers())
}
