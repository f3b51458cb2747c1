package gateway_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xswap-network/xswapd/internal/core/application/events"
	"github.com/xswap-network/xswapd/internal/core/application/gateway"
	"github.com/xswap-network/xswapd/internal/core/application/pricing"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
	"github.com/xswap-network/xswapd/internal/infrastructure/storage/db/inmemory"
	"github.com/xswap-network/xswapd/pkg/hashlock"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

var (
	ctx       = context.Background()
	anchor    = time.Unix(1700000000, 0)
	oracle, _ = hashlock.NewOracle(hashlock.Sha256)
)

type fakeClock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

type fakeCommitter struct {
	commits        int32
	cancelRequests int32
	// err, if set before accepting any bid, makes every commit fail.
	err error
}

func (c *fakeCommitter) Commit(
	_ context.Context, order domain.Order, bid domain.ResolverBid,
) (*domain.SwapCommitment, error) {
	atomic.AddInt32(&c.commits, 1)
	if c.err != nil {
		return nil, c.err
	}
	return domain.NewSwapCommitment(order, bid, oracle, time.Now())
}

func (c *fakeCommitter) RequestCancel(_ context.Context, _ string) error {
	atomic.AddInt32(&c.cancelRequests, 1)
	return nil
}

func (c *fakeCommitter) numOfCommits() int {
	return int(atomic.LoadInt32(&c.commits))
}

// fakeConn records the events sent to a resolver. If slow, Send blocks until
// the connection is closed.
type fakeConn struct {
	slow bool

	lock      sync.Mutex
	sent      []events.Event
	pings     int
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(slow bool) *fakeConn {
	return &fakeConn{slow: slow, closed: make(chan struct{})}
}

func (c *fakeConn) Send(e events.Event) error {
	if c.slow {
		<-c.closed
		return errors.New("connection closed")
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.sent = append(c.sent, e)
	return nil
}

func (c *fakeConn) Ping() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.pings++
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) received(eventType string) []events.Event {
	c.lock.Lock()
	defer c.lock.Unlock()

	found := make([]events.Event, 0)
	for _, e := range c.sent {
		if eventType == "" || e.Type == eventType {
			found = append(found, e)
		}
	}
	return found
}

func (c *fakeConn) waitFor(t *testing.T, eventType string) events.Event {
	t.Helper()

	var found []events.Event
	require.Eventually(t, func() bool {
		found = c.received(eventType)
		return len(found) > 0
	}, waitFor, tick, "event %s never received", eventType)
	return found[0]
}

type testEnv struct {
	svc         *gateway.Service
	clock       *fakeClock
	committer   *fakeCommitter
	hub         *events.Hub
	repoManager ports.RepoManager
}

func testConfig() gateway.Config {
	return gateway.Config{
		PriceTickInterval: 10 * time.Millisecond,
		HeartbeatInterval: 20 * time.Millisecond,
		LivenessTimeout:   time.Hour,
		OutboundQueueSize: 64,
		MessageRate:       100,
		ReferenceGasCost:  decimal.NewFromInt(1),
	}
}

func newTestEnv(t *testing.T, cfg gateway.Config) *testEnv {
	t.Helper()

	analyzer, err := pricing.NewAnalyzer(
		pricing.DefaultMinProfitMargin, pricing.DefaultGasBuffer,
	)
	require.NoError(t, err)

	env := &testEnv{
		clock:       &fakeClock{now: anchor},
		committer:   &fakeCommitter{},
		hub:         events.NewHub(512),
		repoManager: inmemory.NewRepoManager(),
	}
	svc, err := gateway.NewService(
		cfg, env.repoManager, env.committer, analyzer, env.hub, nil, env.clock,
	)
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(svc.Stop)

	env.svc = svc
	return env
}

// newTestOrder returns an order auctioned from 100 down to 50 over the given
// duration, starting at the given time.
func newTestOrder(t *testing.T, start time.Time, duration time.Duration) domain.Order {
	t.Helper()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	order := domain.Order{
		Maker:        "0x52908400098527886E0F7030069857D2E4169EE7",
		Receiver:     "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
		SrcChain:     domain.ChainAccount,
		DstChain:     domain.ChainUTXO,
		SrcAsset:     "ETH",
		DstAsset:     "BTC",
		SrcAmount:    decimal.NewFromInt(2),
		MinDstAmount: decimal.NewFromInt(100),
		StartPrice:   decimal.NewFromInt(100),
		EndPrice:     decimal.NewFromInt(50),
		AuctionStart: start.Unix(),
		AuctionEnd:   start.Add(duration).Unix(),
		Nonce:        uint64(time.Now().UnixNano()),
	}
	order.Sign(key)
	return order
}

func (e *testEnv) waitForState(
	t *testing.T, orderID string, state domain.OrderState,
) {
	t.Helper()

	require.Eventually(t, func() bool {
		info, err := e.svc.GetOrder(ctx, orderID)
		return err == nil && info.State == state
	}, waitFor, tick, "order never reached %s", state)
}
