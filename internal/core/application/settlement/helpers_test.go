package settlement_test

import (
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xswap-network/xswapd/internal/core/application/events"
	"github.com/xswap-network/xswapd/internal/core/application/settlement"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
	"github.com/xswap-network/xswapd/internal/infrastructure/chain/simulated"
	"github.com/xswap-network/xswapd/internal/infrastructure/storage/db/inmemory"
	"github.com/xswap-network/xswapd/pkg/hashlock"
)

const (
	resolverID = "resolver-1"
	waitFor    = 3 * time.Second
	tick       = 5 * time.Millisecond
)

var (
	anchor    = time.Unix(1700000000, 0)
	oracle, _ = hashlock.NewOracle(hashlock.Sha256)

	testPolicy = domain.TimelockPolicy{
		SrcWithdrawal:         10 * time.Second,
		SrcPublicWithdrawal:   300 * time.Second,
		SrcCancellation:       600 * time.Second,
		SrcPublicCancellation: 900 * time.Second,
		DstWithdrawal:         10 * time.Second,
		DstPublicWithdrawal:   200 * time.Second,
		DstCancellation:       400 * time.Second,
	}
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

type eventRecorder struct {
	lock   sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Deliver(e events.Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) find(eventType string) (events.Event, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, e := range r.events {
		if e.Type == eventType {
			return e, true
		}
	}
	return events.Event{}, false
}

type testEnv struct {
	clock       *fakeClock
	repoManager ports.RepoManager
	src         *simulated.Ledger
	dst         *simulated.Ledger
	hub         *events.Hub
	recorder    *eventRecorder
}

func newTestEnv(srcConfirmationDelay time.Duration) *testEnv {
	clock := &fakeClock{now: anchor}
	hub := events.NewHub(256)
	recorder := &eventRecorder{}
	hub.AddSink(recorder)

	return &testEnv{
		clock:       clock,
		repoManager: inmemory.NewRepoManager(),
		src:         simulated.NewLedger("src", clock, oracle, srcConfirmationDelay),
		dst:         simulated.NewLedger("dst", clock, oracle, 0),
		hub:         hub,
		recorder:    recorder,
	}
}

func (e *testEnv) newCoordinator(t *testing.T) *settlement.Coordinator {
	t.Helper()

	cfg := settlement.Config{
		TimelockPolicy:       testPolicy,
		PollInterval:         tick,
		ConfirmationTimeout:  5 * time.Minute,
		SecretReleaseMargin:  time.Minute,
		RetryMaxAttempts:     3,
		RetryInitialInterval: time.Millisecond,
	}
	c, err := settlement.NewCoordinator(
		cfg, e.repoManager, e.src, e.dst, oracle, e.hub, e.clock,
	)
	require.NoError(t, err)
	return c
}

func (e *testEnv) waitForStatus(
	t *testing.T, c *settlement.Coordinator, swapID string,
	status domain.SwapStatus,
) *domain.Swap {
	t.Helper()

	var swap *domain.Swap
	require.Eventually(t, func() bool {
		s, err := c.GetSwap(ctx, swapID)
		if err != nil {
			return false
		}
		swap = s
		return s.Status == status
	}, waitFor, tick, "swap never reached %s", status)
	return swap
}

func (e *testEnv) waitForEvent(t *testing.T, eventType string) events.Event {
	t.Helper()

	var event events.Event
	require.Eventually(t, func() bool {
		var ok bool
		event, ok = e.recorder.find(eventType)
		return ok
	}, waitFor, tick, "event %s never published", eventType)
	return event
}

func newTestOrder(t *testing.T) (domain.Order, domain.ResolverBid) {
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
		AuctionStart: anchor.Add(-time.Minute).Unix(),
		AuctionEnd:   anchor.Add(9 * time.Minute).Unix(),
		Nonce:        1,
	}
	order.Sign(key)

	bid := domain.ResolverBid{
		OrderID:    order.ID,
		ResolverID: resolverID,
		Price:      decimal.NewFromInt(95),
		Timestamp:  anchor,
	}
	return order, bid
}

func escrowOf(
	t *testing.T, ledger *simulated.Ledger, address string,
) domain.EscrowRecord {
	t.Helper()

	for _, e := range ledger.Escrows() {
		if e.Address == address {
			return e
		}
	}
	t.Fatalf("escrow %s not found", address)
	return domain.EscrowRecord{}
}
