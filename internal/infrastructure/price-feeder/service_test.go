package pricefeederinfra_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	pricefeederinfra "github.com/xswap-network/xswapd/internal/infrastructure/price-feeder"
)

type mockSource struct {
	lock   sync.Mutex
	prices map[string]decimal.Decimal
	calls  map[string]int
}

func newMockSource() *mockSource {
	return &mockSource{
		prices: map[string]decimal.Decimal{
			"ETH-USDC": decimal.NewFromInt(2000),
			"BTC-USDC": decimal.NewFromInt(30000),
		},
		calls: make(map[string]int),
	}
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) GetPrice(_ context.Context, ticker string) (decimal.Decimal, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.calls[ticker]++
	price, ok := m.prices[ticker]
	if !ok {
		return decimal.Zero, errors.New("unknown ticker")
	}
	return price, nil
}

func (m *mockSource) callsFor(ticker string) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.calls[ticker]
}

func (m *mockSource) setPrice(ticker string, price decimal.Decimal) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.prices[ticker] = price
}

func TestPriceFeeder(t *testing.T) {
	source := newMockSource()
	feeder, err := pricefeederinfra.NewService(source, 10*time.Millisecond, 1000)
	require.NoError(t, err)
	defer feeder.Close()

	_, ok := feeder.GetPrice("ETH-USDC")
	require.False(t, ok)
	require.Zero(t, source.callsFor("ETH-USDC"))

	first := feeder.Subscribe("ETH-USDC")
	second := feeder.Subscribe("ETH-USDC")
	require.NotEqual(t, first, second)

	require.Eventually(t, func() bool {
		feed, ok := feeder.GetPrice("ETH-USDC")
		return ok && feed.Price.Equal(decimal.NewFromInt(2000))
	}, time.Second, 5*time.Millisecond)

	source.setPrice("ETH-USDC", decimal.NewFromInt(2100))
	require.Eventually(t, func() bool {
		feed, ok := feeder.GetPrice("ETH-USDC")
		return ok && feed.Price.Equal(decimal.NewFromInt(2100))
	}, time.Second, 5*time.Millisecond)

	// Polling goes on while at least one subscriber is left.
	feeder.Unsubscribe(first)
	calls := source.callsFor("ETH-USDC")
	require.Eventually(t, func() bool {
		return source.callsFor("ETH-USDC") > calls
	}, time.Second, 5*time.Millisecond)

	feeder.Unsubscribe(second)
	_, ok = feeder.GetPrice("ETH-USDC")
	require.False(t, ok)

	time.Sleep(30 * time.Millisecond)
	calls = source.callsFor("ETH-USDC")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, calls, source.callsFor("ETH-USDC"))

	// Unknown subscriptions are ignored.
	feeder.Unsubscribe("unknown")
}

func TestPriceFeederIndependentInstances(t *testing.T) {
	source := newMockSource()
	feederA, err := pricefeederinfra.NewService(source, 10*time.Millisecond, 1000)
	require.NoError(t, err)
	feederB, err := pricefeederinfra.NewService(source, 10*time.Millisecond, 1000)
	require.NoError(t, err)
	defer feederB.Close()

	feederA.Subscribe("BTC-USDC")
	require.Eventually(t, func() bool {
		_, ok := feederA.GetPrice("BTC-USDC")
		return ok
	}, time.Second, 5*time.Millisecond)

	_, ok := feederB.GetPrice("BTC-USDC")
	require.False(t, ok)

	feederA.Close()
	feederB.Subscribe("UNKNOWN")
	require.Eventually(t, func() bool {
		return source.callsFor("UNKNOWN") > 0
	}, time.Second, 5*time.Millisecond)
	_, ok = feederB.GetPrice("UNKNOWN")
	require.False(t, ok)
}

func TestNewPriceFeederInvalid(t *testing.T) {
	_, err := pricefeederinfra.NewService(nil, 0, 0)
	require.Error(t, err)
}
