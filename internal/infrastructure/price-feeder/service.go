package pricefeederinfra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/core/ports"
	"go.uber.org/ratelimit"
)

const (
	defaultInterval  = 5 * time.Second
	defaultFetchRate = 5
)

type poller struct {
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

type service struct {
	source   ports.PriceSource
	interval time.Duration
	limiter  ratelimit.Limiter

	lock          sync.Mutex
	subscriptions map[string]string
	pollers       map[string]*poller

	feedLock sync.RWMutex
	feeds    map[string]ports.PriceFeed
}

// NewService returns a PriceFeeder polling the given source every interval
// for the subscribed tickers. Requests to the source are limited to
// fetchRate per second across all tickers.
func NewService(
	source ports.PriceSource, interval time.Duration, fetchRate int,
) (ports.PriceFeeder, error) {
	if source == nil {
		return nil, fmt.Errorf("missing price source")
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if fetchRate <= 0 {
		fetchRate = defaultFetchRate
	}

	return &service{
		source:        source,
		interval:      interval,
		limiter:       ratelimit.New(fetchRate),
		subscriptions: make(map[string]string),
		pollers:       make(map[string]*poller),
		feeds:         make(map[string]ports.PriceFeed),
	}, nil
}

func (s *service) Subscribe(ticker string) string {
	s.lock.Lock()
	defer s.lock.Unlock()

	id := uuid.New().String()
	s.subscriptions[id] = ticker

	if p, ok := s.pollers[ticker]; ok {
		p.refs++
		return id
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{refs: 1, cancel: cancel, done: make(chan struct{})}
	s.pollers[ticker] = p
	go s.poll(ctx, ticker, p.done)

	log.Debugf("started polling %s price from %s", ticker, s.source.Name())
	return id
}

func (s *service) Unsubscribe(id string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	ticker, ok := s.subscriptions[id]
	if !ok {
		return
	}
	delete(s.subscriptions, id)

	p := s.pollers[ticker]
	p.refs--
	if p.refs > 0 {
		return
	}
	p.cancel()
	delete(s.pollers, ticker)
	s.removeFeed(ticker)

	log.Debugf("stopped polling %s price", ticker)
}

func (s *service) GetPrice(ticker string) (*ports.PriceFeed, bool) {
	s.feedLock.RLock()
	defer s.feedLock.RUnlock()

	feed, ok := s.feeds[ticker]
	if !ok {
		return nil, false
	}
	return &feed, true
}

func (s *service) Close() {
	s.lock.Lock()
	pollers := s.pollers
	s.pollers = make(map[string]*poller)
	s.subscriptions = make(map[string]string)
	s.lock.Unlock()

	for _, p := range pollers {
		p.cancel()
		<-p.done
	}
}

func (s *service) poll(ctx context.Context, ticker string, done chan struct{}) {
	defer close(done)

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	for {
		s.fetch(ctx, ticker)

		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func (s *service) fetch(ctx context.Context, ticker string) {
	s.limiter.Take()
	if ctx.Err() != nil {
		return
	}

	price, err := s.source.GetPrice(ctx, ticker)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warnf(
				"failed to fetch %s price from %s", ticker, s.source.Name(),
			)
		}
		return
	}

	s.feedLock.Lock()
	defer s.feedLock.Unlock()
	// A fetch completing after the last unsubscription must not leave a stale
	// price behind.
	if ctx.Err() != nil {
		return
	}
	s.feeds[ticker] = ports.PriceFeed{
		Ticker:    ticker,
		Price:     price,
		UpdatedAt: time.Now(),
	}
}

func (s *service) removeFeed(ticker string) {
	s.feedLock.Lock()
	defer s.feedLock.Unlock()
	delete(s.feeds, ticker)
}
