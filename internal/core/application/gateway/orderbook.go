package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/xswap-network/xswapd/internal/core/domain"
)

// orderEntry is the in-memory auction of one order. Its state is changed
// only through compare-and-swap, bids are guarded by the entry lock.
type orderEntry struct {
	state int32

	order     domain.Order
	createdAt int64

	lock       sync.Mutex
	bids       map[string]domain.ResolverBid
	firstBidAt time.Time

	firstBid chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
}

func newOrderEntry(info domain.OrderInfo) *orderEntry {
	return &orderEntry{
		state:     int32(info.State),
		order:     info.Order,
		createdAt: info.CreatedAt,
		bids:      make(map[string]domain.ResolverBid),
		firstBid:  make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
}

func (e *orderEntry) getState() domain.OrderState {
	return domain.OrderState(atomic.LoadInt32(&e.state))
}

// compareAndSwap moves the order from one state to the other if the
// transition is legal and the order is still in the from state.
func (e *orderEntry) compareAndSwap(from, to domain.OrderState) bool {
	if !from.CanTransitionTo(to) {
		return false
	}
	return atomic.CompareAndSwapInt32(&e.state, int32(from), int32(to))
}

// addBid records the bid if the order is biddable. A resolver has at most
// one bid per order: a new bid replaces the previous one only if better.
// The returned bool tells whether this is the first bid of the order.
func (e *orderEntry) addBid(bid domain.ResolverBid) (domain.ResolverBid, bool, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if err := biddableError(e.getState()); err != nil {
		return bid, false, err
	}

	if prev, ok := e.bids[bid.ResolverID]; ok && !bid.Better(prev) {
		return prev, false, nil
	}
	e.bids[bid.ResolverID] = bid

	first := e.firstBidAt.IsZero()
	if first {
		e.firstBidAt = bid.Timestamp
		select {
		case e.firstBid <- struct{}{}:
		default:
		}
	}
	return bid, first, nil
}

// match selects the bid of the given resolver, or the best one if
// resolverID is empty, and atomically moves the order to matched. The other
// bids are returned as losers.
func (e *orderEntry) match(
	resolverID string, now time.Time,
) (domain.ResolverBid, []domain.ResolverBid, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	state := e.getState()
	if state == domain.OrderStateMatched {
		return domain.ResolverBid{}, nil, domain.ErrBidRaceLost
	}
	if err := biddableError(state); err != nil {
		return domain.ResolverBid{}, nil, err
	}
	if e.order.AuctionStatus(now) == domain.AuctionExpired {
		return domain.ResolverBid{}, nil, domain.ErrOrderExpired
	}

	var winner domain.ResolverBid
	if resolverID != "" {
		bid, ok := e.bids[resolverID]
		if !ok {
			return domain.ResolverBid{}, nil, domain.ErrBidNotFound
		}
		winner = bid
	} else {
		bids := e.sortedBids()
		if len(bids) <= 0 {
			return domain.ResolverBid{}, nil, domain.ErrBidNotFound
		}
		winner = bids[0]
	}

	if !e.compareAndSwap(domain.OrderStateActive, domain.OrderStateMatched) {
		return domain.ResolverBid{}, nil, domain.ErrBidRaceLost
	}

	losers := make([]domain.ResolverBid, 0, len(e.bids))
	for id, bid := range e.bids {
		if id != winner.ResolverID {
			losers = append(losers, bid)
		}
	}
	return winner, losers, nil
}

func (e *orderEntry) removeBidsOf(resolverID string) bool {
	e.lock.Lock()
	defer e.lock.Unlock()

	if _, ok := e.bids[resolverID]; !ok {
		return false
	}
	delete(e.bids, resolverID)
	return true
}

func (e *orderEntry) listBids() []domain.ResolverBid {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.sortedBids()
}

func (e *orderEntry) sortedBids() []domain.ResolverBid {
	bids := make([]domain.ResolverBid, 0, len(e.bids))
	for _, bid := range e.bids {
		bids = append(bids, bid)
	}
	return domain.RankBids(bids)
}

func (e *orderEntry) stop() {
	e.quitOnce.Do(func() { close(e.quit) })
}

func biddableError(state domain.OrderState) error {
	switch state {
	case domain.OrderStateActive:
		return nil
	case domain.OrderStateMatched:
		return domain.ErrBidRaceLost
	case domain.OrderStateExpired:
		return domain.ErrOrderExpired
	default:
		return domain.ErrOrderNotBiddable
	}
}

type orderBook struct {
	lock    sync.RWMutex
	entries map[string]*orderEntry
}

func newOrderBook() *orderBook {
	return &orderBook{entries: make(map[string]*orderEntry)}
}

func (b *orderBook) add(e *orderEntry) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	if _, ok := b.entries[e.order.ID]; ok {
		return false
	}
	b.entries[e.order.ID] = e
	return true
}

func (b *orderBook) get(orderID string) (*orderEntry, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	e, ok := b.entries[orderID]
	return e, ok
}

func (b *orderBook) remove(orderID string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.entries, orderID)
}

func (b *orderBook) all() []*orderEntry {
	b.lock.RLock()
	defer b.lock.RUnlock()

	entries := make([]*orderEntry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	return entries
}
