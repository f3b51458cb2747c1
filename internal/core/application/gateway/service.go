// Package gateway runs the Dutch auctions of the submitted orders and
// coordinates the pool of competing resolvers: it streams order and price
// events to them, collects their bids and makes sure that at most one bid is
// accepted per order.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/core/application/events"
	"github.com/xswap-network/xswapd/internal/core/application/pricing"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
	"github.com/xswap-network/xswapd/pkg/stats"
	"golang.org/x/time/rate"
)

var (
	ErrServiceUnavailable = fmt.Errorf("service is unavailable, retry later")
	ErrConnectionNotFound = fmt.Errorf("resolver connection not found")
	ErrRateLimited        = fmt.Errorf("too many messages, slow down")
)

// Committer locks an order to the winning bid and takes over the swap.
type Committer interface {
	Commit(
		ctx context.Context, order domain.Order, bid domain.ResolverBid,
	) (*domain.SwapCommitment, error)
	RequestCancel(ctx context.Context, swapID string) error
}

type Config struct {
	PriceTickInterval time.Duration
	// BidWindow is the time after the first bid at which the best bid is
	// accepted automatically. Zero disables auto-acceptance.
	BidWindow         time.Duration
	HeartbeatInterval time.Duration
	LivenessTimeout   time.Duration
	OutboundQueueSize int
	// MessageRate bounds the inbound messages per second of a connection.
	MessageRate      float64
	ReferenceGasCost decimal.Decimal
	DisplayPivot     decimal.Decimal
}

func (c Config) validate() error {
	if c.PriceTickInterval <= 0 {
		return fmt.Errorf("price tick interval must be positive")
	}
	if c.BidWindow < 0 {
		return fmt.Errorf("bid window must not be negative")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if c.LivenessTimeout < c.HeartbeatInterval {
		return fmt.Errorf("liveness timeout must not be shorter than heartbeat interval")
	}
	if c.OutboundQueueSize <= 0 {
		return fmt.Errorf("outbound queue size must be positive")
	}
	if c.ReferenceGasCost.IsNegative() {
		return fmt.Errorf("reference gas cost must not be negative")
	}
	return nil
}

type Service struct {
	cfg         Config
	repoManager ports.RepoManager
	committer   Committer
	analyzer    *pricing.Analyzer
	hub         *events.Hub
	priceFeeder ports.PriceFeeder
	clock       ports.Clock

	book     *orderBook
	registry *registry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService returns a gateway. The price feeder is optional and only
// contributes market prices to quotes and profitability hints.
func NewService(
	cfg Config,
	repoManager ports.RepoManager,
	committer Committer,
	analyzer *pricing.Analyzer,
	hub *events.Hub,
	priceFeeder ports.PriceFeeder,
	clock ports.Clock,
) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if committer == nil {
		return nil, fmt.Errorf("missing committer")
	}
	if analyzer == nil {
		return nil, fmt.Errorf("missing profitability analyzer")
	}
	if hub == nil {
		return nil, fmt.Errorf("missing event hub")
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if cfg.MessageRate <= 0 {
		cfg.MessageRate = 20
	}
	if !cfg.DisplayPivot.IsPositive() {
		cfg.DisplayPivot = domain.DefaultDisplayPivot
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:         cfg,
		repoManager: repoManager,
		committer:   committer,
		analyzer:    analyzer,
		hub:         hub,
		priceFeeder: priceFeeder,
		clock:       clock,
		book:        newOrderBook(),
		registry:    newRegistry(),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start resumes the auctions of the orders still pending or active and
// starts the resolver heartbeat.
func (s *Service) Start(ctx context.Context) error {
	orders, err := s.repoManager.OrderRepository().GetOrdersByState(
		ctx, domain.OrderStatePending, domain.OrderStateActive,
	)
	if err != nil {
		return err
	}
	for _, info := range orders {
		entry := newOrderEntry(info)
		if s.book.add(entry) {
			log.Debugf("resuming auction of order %s", info.Order.ID)
			s.startAuction(entry)
		}
	}

	s.wg.Add(1)
	go s.heartbeat()
	return nil
}

// Stop stops every auction worker and closes all resolver connections.
func (s *Service) Stop() {
	s.cancel()
	for _, h := range s.registry.snapshot() {
		s.evict(h.id, "shutdown")
	}
	s.wg.Wait()
}

// SubmitOrder validates and enters the order into the auction.
func (s *Service) SubmitOrder(
	ctx context.Context, order domain.Order,
) (*domain.OrderInfo, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	order.ID = order.HashString()

	now := s.clock.Now()
	state := domain.OrderStateActive
	switch order.AuctionStatus(now) {
	case domain.AuctionExpired:
		return nil, domain.ErrOrderExpired
	case domain.AuctionPending:
		state = domain.OrderStatePending
	}

	info := domain.OrderInfo{
		Order:     order,
		State:     state,
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	}
	if err := s.repoManager.OrderRepository().AddOrder(ctx, info); err != nil {
		if errors.Is(err, domain.ErrOrderAlreadyExists) {
			return nil, err
		}
		log.WithError(err).Warn("failed to store order")
		return nil, ErrServiceUnavailable
	}

	entry := newOrderEntry(info)
	if !s.book.add(entry) {
		return nil, domain.ErrOrderAlreadyExists
	}

	stats.OrdersSubmitted.Inc()
	s.hub.Publish(events.New(
		events.OrderCreated, order.ID, events.OrderCreatedData{Order: orderPayload(info)},
	))
	s.startAuction(entry)

	log.WithField("order", order.ID).Infof(
		"order %s %s -> %s %s entered auction (%s)",
		order.SrcAmount, order.SrcAsset, order.MinDstAmount, order.DstAsset, state,
	)
	return &info, nil
}

// SubmitBid records the offer of a resolver to fill the order at the given
// price.
func (s *Service) SubmitBid(
	ctx context.Context, orderID, resolverID string, price decimal.Decimal,
) (*domain.ResolverBid, error) {
	entry, err := s.getEntry(ctx, orderID)
	if err != nil {
		s.rejectBid(err)
		return nil, err
	}

	now := s.clock.Now()
	if entry.order.AuctionStatus(now) == domain.AuctionExpired {
		s.rejectBid(domain.ErrOrderExpired)
		return nil, domain.ErrOrderExpired
	}

	bid := domain.ResolverBid{
		OrderID:    orderID,
		ResolverID: resolverID,
		Price:      price,
		Timestamp:  now,
	}
	if err := bid.Validate(entry.order); err != nil {
		s.rejectBid(err)
		return nil, err
	}

	stored, _, err := entry.addBid(bid)
	if err != nil {
		s.rejectBid(err)
		return nil, err
	}
	if stored.Timestamp.Equal(bid.Timestamp) && stored.Price.Equal(bid.Price) {
		stats.BidsReceived.Inc()
		s.hub.Publish(events.New(events.BidReceived, orderID, bidPayload(bid)))
	}
	return &stored, nil
}

// AcceptBid accepts the bid of the given resolver, or the best bid if
// resolverID is empty. Only one acceptance per order can ever succeed, the
// others fail with domain.ErrBidRaceLost.
func (s *Service) AcceptBid(
	ctx context.Context, orderID, resolverID string,
) (*domain.SwapCommitment, error) {
	entry, err := s.getEntry(ctx, orderID)
	if err != nil {
		return nil, err
	}

	winner, losers, err := entry.match(resolverID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	entry.stop()

	if err := s.repoManager.OrderRepository().UpdateOrderState(
		ctx, orderID, domain.OrderStateMatched,
	); err != nil {
		log.WithError(err).Warnf("failed to persist match of order %s", orderID)
	}
	s.book.remove(orderID)
	stats.OrdersByOutcome.WithLabelValues("matched").Inc()

	for _, bid := range losers {
		s.hub.Publish(events.NewDirect(
			events.BidRejected, orderID, bid.ResolverID, events.BidRejectedData{
				ResolverID: bid.ResolverID,
				Reason:     domain.ErrBidRaceLost.Error(),
			},
		))
	}

	commitment, err := s.committer.Commit(ctx, entry.order, winner)
	if err != nil {
		log.WithError(err).Errorf(
			"failed to commit swap for order %s matched with %s",
			orderID, winner.ResolverID,
		)
		s.abortMatch(entry, winner, err)
		return nil, err
	}

	s.hub.Publish(events.New(events.OrderMatched, orderID, events.OrderMatchedData{
		ResolverID: winner.ResolverID,
		FillPrice:  commitment.FillPrice.String(),
		SrcAmount:  commitment.SrcAmount.String(),
		DstAmount:  commitment.DstAmount.String(),
		SecretHash: commitment.SecretHashString(),
	}))

	log.WithField("order", orderID).Infof(
		"bid of %s at %s accepted", winner.ResolverID, winner.Price,
	)
	public := commitment.Public()
	return &public, nil
}

// abortMatch cancels an order whose swap couldn't be committed. No swap
// exists for it, so both the maker and the winner are notified that the
// order is gone.
func (s *Service) abortMatch(
	entry *orderEntry, winner domain.ResolverBid, cause error,
) {
	orderID := entry.order.ID
	entry.compareAndSwap(domain.OrderStateMatched, domain.OrderStateCancelled)
	if err := s.repoManager.OrderRepository().UpdateOrderState(
		s.ctx, orderID, domain.OrderStateCancelled,
	); err != nil {
		log.WithError(err).Warnf("failed to persist cancellation of order %s", orderID)
	}
	stats.OrdersByOutcome.WithLabelValues("commit_failed").Inc()

	reason := fmt.Sprintf("swap commit failed: %s", cause)
	s.hub.Publish(events.NewDirect(
		events.BidRejected, orderID, winner.ResolverID, events.BidRejectedData{
			ResolverID: winner.ResolverID,
			Reason:     reason,
		},
	))
	s.hub.Publish(events.New(
		events.OrderCancelled, orderID, events.OrderCancelledData{Reason: reason},
	))
	log.WithField("order", orderID).Warnf("order cancelled: %s", reason)
}

// RequestCancel withdraws the order from the auction or, if already matched,
// asks the settlement to unwind the swap.
func (s *Service) RequestCancel(ctx context.Context, orderID string) error {
	if entry, ok := s.book.get(orderID); ok {
		for _, from := range []domain.OrderState{
			domain.OrderStatePending, domain.OrderStateActive,
		} {
			if entry.compareAndSwap(from, domain.OrderStateCancelled) {
				s.closeAuction(ctx, entry, domain.OrderStateCancelled, events.OrderCancelled)
				return nil
			}
		}
	}

	info, err := s.repoManager.OrderRepository().GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if info.State == domain.OrderStateMatched {
		return s.committer.RequestCancel(ctx, orderID)
	}
	return fmt.Errorf("%w: order is %s", domain.ErrInvalidTransition, info.State)
}

// GetOrder returns the order with its current state.
func (s *Service) GetOrder(
	ctx context.Context, orderID string,
) (*domain.OrderInfo, error) {
	if entry, ok := s.book.get(orderID); ok {
		return &domain.OrderInfo{
			Order:     entry.order,
			State:     entry.getState(),
			CreatedAt: entry.createdAt,
		}, nil
	}
	return s.repoManager.OrderRepository().GetOrder(ctx, orderID)
}

// ListOrders returns all known orders.
func (s *Service) ListOrders(ctx context.Context) ([]domain.OrderInfo, error) {
	return s.repoManager.OrderRepository().GetAllOrders(ctx)
}

// ListBids returns the bids of an order in auction, best first.
func (s *Service) ListBids(
	_ context.Context, orderID string,
) ([]domain.ResolverBid, error) {
	entry, ok := s.book.get(orderID)
	if !ok {
		return nil, domain.ErrOrderNotBiddable
	}
	return entry.listBids(), nil
}

// Quote is the auction snapshot of an order along with the display price
// and the profitability hint at the reference gas cost.
type Quote struct {
	domain.AuctionQuote
	Status        domain.AuctionStatus
	DisplayPrice  decimal.Decimal
	MarketPrice   decimal.Decimal
	Profitability pricing.Evaluation
}

// GetQuote returns the quote of the order at the current time.
func (s *Service) GetQuote(ctx context.Context, orderID string) (*Quote, error) {
	info, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order := info.Order
	now := s.clock.Now()

	quote := &Quote{
		AuctionQuote: order.Quote(now),
		Status:       order.AuctionStatus(now),
		DisplayPrice: order.CurrentPrice(now),
	}
	marketPrice, ok := s.marketPrice(order)
	if ok {
		quote.MarketPrice = marketPrice
		quote.DisplayPrice = order.DisplayPrice(now, marketPrice, s.cfg.DisplayPivot)
	}
	quote.Profitability = s.evaluate(order, now)
	return quote, nil
}

func (s *Service) getEntry(ctx context.Context, orderID string) (*orderEntry, error) {
	if entry, ok := s.book.get(orderID); ok {
		return entry, nil
	}
	info, err := s.repoManager.OrderRepository().GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := biddableError(info.State); err != nil {
		return nil, err
	}
	return nil, domain.ErrOrderNotBiddable
}

func (s *Service) evaluate(order domain.Order, now time.Time) pricing.Evaluation {
	if marketPrice, ok := s.marketPrice(order); ok {
		return s.analyzer.EvaluateWithReference(
			order, now, s.cfg.ReferenceGasCost, marketPrice,
		)
	}
	return s.analyzer.Evaluate(order, now, s.cfg.ReferenceGasCost)
}

func (s *Service) marketPrice(order domain.Order) (decimal.Decimal, bool) {
	if s.priceFeeder == nil {
		return decimal.Zero, false
	}
	feed, ok := s.priceFeeder.GetPrice(marketTicker(order))
	if !ok || !feed.Price.IsPositive() {
		return decimal.Zero, false
	}
	return feed.Price, true
}

func (s *Service) rejectBid(err error) {
	reason := "invalid"
	switch {
	case errors.Is(err, domain.ErrBidRaceLost):
		reason = "race_lost"
	case errors.Is(err, domain.ErrBidBelowPrice):
		reason = "below_price"
	case errors.Is(err, domain.ErrOrderExpired):
		reason = "expired"
	case errors.Is(err, domain.ErrOrderNotBiddable):
		reason = "not_biddable"
	}
	stats.BidsRejected.WithLabelValues(reason).Inc()
}

func newLimiter(perSecond float64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
}

func marketTicker(order domain.Order) string {
	return fmt.Sprintf("%s-%s", order.SrcAsset, order.DstAsset)
}
