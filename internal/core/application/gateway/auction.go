package gateway

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/core/application/events"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/pkg/stats"
)

// startAuction spawns the worker owning the price ticks, the auto-accept
// timer and the expiration of the order.
func (s *Service) startAuction(entry *orderEntry) {
	var subID string
	if s.priceFeeder != nil {
		subID = s.priceFeeder.Subscribe(marketTicker(entry.order))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if subID != "" {
			defer s.priceFeeder.Unsubscribe(subID)
		}
		s.runAuction(entry)
	}()
}

func (s *Service) runAuction(entry *orderEntry) {
	ticker := time.NewTicker(s.cfg.PriceTickInterval)
	defer ticker.Stop()

	var autoAccept <-chan time.Time
	for {
		now := s.clock.Now()
		switch entry.order.AuctionStatus(now) {
		case domain.AuctionActive:
			if entry.compareAndSwap(domain.OrderStatePending, domain.OrderStateActive) {
				s.persistState(entry, domain.OrderStateActive)
				log.Debugf("auction of order %s started", entry.order.ID)
			}
		case domain.AuctionExpired:
			s.expire(entry)
			return
		}

		if entry.getState() == domain.OrderStateActive {
			s.publishPriceUpdate(entry, now)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-entry.quit:
			return
		case <-entry.firstBid:
			if s.cfg.BidWindow > 0 {
				autoAccept = time.After(s.cfg.BidWindow)
			}
		case <-autoAccept:
			autoAccept = nil
			s.autoAccept(entry)
		case <-ticker.C:
		}
	}
}

func (s *Service) publishPriceUpdate(entry *orderEntry, now time.Time) {
	quote := entry.order.Quote(now)
	eval := s.evaluate(entry.order, now)

	s.hub.Publish(events.New(events.PriceUpdate, entry.order.ID, events.PriceUpdateData{
		CurrentPrice:    quote.CurrentPrice.String(),
		Progress:        quote.Progress.StringFixed(4),
		TimeRemainingMs: quote.TimeRemaining.Milliseconds(),
		Profitability: events.Profitability{
			IsProfitable:         eval.IsProfitable,
			NetProfit:            eval.NetProfit.String(),
			OptimalExecutionTime: eval.OptimalExecutionTime.Unix(),
		},
	}))
}

func (s *Service) autoAccept(entry *orderEntry) {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	if _, err := s.AcceptBid(ctx, entry.order.ID, ""); err != nil {
		if errors.Is(err, domain.ErrBidRaceLost) {
			return
		}
		log.WithError(err).Warnf("auto-accept of order %s failed", entry.order.ID)
	}
}

func (s *Service) expire(entry *orderEntry) {
	for _, from := range []domain.OrderState{
		domain.OrderStatePending, domain.OrderStateActive,
	} {
		if entry.compareAndSwap(from, domain.OrderStateExpired) {
			s.closeAuction(s.ctx, entry, domain.OrderStateExpired, events.OrderExpired)
			return
		}
	}
}

// closeAuction finalizes an order that left the auction without a match.
func (s *Service) closeAuction(
	ctx context.Context, entry *orderEntry, state domain.OrderState, eventType string,
) {
	entry.stop()
	if err := s.repoManager.OrderRepository().UpdateOrderState(
		ctx, entry.order.ID, state,
	); err != nil {
		log.WithError(err).Warnf(
			"failed to persist state %s of order %s", state, entry.order.ID,
		)
	}
	s.book.remove(entry.order.ID)
	stats.OrdersByOutcome.WithLabelValues(state.String()).Inc()

	for _, bid := range entry.listBids() {
		s.hub.Publish(events.NewDirect(
			events.BidRejected, entry.order.ID, bid.ResolverID, events.BidRejectedData{
				ResolverID: bid.ResolverID,
				Reason:     biddableError(state).Error(),
			},
		))
	}
	s.hub.Publish(events.New(eventType, entry.order.ID, nil))
	log.WithField("order", entry.order.ID).Infof("order %s", state)
}

func (s *Service) persistState(entry *orderEntry, state domain.OrderState) {
	if err := s.repoManager.OrderRepository().UpdateOrderState(
		s.ctx, entry.order.ID, state,
	); err != nil {
		log.WithError(err).Warnf(
			"failed to persist state %s of order %s", state, entry.order.ID,
		)
	}
}

type orderInfo struct {
	ID           string `json:"id"`
	Maker        string `json:"maker"`
	Receiver     string `json:"receiver"`
	SrcChain     string `json:"srcChain"`
	DstChain     string `json:"dstChain"`
	SrcAsset     string `json:"srcAsset"`
	DstAsset     string `json:"dstAsset"`
	SrcAmount    string `json:"srcAmount"`
	MinDstAmount string `json:"minDstAmount"`
	StartPrice   string `json:"startPrice"`
	EndPrice     string `json:"endPrice"`
	AuctionStart int64  `json:"auctionStart"`
	AuctionEnd   int64  `json:"auctionEnd"`
	State        string `json:"state"`
}

func orderPayload(info domain.OrderInfo) orderInfo {
	o := info.Order
	return orderInfo{
		ID:           o.ID,
		Maker:        o.Maker,
		Receiver:     o.Receiver,
		SrcChain:     string(o.SrcChain),
		DstChain:     string(o.DstChain),
		SrcAsset:     o.SrcAsset,
		DstAsset:     o.DstAsset,
		SrcAmount:    o.SrcAmount.String(),
		MinDstAmount: o.MinDstAmount.String(),
		StartPrice:   o.StartPrice.String(),
		EndPrice:     o.EndPrice.String(),
		AuctionStart: o.AuctionStart,
		AuctionEnd:   o.AuctionEnd,
		State:        info.State.String(),
	}
}

func bidPayload(bid domain.ResolverBid) events.BidData {
	return events.BidData{
		ResolverID: bid.ResolverID,
		Price:      bid.Price.String(),
		Timestamp:  bid.Timestamp.UnixMilli(),
	}
}
