package settlement

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/core/application/events"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
	"github.com/xswap-network/xswapd/pkg/stats"
)

type cancelRequest struct {
	reason string
	reply  chan error
}

// worker holds the in-memory copy of one swap. Only the goroutine running
// the worker reads or writes it.
type worker struct {
	swap       *domain.Swap
	since      time.Time
	cancelReqs chan cancelRequest
	done       chan struct{}
}

func newWorker(swap *domain.Swap, now time.Time) *worker {
	return &worker{
		swap:       swap,
		since:      now,
		cancelReqs: make(chan cancelRequest),
		done:       make(chan struct{}),
	}
}

func (c *Coordinator) run(w *worker) {
	defer close(w.done)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		c.step(w)
		if w.swap.IsTerminal() {
			return
		}

		select {
		case <-c.ctx.Done():
			return
		case req := <-w.cancelReqs:
			err := c.startCancelling(w, req.reason)
			req.reply <- err
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) step(w *worker) {
	ctx := c.ctx
	status := w.swap.Status

	var err error
	switch status {
	case domain.SwapStatusMatched:
		err = c.deployEscrow(ctx, w, domain.SideSource)
	case domain.SwapStatusSourceEscrowPending:
		err = c.confirmEscrow(ctx, w, domain.SideSource)
	case domain.SwapStatusSourceEscrowFunded:
		err = c.deployEscrow(ctx, w, domain.SideDestination)
	case domain.SwapStatusDestEscrowPending:
		err = c.confirmEscrow(ctx, w, domain.SideDestination)
	case domain.SwapStatusDestEscrowFunded:
		err = c.releaseSecret(ctx, w)
	case domain.SwapStatusRevealed:
		err = c.settle(ctx, w)
	case domain.SwapStatusCancelling:
		err = c.unwind(ctx, w)
	}
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Warnf("swap %s: failed to progress from %s", w.swap.ID, status)
	}
}

func (c *Coordinator) deployEscrow(
	ctx context.Context, w *worker, side domain.EscrowSide,
) error {
	if reason, ok := c.deadlinePassed(ctx, w); ok {
		return c.startCancelling(w, reason)
	}

	params := w.swap.SourceEscrowParams()
	if side == domain.SideDestination {
		params = w.swap.DestinationEscrowParams()
	}

	// The address is recorded before submitting so that a deployment whose
	// outcome is unknown is still watched while cancelling.
	if w.swap.Escrow(side) == nil {
		var address string
		if err := c.retry(ctx, "escrow_address", func() (err error) {
			address, err = c.chain(side).EscrowAddress(ctx, params)
			return
		}); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return c.startCancelling(
				w, fmt.Sprintf("failed to resolve %s escrow address: %s", side, err),
			)
		}
		if err := c.update(w, func(s *domain.Swap) error {
			return s.PrepareEscrow(side, address)
		}); err != nil {
			return err
		}
	}

	var res *ports.TxResult
	if err := c.retry(ctx, "deploy_"+side.String(), func() (err error) {
		res, err = c.chain(side).DeployEscrow(ctx, params)
		return
	}); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return c.startCancelling(
			w, fmt.Sprintf("failed to deploy %s escrow: %s", side, err),
		)
	}

	if prepared := w.swap.Escrow(side).Address; prepared != res.EscrowAddress {
		log.WithField("swap", w.swap.ID).Warnf(
			"%s escrow deployed at %s instead of %s", side, res.EscrowAddress, prepared,
		)
	}
	if err := c.update(w, func(s *domain.Swap) error {
		if side == domain.SideSource {
			return s.RequestSourceEscrow(res.EscrowAddress, res.TxID)
		}
		return s.RequestDestinationEscrow(res.EscrowAddress, res.TxID)
	}); err != nil {
		return err
	}

	c.publishEscrowState(w.swap, side, "pending", res.TxID)
	log.WithField("swap", w.swap.ID).Debugf(
		"%s escrow deployment requested at %s", side, res.EscrowAddress,
	)
	return nil
}

func (c *Coordinator) confirmEscrow(
	ctx context.Context, w *worker, side domain.EscrowSide,
) error {
	if reason, ok := c.deadlinePassed(ctx, w); ok {
		return c.startCancelling(w, reason)
	}

	address := w.swap.Escrow(side).Address
	var record *domain.EscrowRecord
	if err := c.retry(ctx, "get_escrow", func() (err error) {
		record, err = c.chain(side).GetConfirmedEscrow(ctx, address)
		return
	}); err != nil {
		if errors.Is(err, domain.ErrEscrowNotFound) {
			return nil
		}
		return err
	}

	err := c.update(w, func(s *domain.Swap) error {
		if side == domain.SideSource {
			return s.ConfirmSourceEscrow(*record)
		}
		return s.ConfirmDestinationEscrow(*record)
	})
	if errors.Is(err, domain.ErrInconsistentEscrowPair) {
		log.WithError(err).Errorf("swap %s: %s escrow rejected", w.swap.ID, side)
		return c.startCancelling(w, err.Error())
	}
	if err != nil {
		return err
	}

	c.publishEscrowState(w.swap, side, domain.EscrowStatusDeployed.String(), "")
	log.WithField("swap", w.swap.ID).Infof("%s escrow funded", side)
	return nil
}

// releaseSecret hands the secret to the winning resolver once both escrows
// are funded and both withdrawal windows are open. If the release comes too
// close to the destination cancellation the swap is cancelled instead.
func (c *Coordinator) releaseSecret(ctx context.Context, w *worker) error {
	if err := c.observe(ctx, w); err != nil {
		return err
	}
	if w.swap.Status != domain.SwapStatusDestEscrowFunded {
		return nil
	}

	srcNow, err := c.srcChain.GetCurrentTime(ctx)
	if err != nil {
		return err
	}
	dstNow, err := c.dstChain.GetCurrentTime(ctx)
	if err != nil {
		return err
	}
	tl := w.swap.Timelocks

	if w.swap.SecretReleased {
		// The resolver didn't withdraw in its exclusive window.
		if dstNow >= tl.DstPublicWithdrawal {
			return c.withdraw(ctx, w, domain.SideDestination)
		}
		return nil
	}

	if dstNow >= tl.DstCancellation-c.releaseMargin() {
		return c.startCancelling(w, "secret release window missed")
	}
	if srcNow < tl.SrcWithdrawal || dstNow < tl.DstWithdrawal {
		return nil
	}

	if err := c.update(w, func(s *domain.Swap) error {
		return s.ReleaseSecret(dstNow)
	}); err != nil {
		return err
	}

	c.hub.Publish(events.NewDirect(
		events.SecretReleased, w.swap.ID, w.swap.Commitment.ResolverID,
		events.SecretData{
			SwapID: w.swap.ID,
			Secret: hex.EncodeToString(w.swap.Commitment.Secret),
		},
	))
	log.WithField("swap", w.swap.ID).Infof(
		"secret released to resolver %s", w.swap.Commitment.ResolverID,
	)
	return nil
}

func (c *Coordinator) settle(ctx context.Context, w *worker) error {
	if err := c.observe(ctx, w); err != nil {
		return err
	}

	for _, side := range []domain.EscrowSide{domain.SideDestination, domain.SideSource} {
		if w.swap.Escrow(side).Status.IsTerminal() {
			continue
		}
		if err := c.withdraw(ctx, w, side); err != nil && ctx.Err() == nil {
			log.WithError(err).Warnf("swap %s: failed to withdraw %s escrow", w.swap.ID, side)
		}
	}

	if w.swap.Source.Status != domain.EscrowStatusWithdrawn ||
		w.swap.Destination.Status != domain.EscrowStatusWithdrawn {
		return nil
	}
	if err := c.update(w, func(s *domain.Swap) error {
		return s.Settle()
	}); err != nil {
		return err
	}

	c.hub.Publish(events.New(events.SwapSettled, w.swap.ID, events.SwapData{
		SwapID: w.swap.ID,
		Status: w.swap.Status.String(),
	}))
	log.WithField("swap", w.swap.ID).Info("swap settled")
	return nil
}

// unwind cancels every funded escrow, destination first, as soon as its
// cancellation window opens. Escrows requested but not confirmed are watched
// until they confirm or their deploy deadline passes.
func (c *Coordinator) unwind(ctx context.Context, w *worker) error {
	unresolved := false
	for _, side := range []domain.EscrowSide{domain.SideDestination, domain.SideSource} {
		escrow := w.swap.Escrow(side)
		if escrow == nil || escrow.Status.IsTerminal() {
			continue
		}

		done, err := c.cancelEscrow(ctx, w, side)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.WithError(err).Warnf("swap %s: failed to cancel %s escrow", w.swap.ID, side)
		}
		if !done {
			unresolved = true
		}
	}

	if w.swap.Status != domain.SwapStatusCancelling || unresolved {
		return nil
	}

	if err := c.update(w, func(s *domain.Swap) error {
		return s.Cancel()
	}); err != nil {
		c.alert(w, fmt.Sprintf("unable to finalize cancellation: %s", err))
		return err
	}

	c.hub.Publish(events.New(events.SwapCancelled, w.swap.ID, events.SwapData{
		SwapID: w.swap.ID,
		Status: w.swap.Status.String(),
		Reason: w.swap.CancelReason,
	}))
	log.WithField("swap", w.swap.ID).Infof("swap cancelled: %s", w.swap.CancelReason)
	return nil
}

// cancelEscrow returns whether the given side needs no further action.
func (c *Coordinator) cancelEscrow(
	ctx context.Context, w *worker, side domain.EscrowSide,
) (bool, error) {
	chain := c.chain(side)
	escrow := w.swap.Escrow(side)

	record, err := chain.GetConfirmedEscrow(ctx, escrow.Address)
	if err != nil {
		if errors.Is(err, domain.ErrEscrowNotFound) &&
			escrow.Status == domain.EscrowStatusUndefined {
			return c.discardEscrow(ctx, w, side)
		}
		return false, err
	}

	if record.Status.IsTerminal() {
		if err := c.recordEscrowStatus(
			w, side, record.Status, record.RevealedSecret, "",
		); err != nil {
			return false, err
		}
		return record.Status == domain.EscrowStatusCancelled, nil
	}
	if escrow.Status == domain.EscrowStatusUndefined {
		if err := c.recordEscrowStatus(
			w, side, domain.EscrowStatusDeployed, nil, "",
		); err != nil {
			return false, err
		}
		escrow = w.swap.Escrow(side)
	}

	now, err := chain.GetCurrentTime(ctx)
	if err != nil {
		return false, err
	}
	if _, err := escrow.CancelAction(now); err != nil {
		return false, nil
	}

	var res *ports.TxResult
	if err := c.retry(ctx, "cancel_"+side.String(), func() (err error) {
		res, err = chain.Cancel(ctx, escrow.Address)
		return
	}); err != nil {
		if errors.Is(err, domain.ErrEscrowFinalized) {
			return false, nil
		}
		if ctx.Err() == nil {
			c.alert(w, fmt.Sprintf("failed to cancel %s escrow", side))
		}
		return false, err
	}

	if err := c.recordEscrowStatus(
		w, side, domain.EscrowStatusCancelled, nil, res.TxID,
	); err != nil {
		return false, err
	}
	return true, nil
}

// discardEscrow forgets a requested escrow that isn't confirmed once the
// ledger time reached its deploy deadline, since it can't confirm anymore.
func (c *Coordinator) discardEscrow(
	ctx context.Context, w *worker, side domain.EscrowSide,
) (bool, error) {
	escrow := w.swap.Escrow(side)
	now, err := c.chain(side).GetCurrentTime(ctx)
	if err != nil {
		return false, err
	}
	if now < w.swap.Timelocks.DeployDeadline(side) {
		return false, nil
	}

	address := escrow.Address
	if err := c.update(w, func(s *domain.Swap) error {
		return s.DiscardEscrow(side)
	}); err != nil {
		return false, err
	}
	log.WithField("swap", w.swap.ID).Infof(
		"%s escrow %s never confirmed, discarded", side, address,
	)
	return true, nil
}

// withdraw withdraws the given escrow with the swap secret if a withdrawal
// window is open. It alerts if every withdrawal window is already closed.
func (c *Coordinator) withdraw(
	ctx context.Context, w *worker, side domain.EscrowSide,
) error {
	chain := c.chain(side)
	escrow := w.swap.Escrow(side)

	now, err := chain.GetCurrentTime(ctx)
	if err != nil {
		return err
	}
	if _, err := escrow.WithdrawAction(now); err != nil {
		var tlErr *domain.TimelockError
		if errors.As(err, &tlErr) && tlErr.NextStart > 0 {
			return nil
		}
		c.alert(w, fmt.Sprintf("%s escrow withdrawal window closed", side))
		return nil
	}

	var res *ports.TxResult
	if err := c.retry(ctx, "withdraw_"+side.String(), func() (err error) {
		res, err = chain.Withdraw(ctx, escrow.Address, w.swap.Commitment.Secret)
		return
	}); err != nil {
		if errors.Is(err, domain.ErrEscrowFinalized) {
			return nil
		}
		if ctx.Err() == nil {
			c.alert(w, fmt.Sprintf("failed to withdraw %s escrow", side))
		}
		return err
	}

	return c.recordEscrowStatus(
		w, side, domain.EscrowStatusWithdrawn, w.swap.Commitment.Secret, res.TxID,
	)
}

// observe records the terminal statuses of the funded escrows as reported by
// the chains.
func (c *Coordinator) observe(ctx context.Context, w *worker) error {
	for _, side := range []domain.EscrowSide{domain.SideSource, domain.SideDestination} {
		escrow := w.swap.Escrow(side)
		if escrow == nil || escrow.Status != domain.EscrowStatusDeployed {
			continue
		}

		record, err := c.chain(side).GetConfirmedEscrow(ctx, escrow.Address)
		if err != nil {
			return err
		}
		if !record.Status.IsTerminal() {
			continue
		}
		if err := c.recordEscrowStatus(
			w, side, record.Status, record.RevealedSecret, "",
		); err != nil {
			return err
		}
	}
	return nil
}

// recordEscrowStatus stores the observed status of one escrow. A withdrawal
// reveals the secret and moves a funded swap forward to Revealed.
func (c *Coordinator) recordEscrowStatus(
	w *worker, side domain.EscrowSide, status domain.EscrowStatus,
	secret []byte, txid string,
) error {
	if escrow := w.swap.Escrow(side); escrow != nil && escrow.Status == status {
		return nil
	}

	var mixed bool
	if err := c.update(w, func(s *domain.Swap) error {
		if err := s.UpdateEscrowStatus(side, status, secret); err != nil {
			if !errors.Is(err, domain.ErrMixedTerminalState) {
				return err
			}
			mixed = true
		}
		if status != domain.EscrowStatusWithdrawn {
			return nil
		}
		funded := s.Source != nil && s.Destination != nil &&
			s.Source.Status != domain.EscrowStatusUndefined &&
			s.Destination.Status != domain.EscrowStatusUndefined
		if funded && (s.Status == domain.SwapStatusDestEscrowFunded ||
			s.Status == domain.SwapStatusCancelling) {
			return s.Reveal(secret, c.oracle)
		}
		return nil
	}); err != nil {
		return err
	}

	c.publishEscrowState(w.swap, side, status.String(), txid)
	if mixed {
		c.alert(w, "escrows reached mixed terminal states")
	}
	return nil
}

func (c *Coordinator) startCancelling(w *worker, reason string) error {
	if err := c.update(w, func(s *domain.Swap) error {
		return s.StartCancelling(reason)
	}); err != nil {
		return err
	}
	log.WithField("swap", w.swap.ID).Warnf("cancelling swap: %s", reason)
	return nil
}

// alert records a liveness issue. The same alert is raised only once per
// swap.
func (c *Coordinator) alert(w *worker, msg string) {
	for _, a := range w.swap.Alerts {
		if a == msg {
			return
		}
	}
	if err := c.update(w, func(s *domain.Swap) error {
		s.AddAlert(msg)
		return nil
	}); err != nil {
		log.WithError(err).Warnf("failed to persist alert of swap %s", w.swap.ID)
	}

	stats.SwapAlerts.Inc()
	log.WithField("swap", w.swap.ID).Error(msg)
	c.hub.Publish(events.New(events.SwapAlert, w.swap.ID, events.SwapData{
		SwapID: w.swap.ID,
		Status: w.swap.Status.String(),
		Reason: msg,
	}))
}

// update applies fn to a copy of the swap, persists it and makes it the
// worker's current state.
func (c *Coordinator) update(w *worker, fn func(s *domain.Swap) error) error {
	next := w.swap.Clone()
	if err := fn(next); err != nil {
		return err
	}

	// Persisted even during shutdown, chain side effects may have happened.
	if err := c.repoManager.SwapRepository().UpdateSwap(
		context.Background(), next.ID,
		func(_ *domain.Swap) (*domain.Swap, error) {
			return next, nil
		},
	); err != nil {
		return err
	}

	prev := w.swap.Status
	w.swap = next
	if next.Status != prev {
		w.since = c.clock.Now()
		stats.SwapsByStatus.WithLabelValues(next.Status.String()).Inc()
		log.WithField("swap", next.ID).Debugf("%s -> %s", prev, next.Status)
	}
	return nil
}

// deadlinePassed tells whether a swap not yet funded on both sides must be
// cancelled, either because a confirmation is overdue or because the
// destination cancellation is too close.
func (c *Coordinator) deadlinePassed(ctx context.Context, w *worker) (string, bool) {
	if c.clock.Now().Sub(w.since) >= c.cfg.ConfirmationTimeout {
		return fmt.Sprintf(
			"%s in %s", domain.ErrConfirmationTimeout, w.swap.Status,
		), true
	}
	dstNow, err := c.dstChain.GetCurrentTime(ctx)
	if err != nil {
		return "", false
	}
	if dstNow >= w.swap.Timelocks.DstCancellation-c.releaseMargin() {
		return "destination cancellation window approaching", true
	}
	return "", false
}

func (c *Coordinator) publishEscrowState(
	swap *domain.Swap, side domain.EscrowSide, status, txid string,
) {
	data := events.EscrowStateData{
		SwapID: swap.ID,
		Side:   side.String(),
		Status: status,
		TxID:   txid,
	}
	if escrow := swap.Escrow(side); escrow != nil {
		data.Address = escrow.Address
	}
	c.hub.Publish(events.New(events.EscrowStateChanged, swap.ID, data))
}

func (c *Coordinator) chain(side domain.EscrowSide) ports.Chain {
	if side == domain.SideDestination {
		return c.dstChain
	}
	return c.srcChain
}

func (c *Coordinator) releaseMargin() int64 {
	return int64(c.cfg.SecretReleaseMargin / time.Second)
}
