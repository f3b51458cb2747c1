// Package settlement drives every matched order through the dual escrow
// exchange, until both escrows are withdrawn or both are cancelled.
package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/core/application/events"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
	"github.com/xswap-network/xswapd/pkg/stats"
)

const (
	defaultPollInterval         = 2 * time.Second
	defaultConfirmationTimeout  = 10 * time.Minute
	defaultSecretReleaseMargin  = 2 * time.Minute
	defaultRetryMaxAttempts     = 5
	defaultRetryInitialInterval = 500 * time.Millisecond
)

type Config struct {
	TimelockPolicy domain.TimelockPolicy
	// PollInterval is the period at which every swap worker checks the
	// chains.
	PollInterval time.Duration
	// ConfirmationTimeout bounds the time spent in a single pre-funding
	// state before the swap is cancelled.
	ConfirmationTimeout time.Duration
	// SecretReleaseMargin is the minimum time left before the destination
	// cancellation for the secret to be released.
	SecretReleaseMargin  time.Duration
	RetryMaxAttempts     uint64
	RetryInitialInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.TimelockPolicy == (domain.TimelockPolicy{}) {
		c.TimelockPolicy = domain.DefaultTimelockPolicy
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ConfirmationTimeout <= 0 {
		c.ConfirmationTimeout = defaultConfirmationTimeout
	}
	if c.SecretReleaseMargin <= 0 {
		c.SecretReleaseMargin = defaultSecretReleaseMargin
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = defaultRetryInitialInterval
	}
}

func (c Config) validate() error {
	anchor := int64(1)
	if err := c.TimelockPolicy.Resolve(anchor).Validate(); err != nil {
		return fmt.Errorf("invalid timelock policy: %w", err)
	}
	releaseWindow := c.TimelockPolicy.DstCancellation - c.TimelockPolicy.DstWithdrawal
	if c.SecretReleaseMargin >= releaseWindow {
		return fmt.Errorf(
			"secret release margin must be shorter than the destination "+
				"withdrawal windows (%s)", releaseWindow,
		)
	}
	return nil
}

// Coordinator owns the lifecycle of every swap. Each swap is driven by a
// dedicated worker that is the only writer of its state.
type Coordinator struct {
	cfg         Config
	repoManager ports.RepoManager
	srcChain    ports.Chain
	dstChain    ports.Chain
	oracle      domain.SecretOracle
	hub         *events.Hub
	clock       ports.Clock

	lock    sync.Mutex
	workers map[string]*worker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCoordinator(
	cfg Config,
	repoManager ports.RepoManager,
	srcChain, dstChain ports.Chain,
	oracle domain.SecretOracle,
	hub *events.Hub,
	clock ports.Clock,
) (*Coordinator, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if srcChain == nil {
		return nil, fmt.Errorf("missing source chain")
	}
	if dstChain == nil {
		return nil, fmt.Errorf("missing destination chain")
	}
	if oracle == nil {
		return nil, fmt.Errorf("missing secret oracle")
	}
	if hub == nil {
		return nil, fmt.Errorf("missing event hub")
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:         cfg,
		repoManager: repoManager,
		srcChain:    srcChain,
		dstChain:    dstChain,
		oracle:      oracle,
		hub:         hub,
		clock:       clock,
		workers:     make(map[string]*worker),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Commit creates the swap for the accepted bid and starts settling it. The
// returned commitment holds the secret and must never leave the process.
func (c *Coordinator) Commit(
	ctx context.Context, order domain.Order, bid domain.ResolverBid,
) (*domain.SwapCommitment, error) {
	now := c.clock.Now()
	commitment, err := domain.NewSwapCommitment(order, bid, c.oracle, now)
	if err != nil {
		return nil, err
	}

	timelocks := c.cfg.TimelockPolicy.Resolve(now.Unix())
	swap, err := domain.NewSwap(order, *commitment, timelocks)
	if err != nil {
		return nil, err
	}
	if err := c.repoManager.SwapRepository().AddSwap(ctx, swap); err != nil {
		return nil, err
	}
	stats.SwapsByStatus.WithLabelValues(swap.Status.String()).Inc()

	c.startWorker(swap)

	log.WithField("swap", swap.ID).Infof(
		"swap committed with resolver %s at price %s",
		bid.ResolverID, bid.Price,
	)
	return commitment, nil
}

// RequestCancel asks to unwind the swap. It fails with
// domain.ErrInvalidTransition once the secret was released or the swap
// reached finality.
func (c *Coordinator) RequestCancel(ctx context.Context, swapID string) error {
	w, ok := c.getWorker(swapID)
	if !ok {
		swap, err := c.repoManager.SwapRepository().GetSwap(ctx, swapID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: swap is %s", domain.ErrInvalidTransition, swap.Status)
	}

	req := cancelRequest{reason: "cancel requested", reply: make(chan error, 1)}
	select {
	case w.cancelReqs <- req:
	case <-w.done:
		return fmt.Errorf("%w: swap reached finality", domain.ErrInvalidTransition)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume restarts the workers of the swaps that didn't reach finality.
func (c *Coordinator) Resume(ctx context.Context) error {
	swaps, err := c.repoManager.SwapRepository().GetPendingSwaps(ctx)
	if err != nil {
		return err
	}
	for _, swap := range swaps {
		log.Debugf("resuming swap %s (%s)", swap.ID, swap.Status)
		c.startWorker(swap)
	}
	if len(swaps) > 0 {
		log.Infof("resumed %d pending swaps", len(swaps))
	}
	return nil
}

// Stop stops all workers. Swaps are left in their last persisted state and
// can be resumed.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

// GetSwap returns the swap with the given id.
func (c *Coordinator) GetSwap(ctx context.Context, swapID string) (*domain.Swap, error) {
	return c.repoManager.SwapRepository().GetSwap(ctx, swapID)
}

// ListSwaps returns all swaps.
func (c *Coordinator) ListSwaps(ctx context.Context) ([]*domain.Swap, error) {
	return c.repoManager.SwapRepository().GetAllSwaps(ctx)
}

func (c *Coordinator) startWorker(swap *domain.Swap) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.workers[swap.ID]; ok {
		return
	}
	w := newWorker(swap, c.clock.Now())
	c.workers[swap.ID] = w

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.removeWorker(swap.ID)
		c.run(w)
	}()
}

func (c *Coordinator) getWorker(swapID string) (*worker, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	w, ok := c.workers[swapID]
	return w, ok
}

func (c *Coordinator) removeWorker(swapID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.workers, swapID)
}
