package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/pkg/stats"
)

// retry runs fn with exponential backoff until it succeeds, returns a
// non-transient error or the attempts are exhausted.
func (c *Coordinator) retry(ctx context.Context, op string, fn func() error) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.cfg.RetryInitialInterval
	expBackoff.MaxElapsedTime = 0

	b := backoff.WithContext(
		backoff.WithMaxRetries(expBackoff, c.cfg.RetryMaxAttempts), ctx,
	)
	return backoff.RetryNotify(
		func() error {
			err := fn()
			if err != nil && !isTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		b,
		func(err error, next time.Duration) {
			stats.ChainCallRetries.WithLabelValues(op).Inc()
			log.WithError(err).Debugf("%s failed, retrying in %s", op, next)
		},
	)
}

// isTransient tells whether a chain error may go away by retrying the same
// call. Escrow rule violations never do.
func isTransient(err error) bool {
	for _, permanent := range []error{
		domain.ErrEscrowNotFound,
		domain.ErrEscrowFinalized,
		domain.ErrInvalidSecret,
		domain.ErrTimelockViolation,
		domain.ErrUnauthorizedCaller,
		domain.ErrInconsistentEscrowPair,
		domain.ErrValidation,
		context.Canceled,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}
