package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation is the kind shared by every malformed order or bid.
	ErrValidation = errors.New("validation error")
	// ErrInvalidSignature is returned when the maker signature doesn't match
	// the order hash.
	ErrInvalidSignature = &ValidationError{Field: "signature", Reason: "invalid maker signature"}
	// ErrOrderExpired is returned when an order is used outside its auction
	// window.
	ErrOrderExpired = errors.New("order expired")
	// ErrOrderNotBiddable is returned when a bid targets an order that is not
	// in active bidding.
	ErrOrderNotBiddable = errors.New("order not biddable")
	// ErrBidRaceLost is returned to bids or acceptances that arrive after
	// another bid was accepted for the same order.
	ErrBidRaceLost = errors.New("bid race lost")
	// ErrBidBelowPrice is returned when a bid is lower than the current
	// auction price.
	ErrBidBelowPrice = &ValidationError{Field: "price", Reason: "bid below current auction price"}
	// ErrBidNotFound ...
	ErrBidNotFound = errors.New("bid not found")
	// ErrInvalidSecret is returned when a withdrawal preimage doesn't match
	// the committed hash.
	ErrInvalidSecret = errors.New("invalid secret")
	// ErrTimelockViolation is the kind of every action attempted outside its
	// legal window.
	ErrTimelockViolation = errors.New("timelock violation")
	// ErrUnauthorizedCaller is returned when the caller role can't perform an
	// escrow action.
	ErrUnauthorizedCaller = errors.New("caller not authorized for action")
	// ErrEscrowFinalized is returned for any action on a withdrawn or
	// cancelled escrow.
	ErrEscrowFinalized = errors.New("escrow already finalized")
	// ErrEscrowNotFound is returned by chain readers when no escrow is
	// confirmed at the given address.
	ErrEscrowNotFound = errors.New("escrow not found")
	// ErrChainUnavailable is the transient error of chain collaborators.
	ErrChainUnavailable = errors.New("chain unavailable")
	// ErrConfirmationTimeout is returned when a chain confirmation didn't
	// arrive in time.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	// ErrInconsistentEscrowPair is returned when the destination escrow
	// doesn't match the source one or the accepted bid.
	ErrInconsistentEscrowPair = errors.New("inconsistent escrow pair")
	// ErrMixedTerminalState is returned when a status update would leave the
	// pair of escrows as one withdrawn and one cancelled.
	ErrMixedTerminalState = errors.New("mixed terminal escrow states")
	// ErrInvalidTransition is returned for any illegal state change.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrSwapNotFound ...
	ErrSwapNotFound = errors.New("swap not found")
	// ErrOrderNotFound ...
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists ...
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrWebhookNotFound ...
	ErrWebhookNotFound = errors.New("webhook not found")
)

// ValidationError reports a malformed order or bid field. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TimelockError reports an escrow action attempted outside its window along
// with the next window in which it becomes legal, if any. It matches
// ErrTimelockViolation with errors.Is.
type TimelockError struct {
	Action    Action
	Now       int64
	NextStart int64
	NextEnd   int64
}

func (e *TimelockError) Error() string {
	if e.NextStart <= 0 {
		return fmt.Sprintf(
			"%s not allowed at %d: window closed", e.Action, e.Now,
		)
	}
	end := "unbounded"
	if e.NextEnd > 0 {
		end = time.Unix(e.NextEnd, 0).UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf(
		"%s not allowed at %d: next legal window [%s, %s)", e.Action, e.Now,
		time.Unix(e.NextStart, 0).UTC().Format(time.RFC3339), end,
	)
}

func (e *TimelockError) Unwrap() error {
	return ErrTimelockViolation
}
