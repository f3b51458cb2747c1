package domain

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// EscrowSide tells on which chain an escrow lives.
type EscrowSide int

const (
	SideSource EscrowSide = iota
	SideDestination
)

func (s EscrowSide) String() string {
	if s == SideDestination {
		return "destination"
	}
	return "source"
}

// EscrowStatus is the on-chain state of an escrow. Withdrawn and Cancelled
// are terminal.
type EscrowStatus int

const (
	EscrowStatusUndefined EscrowStatus = iota
	EscrowStatusDeployed
	EscrowStatusWithdrawn
	EscrowStatusCancelled
)

func (s EscrowStatus) String() string {
	switch s {
	case EscrowStatusDeployed:
		return "deployed"
	case EscrowStatusWithdrawn:
		return "withdrawn"
	case EscrowStatusCancelled:
		return "cancelled"
	default:
		return "undefined"
	}
}

// IsTerminal ...
func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusWithdrawn || s == EscrowStatusCancelled
}

// SecretOracle hashes and verifies swap secrets.
type SecretOracle interface {
	Hash(secret []byte) []byte
	Verify(secret, secretHash []byte) bool
}

// EscrowRecord is one of the two hash-time-locked escrows of a swap.
type EscrowRecord struct {
	Side          EscrowSide
	Address       string
	OrderHash     string
	SecretHash    []byte
	Maker         string
	Taker         string
	Amount        decimal.Decimal
	SafetyDeposit decimal.Decimal
	Timelocks     Timelocks
	// SrcCancellationTime is set only on destination escrows and bounds their
	// lifetime to the source cancellation.
	SrcCancellationTime int64
	Status              EscrowStatus
	RevealedSecret      []byte
	DeployedAt          int64
}

// Withdraw releases the escrow funds if the caller is allowed to withdraw at
// now and the secret matches the committed hash. On failure the record is
// left untouched.
func (e *EscrowRecord) Withdraw(
	secret []byte, caller Role, now int64, oracle SecretOracle,
) (Action, error) {
	if e.Status != EscrowStatusDeployed {
		return 0, fmt.Errorf("%w: escrow is %s", ErrEscrowFinalized, e.Status)
	}

	action, err := e.withdrawAction(now)
	if err != nil {
		return action, err
	}
	if !action.AuthorizedFor(caller) {
		return action, fmt.Errorf("%w: %s by %s", ErrUnauthorizedCaller, action, caller)
	}
	if !oracle.Verify(secret, e.SecretHash) {
		return action, ErrInvalidSecret
	}

	e.Status = EscrowStatusWithdrawn
	e.RevealedSecret = append([]byte{}, secret...)
	return action, nil
}

// Cancel returns the escrow funds to their depositor if the caller is allowed
// to cancel at now. No secret is required.
func (e *EscrowRecord) Cancel(caller Role, now int64) (Action, error) {
	if e.Status != EscrowStatusDeployed {
		return 0, fmt.Errorf("%w: escrow is %s", ErrEscrowFinalized, e.Status)
	}

	action, err := e.cancelAction(now)
	if err != nil {
		return action, err
	}
	if !action.AuthorizedFor(caller) {
		return action, fmt.Errorf("%w: %s by %s", ErrUnauthorizedCaller, action, caller)
	}

	e.Status = EscrowStatusCancelled
	return action, nil
}

// WithdrawAction returns the withdrawal action legal at now, or the
// timelock error of the nearest one.
func (e *EscrowRecord) WithdrawAction(now int64) (Action, error) {
	return e.withdrawAction(now)
}

// CancelAction returns the cancellation action legal at now, or the timelock
// error of the nearest one.
func (e *EscrowRecord) CancelAction(now int64) (Action, error) {
	return e.cancelAction(now)
}

func (e *EscrowRecord) withdrawAction(now int64) (Action, error) {
	private, public := ActionSrcWithdraw, ActionSrcPublicWithdraw
	if e.Side == SideDestination {
		private, public = ActionDstWithdraw, ActionDstPublicWithdraw
	}
	return pickAction(e.Timelocks, now, private, public)
}

func (e *EscrowRecord) cancelAction(now int64) (Action, error) {
	if e.Side == SideDestination {
		return pickAction(e.Timelocks, now, ActionDstCancel)
	}
	return pickAction(e.Timelocks, now, ActionSrcCancel, ActionSrcPublicCancel)
}

// pickAction returns the first of the given consecutive actions legal at now.
// If none is, the error refers to the first action when now is too early and
// to the last one when every window is closed.
func pickAction(t Timelocks, now int64, actions ...Action) (Action, error) {
	for _, a := range actions {
		if t.CheckTimeWindow(a, now) == nil {
			return a, nil
		}
	}
	first, last := actions[0], actions[len(actions)-1]
	if start, _ := t.Window(first); now < start {
		return first, t.CheckTimeWindow(first, now)
	}
	return last, t.CheckTimeWindow(last, now)
}

// CheckEscrowPair verifies that the destination escrow is bound to the same
// swap as the source one, commits the same secret hash, carries at least the
// agreed amount and can't outlive the source cancellation.
func CheckEscrowPair(
	src, dst EscrowRecord, commitment SwapCommitment,
) error {
	if src.Side != SideSource || dst.Side != SideDestination {
		return fmt.Errorf("%w: wrong escrow sides", ErrInconsistentEscrowPair)
	}
	if src.OrderHash != dst.OrderHash || dst.OrderHash != commitment.OrderID {
		return fmt.Errorf("%w: order hash mismatch", ErrInconsistentEscrowPair)
	}
	if !bytes.Equal(src.SecretHash, commitment.SecretHash) ||
		!bytes.Equal(dst.SecretHash, commitment.SecretHash) {
		return fmt.Errorf("%w: secret hash mismatch", ErrInconsistentEscrowPair)
	}
	if !src.Amount.Equal(commitment.SrcAmount) {
		return fmt.Errorf(
			"%w: source amount %s, expected %s",
			ErrInconsistentEscrowPair, src.Amount, commitment.SrcAmount,
		)
	}
	if dst.Amount.LessThan(commitment.DstAmount) {
		return fmt.Errorf(
			"%w: destination amount %s below agreed %s",
			ErrInconsistentEscrowPair, dst.Amount, commitment.DstAmount,
		)
	}
	if dst.SrcCancellationTime != src.Timelocks.SrcCancellation {
		return fmt.Errorf(
			"%w: destination bound to source cancellation %d, expected %d",
			ErrInconsistentEscrowPair, dst.SrcCancellationTime,
			src.Timelocks.SrcCancellation,
		)
	}
	if dst.Timelocks.DstCancellation >= dst.SrcCancellationTime {
		return fmt.Errorf(
			"%w: destination cancellation must precede source cancellation",
			ErrInconsistentEscrowPair,
		)
	}
	return nil
}
