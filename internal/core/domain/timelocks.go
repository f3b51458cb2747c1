package domain

import (
	"fmt"
	"time"
)

// Action is an escrow operation gated by a timelock window.
type Action int

const (
	ActionSrcWithdraw Action = iota
	ActionSrcPublicWithdraw
	ActionSrcCancel
	ActionSrcPublicCancel
	ActionDstWithdraw
	ActionDstPublicWithdraw
	ActionDstCancel
)

var (
	sourceActions      = []Action{ActionSrcWithdraw, ActionSrcPublicWithdraw, ActionSrcCancel, ActionSrcPublicCancel}
	destinationActions = []Action{ActionDstWithdraw, ActionDstPublicWithdraw, ActionDstCancel}
)

func (a Action) String() string {
	switch a {
	case ActionSrcWithdraw:
		return "SrcWithdraw"
	case ActionSrcPublicWithdraw:
		return "SrcPublicWithdraw"
	case ActionSrcCancel:
		return "SrcCancel"
	case ActionSrcPublicCancel:
		return "SrcPublicCancel"
	case ActionDstWithdraw:
		return "DstWithdraw"
	case ActionDstPublicWithdraw:
		return "DstPublicWithdraw"
	case ActionDstCancel:
		return "DstCancel"
	default:
		return "UnknownAction"
	}
}

// Side returns the escrow side the action applies to.
func (a Action) Side() EscrowSide {
	if a >= ActionDstWithdraw {
		return SideDestination
	}
	return SideSource
}

// IsWithdrawal returns whether the action requires the secret.
func (a Action) IsWithdrawal() bool {
	switch a {
	case ActionSrcWithdraw, ActionSrcPublicWithdraw,
		ActionDstWithdraw, ActionDstPublicWithdraw:
		return true
	}
	return false
}

// Role identifies who is performing an escrow action.
type Role int

const (
	RoleAnyone Role = iota
	RoleMaker
	RoleTaker
)

func (r Role) String() string {
	switch r {
	case RoleMaker:
		return "maker"
	case RoleTaker:
		return "taker"
	default:
		return "anyone"
	}
}

// AuthorizedFor returns whether the role can perform the action. Public
// actions are open to any role.
func (a Action) AuthorizedFor(r Role) bool {
	switch a {
	case ActionSrcPublicWithdraw, ActionSrcPublicCancel, ActionDstPublicWithdraw:
		return true
	case ActionSrcCancel:
		return r == RoleMaker || r == RoleTaker
	case ActionSrcWithdraw, ActionDstWithdraw, ActionDstCancel:
		return r == RoleTaker
	default:
		return false
	}
}

// Timelocks are the seven absolute unix timestamps partitioning time into
// exclusive action windows. The destination side has no public cancel.
type Timelocks struct {
	SrcWithdrawal         int64
	SrcPublicWithdrawal   int64
	SrcCancellation       int64
	SrcPublicCancellation int64
	DstWithdrawal         int64
	DstPublicWithdrawal   int64
	DstCancellation       int64
}

// Window returns the [start, end) bounds of the action. An end of zero means
// the window never closes.
func (t Timelocks) Window(a Action) (int64, int64) {
	switch a {
	case ActionSrcWithdraw:
		return t.SrcWithdrawal, t.SrcPublicWithdrawal
	case ActionSrcPublicWithdraw:
		return t.SrcPublicWithdrawal, t.SrcCancellation
	case ActionSrcCancel:
		return t.SrcCancellation, t.SrcPublicCancellation
	case ActionSrcPublicCancel:
		return t.SrcPublicCancellation, 0
	case ActionDstWithdraw:
		return t.DstWithdrawal, t.DstPublicWithdrawal
	case ActionDstPublicWithdraw:
		return t.DstPublicWithdrawal, t.DstCancellation
	case ActionDstCancel:
		return t.DstCancellation, 0
	default:
		return 0, 0
	}
}

// DeployDeadline returns the time from which an escrow of the given side can
// no longer be deployed: an escrow must confirm before its cancellation
// window opens.
func (t Timelocks) DeployDeadline(side EscrowSide) int64 {
	if side == SideDestination {
		return t.DstCancellation
	}
	return t.SrcCancellation
}

// CheckTimeWindow returns nil if the action is legal at now, a
// *TimelockError describing the next legal window otherwise.
func (t Timelocks) CheckTimeWindow(a Action, now int64) error {
	start, end := t.Window(a)
	if start <= 0 && end <= 0 {
		return fmt.Errorf("%w: unknown action %d", ErrTimelockViolation, a)
	}
	if now < start {
		return &TimelockError{Action: a, Now: now, NextStart: start, NextEnd: end}
	}
	if end > 0 && now >= end {
		return &TimelockError{Action: a, Now: now}
	}
	return nil
}

// LegalActions returns the actions allowed on the given side at now. By
// construction the result holds at most one action.
func (t Timelocks) LegalActions(side EscrowSide, now int64) []Action {
	actions := sourceActions
	if side == SideDestination {
		actions = destinationActions
	}
	legal := make([]Action, 0, 1)
	for _, a := range actions {
		if t.CheckTimeWindow(a, now) == nil {
			legal = append(legal, a)
		}
	}
	return legal
}

// Validate checks the ordering of each side and the cross-chain rule that the
// destination cancellation precedes the source cancellation.
func (t Timelocks) Validate() error {
	if t.SrcWithdrawal <= 0 || t.DstWithdrawal <= 0 {
		return fmt.Errorf("%w: timelocks must be set", ErrInconsistentEscrowPair)
	}
	if !(t.SrcWithdrawal < t.SrcPublicWithdrawal &&
		t.SrcPublicWithdrawal < t.SrcCancellation &&
		t.SrcCancellation < t.SrcPublicCancellation) {
		return fmt.Errorf(
			"%w: source timelocks must be strictly increasing",
			ErrInconsistentEscrowPair,
		)
	}
	if !(t.DstWithdrawal < t.DstPublicWithdrawal &&
		t.DstPublicWithdrawal < t.DstCancellation) {
		return fmt.Errorf(
			"%w: destination timelocks must be strictly increasing",
			ErrInconsistentEscrowPair,
		)
	}
	if t.DstCancellation >= t.SrcCancellation {
		return fmt.Errorf(
			"%w: destination cancellation (%d) must precede source cancellation (%d)",
			ErrInconsistentEscrowPair, t.DstCancellation, t.SrcCancellation,
		)
	}
	return nil
}

// TimelockPolicy holds the timelock offsets relative to the moment a swap is
// committed.
type TimelockPolicy struct {
	SrcWithdrawal         time.Duration
	SrcPublicWithdrawal   time.Duration
	SrcCancellation       time.Duration
	SrcPublicCancellation time.Duration
	DstWithdrawal         time.Duration
	DstPublicWithdrawal   time.Duration
	DstCancellation       time.Duration
}

// DefaultTimelockPolicy gives resolvers a couple of minutes of finality lock
// on each side and keeps the destination cancellation well before the source
// one.
var DefaultTimelockPolicy = TimelockPolicy{
	SrcWithdrawal:         2 * time.Minute,
	SrcPublicWithdrawal:   20 * time.Minute,
	SrcCancellation:       40 * time.Minute,
	SrcPublicCancellation: 60 * time.Minute,
	DstWithdrawal:         2 * time.Minute,
	DstPublicWithdrawal:   15 * time.Minute,
	DstCancellation:       30 * time.Minute,
}

// Resolve returns the absolute timelocks anchored at the given unix time.
func (p TimelockPolicy) Resolve(anchor int64) Timelocks {
	at := func(d time.Duration) int64 {
		return anchor + int64(d/time.Second)
	}
	return Timelocks{
		SrcWithdrawal:         at(p.SrcWithdrawal),
		SrcPublicWithdrawal:   at(p.SrcPublicWithdrawal),
		SrcCancellation:       at(p.SrcCancellation),
		SrcPublicCancellation: at(p.SrcPublicCancellation),
		DstWithdrawal:         at(p.DstWithdrawal),
		DstPublicWithdrawal:   at(p.DstPublicWithdrawal),
		DstCancellation:       at(p.DstCancellation),
	}
}
