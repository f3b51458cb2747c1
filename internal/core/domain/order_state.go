package domain

import "fmt"

// OrderState is the biddability state of an order. It's the only order
// value that changes after submission.
type OrderState int32

const (
	OrderStatePending OrderState = iota
	OrderStateActive
	OrderStateMatched
	OrderStateExpired
	OrderStateCancelled
)

var orderStateTransitions = map[OrderState][]OrderState{
	OrderStatePending: {OrderStateActive, OrderStateExpired, OrderStateCancelled},
	OrderStateActive:  {OrderStateMatched, OrderStateExpired, OrderStateCancelled},
	// A match is cancelled only if its swap couldn't be committed.
	OrderStateMatched: {OrderStateCancelled},
}

func (s OrderState) String() string {
	switch s {
	case OrderStatePending:
		return "pending"
	case OrderStateActive:
		return "active"
	case OrderStateMatched:
		return "matched"
	case OrderStateExpired:
		return "expired"
	case OrderStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal returns whether no further transition is possible.
func (s OrderState) IsTerminal() bool {
	return len(orderStateTransitions[s]) == 0
}

// IsBiddable returns whether bids can be submitted in this state.
func (s OrderState) IsBiddable() bool {
	return s == OrderStateActive
}

// CanTransitionTo returns whether moving to next is legal.
func (s OrderState) CanTransitionTo(next OrderState) bool {
	for _, st := range orderStateTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns an ErrInvalidTransition error if moving to next
// is illegal.
func (s OrderState) ValidateTransition(next OrderState) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

// OrderInfo pairs an order with its current state for persistence.
type OrderInfo struct {
	Order     Order
	State     OrderState
	CreatedAt int64
	UpdatedAt int64
}
