package domain

import "context"

// OrderRepository is the abstraction for any kind of database intended to
// persist Orders along with their state.
type OrderRepository interface {
	// AddOrder stores a new order. It returns ErrOrderAlreadyExists if an
	// order with the same id is already stored.
	AddOrder(ctx context.Context, info OrderInfo) error
	// GetOrder returns the order with the given id.
	GetOrder(ctx context.Context, orderID string) (*OrderInfo, error)
	// GetAllOrders returns all stored orders.
	GetAllOrders(ctx context.Context) ([]OrderInfo, error)
	// GetOrdersByState returns the orders in any of the given states.
	GetOrdersByState(ctx context.Context, states ...OrderState) ([]OrderInfo, error)
	// UpdateOrderState commits a state change of the order with the given id.
	UpdateOrderState(
		ctx context.Context, orderID string, state OrderState,
	) error
}

// SwapRepository is the abstraction for any kind of database intended to
// persist Swaps.
type SwapRepository interface {
	// AddSwap stores a new swap.
	AddSwap(ctx context.Context, swap *Swap) error
	// GetSwap returns the swap with the given id.
	GetSwap(ctx context.Context, swapID string) (*Swap, error)
	// GetAllSwaps returns all stored swaps.
	GetAllSwaps(ctx context.Context) ([]*Swap, error)
	// GetPendingSwaps returns the swaps that didn't reach finality yet.
	GetPendingSwaps(ctx context.Context) ([]*Swap, error)
	// UpdateSwap allows to commit multiple changes to the same swap in a
	// transactional way.
	UpdateSwap(
		ctx context.Context,
		swapID string,
		updateFn func(s *Swap) (*Swap, error),
	) error
}
