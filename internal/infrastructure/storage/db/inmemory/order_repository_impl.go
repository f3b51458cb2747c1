package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xswap-network/xswapd/internal/core/domain"
)

type orderRepositoryImpl struct {
	locker *sync.RWMutex
	orders map[string]domain.OrderInfo
}

// NewOrderRepositoryImpl returns a new inmemory OrderRepository implementation.
func NewOrderRepositoryImpl() domain.OrderRepository {
	return &orderRepositoryImpl{
		locker: &sync.RWMutex{},
		orders: make(map[string]domain.OrderInfo),
	}
}

func (r *orderRepositoryImpl) AddOrder(
	_ context.Context, info domain.OrderInfo,
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, ok := r.orders[info.Order.ID]; ok {
		return domain.ErrOrderAlreadyExists
	}
	r.orders[info.Order.ID] = info
	return nil
}

func (r *orderRepositoryImpl) GetOrder(
	_ context.Context, orderID string,
) (*domain.OrderInfo, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	info, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &info, nil
}

func (r *orderRepositoryImpl) GetAllOrders(
	_ context.Context,
) ([]domain.OrderInfo, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	return r.filter(func(domain.OrderInfo) bool { return true }), nil
}

func (r *orderRepositoryImpl) GetOrdersByState(
	_ context.Context, states ...domain.OrderState,
) ([]domain.OrderInfo, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	return r.filter(func(info domain.OrderInfo) bool {
		for _, state := range states {
			if info.State == state {
				return true
			}
		}
		return false
	}), nil
}

func (r *orderRepositoryImpl) UpdateOrderState(
	_ context.Context, orderID string, state domain.OrderState,
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	info, ok := r.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if info.State == state {
		return nil
	}
	if err := info.State.ValidateTransition(state); err != nil {
		return err
	}
	info.State = state
	info.UpdatedAt = time.Now().Unix()
	r.orders[orderID] = info
	return nil
}

func (r *orderRepositoryImpl) filter(
	keep func(domain.OrderInfo) bool,
) []domain.OrderInfo {
	orders := make([]domain.OrderInfo, 0, len(r.orders))
	for _, info := range r.orders {
		if keep(info) {
			orders = append(orders, info)
		}
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt < orders[j].CreatedAt
	})
	return orders
}
