package dbbadger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

type orderRepositoryImpl struct {
	store *badgerhold.Store
}

// NewOrderRepositoryImpl returns a badger OrderRepository backed by the given
// store.
func NewOrderRepositoryImpl(store *badgerhold.Store) domain.OrderRepository {
	return &orderRepositoryImpl{store}
}

func (r *orderRepositoryImpl) AddOrder(
	_ context.Context, info domain.OrderInfo,
) error {
	if err := r.store.Insert(info.Order.ID, info); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrOrderAlreadyExists
		}
		return err
	}
	return nil
}

func (r *orderRepositoryImpl) GetOrder(
	_ context.Context, orderID string,
) (*domain.OrderInfo, error) {
	var info domain.OrderInfo
	if err := r.store.Get(orderID, &info); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &info, nil
}

func (r *orderRepositoryImpl) GetAllOrders(
	_ context.Context,
) ([]domain.OrderInfo, error) {
	return r.findOrders(nil)
}

func (r *orderRepositoryImpl) GetOrdersByState(
	_ context.Context, states ...domain.OrderState,
) ([]domain.OrderInfo, error) {
	if len(states) <= 0 {
		return []domain.OrderInfo{}, nil
	}
	values := make([]interface{}, 0, len(states))
	for _, s := range states {
		values = append(values, s)
	}
	return r.findOrders(badgerhold.Where("State").In(values...))
}

func (r *orderRepositoryImpl) UpdateOrderState(
	_ context.Context, orderID string, state domain.OrderState,
) error {
	return r.store.Badger().Update(func(tx *badger.Txn) error {
		var info domain.OrderInfo
		if err := r.store.TxGet(tx, orderID, &info); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrOrderNotFound
			}
			return err
		}
		if info.State == state {
			return nil
		}
		if err := info.State.ValidateTransition(state); err != nil {
			return err
		}
		info.State = state
		info.UpdatedAt = time.Now().Unix()
		return r.store.TxUpdate(tx, orderID, info)
	})
}

func (r *orderRepositoryImpl) findOrders(
	query *badgerhold.Query,
) ([]domain.OrderInfo, error) {
	var orders []domain.OrderInfo
	if err := r.store.Find(&orders, query); err != nil {
		return nil, err
	}
	if orders == nil {
		orders = make([]domain.OrderInfo, 0)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt < orders[j].CreatedAt
	})
	return orders, nil
}
