package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

type swapRepositoryImpl struct {
	store *badgerhold.Store
}

// NewSwapRepositoryImpl returns a badger SwapRepository backed by the given
// store.
func NewSwapRepositoryImpl(store *badgerhold.Store) domain.SwapRepository {
	return &swapRepositoryImpl{store}
}

func (r *swapRepositoryImpl) AddSwap(_ context.Context, swap *domain.Swap) error {
	if err := r.store.Insert(swap.ID, *swap); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("swap %s already exists", swap.ID)
		}
		return err
	}
	return nil
}

func (r *swapRepositoryImpl) GetSwap(
	_ context.Context, swapID string,
) (*domain.Swap, error) {
	var swap domain.Swap
	if err := r.store.Get(swapID, &swap); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrSwapNotFound
		}
		return nil, err
	}
	return &swap, nil
}

func (r *swapRepositoryImpl) GetAllSwaps(_ context.Context) ([]*domain.Swap, error) {
	return r.findSwaps(nil)
}

func (r *swapRepositoryImpl) GetPendingSwaps(
	_ context.Context,
) ([]*domain.Swap, error) {
	query := badgerhold.
		Where("Status").Ne(domain.SwapStatusSettled).
		And("Status").Ne(domain.SwapStatusCancelled)
	return r.findSwaps(query)
}

func (r *swapRepositoryImpl) UpdateSwap(
	_ context.Context,
	swapID string,
	updateFn func(s *domain.Swap) (*domain.Swap, error),
) error {
	return r.store.Badger().Update(func(tx *badger.Txn) error {
		var swap domain.Swap
		if err := r.store.TxGet(tx, swapID, &swap); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrSwapNotFound
			}
			return err
		}

		updated, err := updateFn(&swap)
		if err != nil {
			return err
		}
		return r.store.TxUpdate(tx, swapID, *updated)
	})
}

func (r *swapRepositoryImpl) findSwaps(
	query *badgerhold.Query,
) ([]*domain.Swap, error) {
	var found []domain.Swap
	if err := r.store.Find(&found, query); err != nil {
		return nil, err
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].CreatedAt < found[j].CreatedAt
	})

	swaps := make([]*domain.Swap, 0, len(found))
	for i := range found {
		swaps = append(swaps, &found[i])
	}
	return swaps, nil
}
