package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xswap-network/xswapd/internal/core/domain"
)

type swapRepositoryImpl struct {
	locker *sync.RWMutex
	swaps  map[string]*domain.Swap
}

// NewSwapRepositoryImpl returns a new inmemory SwapRepository implementation.
// Swaps are deep copied in and out, so callers never share state with the
// store.
func NewSwapRepositoryImpl() domain.SwapRepository {
	return &swapRepositoryImpl{
		locker: &sync.RWMutex{},
		swaps:  make(map[string]*domain.Swap),
	}
}

func (r *swapRepositoryImpl) AddSwap(_ context.Context, swap *domain.Swap) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, ok := r.swaps[swap.ID]; ok {
		return fmt.Errorf("swap %s already exists", swap.ID)
	}
	r.swaps[swap.ID] = swap.Clone()
	return nil
}

func (r *swapRepositoryImpl) GetSwap(
	_ context.Context, swapID string,
) (*domain.Swap, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	swap, ok := r.swaps[swapID]
	if !ok {
		return nil, domain.ErrSwapNotFound
	}
	return swap.Clone(), nil
}

func (r *swapRepositoryImpl) GetAllSwaps(_ context.Context) ([]*domain.Swap, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	return r.filter(func(*domain.Swap) bool { return true }), nil
}

func (r *swapRepositoryImpl) GetPendingSwaps(
	_ context.Context,
) ([]*domain.Swap, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	return r.filter(func(s *domain.Swap) bool { return !s.IsTerminal() }), nil
}

func (r *swapRepositoryImpl) UpdateSwap(
	_ context.Context,
	swapID string,
	updateFn func(s *domain.Swap) (*domain.Swap, error),
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	swap, ok := r.swaps[swapID]
	if !ok {
		return domain.ErrSwapNotFound
	}
	updated, err := updateFn(swap.Clone())
	if err != nil {
		return err
	}
	r.swaps[swapID] = updated.Clone()
	return nil
}

func (r *swapRepositoryImpl) filter(keep func(*domain.Swap) bool) []*domain.Swap {
	swaps := make([]*domain.Swap, 0, len(r.swaps))
	for _, s := range r.swaps {
		if keep(s) {
			swaps = append(swaps, s.Clone())
		}
	}
	sort.SliceStable(swaps, func(i, j int) bool {
		return swaps[i].CreatedAt < swaps[j].CreatedAt
	})
	return swaps
}
