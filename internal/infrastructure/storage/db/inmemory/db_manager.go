package inmemory

import (
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
)

type RepoManager struct {
	orderRepository   domain.OrderRepository
	swapRepository    domain.SwapRepository
	webhookRepository domain.WebhookRepository
}

func NewRepoManager() ports.RepoManager {
	return &RepoManager{
		orderRepository:   NewOrderRepositoryImpl(),
		swapRepository:    NewSwapRepositoryImpl(),
		webhookRepository: NewWebhookRepositoryImpl(),
	}
}

func (d *RepoManager) OrderRepository() domain.OrderRepository {
	return d.orderRepository
}

func (d *RepoManager) SwapRepository() domain.SwapRepository {
	return d.swapRepository
}

func (d *RepoManager) WebhookRepository() domain.WebhookRepository {
	return d.webhookRepository
}

func (d *RepoManager) Close() {}
