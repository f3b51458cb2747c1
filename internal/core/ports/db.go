package ports

import (
	"github.com/xswap-network/xswapd/internal/core/domain"
)

// RepoManager interface defines the methods for orders, swaps and webhooks.
type RepoManager interface {
	OrderRepository() domain.OrderRepository
	SwapRepository() domain.SwapRepository
	WebhookRepository() domain.WebhookRepository

	Close()
}
