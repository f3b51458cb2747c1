package inmemory

import (
	"context"
	"sync"

	"github.com/xswap-network/xswapd/internal/core/domain"
)

type webhookRepositoryImpl struct {
	locker   *sync.RWMutex
	webhooks map[string]domain.Webhook
}

// NewWebhookRepositoryImpl returns a new inmemory WebhookRepository
// implementation.
func NewWebhookRepositoryImpl() domain.WebhookRepository {
	return &webhookRepositoryImpl{
		locker:   &sync.RWMutex{},
		webhooks: make(map[string]domain.Webhook),
	}
}

func (r *webhookRepositoryImpl) AddWebhook(
	_ context.Context, hook domain.Webhook,
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	r.webhooks[hook.ID] = hook
	return nil
}

func (r *webhookRepositoryImpl) RemoveWebhook(_ context.Context, id string) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, ok := r.webhooks[id]; !ok {
		return domain.ErrWebhookNotFound
	}
	delete(r.webhooks, id)
	return nil
}

func (r *webhookRepositoryImpl) GetWebhook(
	_ context.Context, id string,
) (*domain.Webhook, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	hook, ok := r.webhooks[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	return &hook, nil
}

func (r *webhookRepositoryImpl) GetWebhooksForEvent(
	_ context.Context, event string,
) ([]domain.Webhook, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	hooks := make([]domain.Webhook, 0)
	for _, hook := range r.webhooks {
		if event == "" || hook.Event == event {
			hooks = append(hooks, hook)
		}
	}
	return hooks, nil
}
