package dbbadger

import (
	"context"
	"errors"

	"github.com/timshannon/badgerhold/v4"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

type webhookRepositoryImpl struct {
	store *badgerhold.Store
}

// NewWebhookRepositoryImpl returns a badger WebhookRepository backed by the
// given store.
func NewWebhookRepositoryImpl(store *badgerhold.Store) domain.WebhookRepository {
	return &webhookRepositoryImpl{store}
}

func (r *webhookRepositoryImpl) AddWebhook(
	_ context.Context, hook domain.Webhook,
) error {
	return r.store.Upsert(hook.ID, hook)
}

func (r *webhookRepositoryImpl) RemoveWebhook(_ context.Context, id string) error {
	if err := r.store.Delete(id, domain.Webhook{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return domain.ErrWebhookNotFound
		}
		return err
	}
	return nil
}

func (r *webhookRepositoryImpl) GetWebhook(
	_ context.Context, id string,
) (*domain.Webhook, error) {
	var hook domain.Webhook
	if err := r.store.Get(id, &hook); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrWebhookNotFound
		}
		return nil, err
	}
	return &hook, nil
}

func (r *webhookRepositoryImpl) GetWebhooksForEvent(
	_ context.Context, event string,
) ([]domain.Webhook, error) {
	var query *badgerhold.Query
	if event != "" {
		query = badgerhold.Where("Event").Eq(event)
	}

	var hooks []domain.Webhook
	if err := r.store.Find(&hooks, query); err != nil {
		return nil, err
	}
	if hooks == nil {
		hooks = make([]domain.Webhook, 0)
	}
	return hooks, nil
}
