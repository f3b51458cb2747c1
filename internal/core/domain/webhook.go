package domain

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Webhook is an external endpoint notified of swap lifecycle events.
type Webhook struct {
	ID       string
	Event    string
	Endpoint string
	Secret   string
}

// NewWebhook returns a webhook with a fresh id for the given event.
func NewWebhook(event, endpoint, secret string) (*Webhook, error) {
	if strings.TrimSpace(event) == "" {
		return nil, newValidationError("event", "missing")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, newValidationError("endpoint", "must be a valid URI")
	}
	return &Webhook{
		ID:       uuid.New().String(),
		Event:    event,
		Endpoint: endpoint,
		Secret:   secret,
	}, nil
}

func (w Webhook) String() string {
	return fmt.Sprintf("%s@%s", w.Event, w.Endpoint)
}

// WebhookRepository persists webhook subscriptions.
type WebhookRepository interface {
	AddWebhook(ctx context.Context, hook Webhook) error
	RemoveWebhook(ctx context.Context, id string) error
	GetWebhook(ctx context.Context, id string) (*Webhook, error)
	// GetWebhooksForEvent returns the webhooks of the given event, or all of
	// them if event is empty.
	GetWebhooksForEvent(ctx context.Context, event string) ([]Webhook, error)
}
