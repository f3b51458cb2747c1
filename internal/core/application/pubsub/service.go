package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/core/application/events"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
)

const defaultQueueSize = 256

// webhookEvents are the hub events that can be forwarded to webhooks.
var webhookEvents = map[string]struct{}{
	events.OrderMatched:       {},
	events.OrderExpired:       {},
	events.OrderCancelled:     {},
	events.EscrowStateChanged: {},
	events.SwapSettled:        {},
	events.SwapCancelled:      {},
	events.SwapAlert:          {},
}

// WebhookInfo ...
type WebhookInfo struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	Endpoint  string `json:"endpoint"`
	IsSecured bool   `json:"isSecured"`
}

// Service manages the webhooks of the operator and notifies them of the
// swap lifecycle events published on the hub. Notifications are sent
// asynchronously, in publication order.
type Service struct {
	pubsub ports.SecurePubSub
	queue  chan events.Event

	lock    sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewService(pubsub ports.SecurePubSub, queueSize int) (*Service, error) {
	if pubsub == nil {
		return nil, fmt.Errorf("missing pubsub")
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Service{
		pubsub: pubsub,
		queue:  make(chan events.Event, queueSize),
	}, nil
}

func (s *Service) SecurePubSub() ports.SecurePubSub {
	return s.pubsub
}

func (s *Service) AddWebhook(
	_ context.Context, event, endpoint, secret string,
) (string, error) {
	if !isValidEvent(event) {
		return "", &domain.ValidationError{
			Field: "event", Reason: fmt.Sprintf("unknown webhook event %q", event),
		}
	}
	return s.pubsub.Subscribe(event, endpoint, secret)
}

func (s *Service) RemoveWebhook(_ context.Context, id string) error {
	return s.pubsub.Unsubscribe(ports.UnspecifiedTopic, id)
}

// ListWebhooks returns the webhooks notified for the given event, or all of
// them if event is empty.
func (s *Service) ListWebhooks(
	_ context.Context, event string,
) ([]WebhookInfo, error) {
	subs, err := s.pubsub.ListSubscriptionsForTopic(event)
	if err != nil {
		return nil, err
	}
	webhooks := make([]WebhookInfo, 0, len(subs))
	for _, sub := range subs {
		webhooks = append(webhooks, WebhookInfo{
			ID:        sub.Id(),
			Event:     sub.Topic(),
			Endpoint:  sub.NotifyAt(),
			IsSecured: sub.IsSecured(),
		})
	}
	return webhooks, nil
}

// Deliver makes the service a sink of the event hub. Private events are
// never forwarded.
func (s *Service) Deliver(e events.Event) {
	if e.IsPrivate() {
		return
	}
	if _, ok := webhookEvents[e.Type]; !ok {
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.stopped {
		return
	}
	select {
	case s.queue <- e:
	default:
		log.Warnf("webhook queue full, dropping %s event %d", e.Type, e.Seq)
	}
}

// Start spawns the goroutine publishing queued events.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.publishLoop()
}

// Stop stops accepting events and waits for the queued ones to be published.
func (s *Service) Stop() {
	s.lock.Lock()
	if s.stopped {
		s.lock.Unlock()
		return
	}
	s.stopped = true
	close(s.queue)
	s.lock.Unlock()

	s.wg.Wait()
}

func (s *Service) publishLoop() {
	defer s.wg.Done()

	for e := range s.queue {
		message, err := json.Marshal(getEventPayload(e))
		if err != nil {
			log.WithError(err).Warnf("failed to encode %s event", e.Type)
			continue
		}
		if err := s.pubsub.Publish(e.Type, string(message)); err != nil {
			log.WithError(err).Warnf(
				"an error occured while publishing %s event for order %s",
				e.Type, e.OrderID,
			)
		}
	}
}

func isValidEvent(event string) bool {
	if event == ports.AnyTopic {
		return true
	}
	_, ok := webhookEvents[event]
	return ok
}

func getEventPayload(e events.Event) map[string]interface{} {
	ts := time.UnixMilli(e.Timestamp)
	payload := map[string]interface{}{
		"event":     e.Type,
		"seq":       e.Seq,
		"timestamp": e.Timestamp,
		"date":      ts.UTC().Format(time.RFC3339),
	}
	if e.OrderID != "" {
		payload["order_id"] = e.OrderID
	}
	if e.Data != nil {
		payload["data"] = e.Data
	}
	return payload
}
