package pubsub

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/sony/gobreaker"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
	"github.com/xswap-network/xswapd/pkg/circuitbreaker"
	"golang.org/x/sync/errgroup"
)

const defaultRequestTimeout = 15 * time.Second

type service struct {
	repo       domain.WebhookRepository
	httpClient *client

	lock     sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewService returns a SecurePubSub notifying the webhooks stored in the
// given repository with HTTP POST requests.
func NewService(
	repo domain.WebhookRepository, requestTimeout time.Duration,
) (ports.SecurePubSub, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing webhook repository")
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return &service{
		repo:       repo,
		httpClient: newHTTPClient(requestTimeout),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}, nil
}

func (ws *service) Subscribe(topic, endpoint, secret string) (string, error) {
	hook, err := domain.NewWebhook(topic, endpoint, secret)
	if err != nil {
		return "", err
	}
	if err := ws.repo.AddWebhook(context.Background(), *hook); err != nil {
		return "", err
	}
	return hook.ID, nil
}

func (ws *service) Unsubscribe(_, id string) error {
	return ws.repo.RemoveWebhook(context.Background(), id)
}

func (ws *service) ListSubscriptionsForTopic(topic string) ([]ports.Subscription, error) {
	subs, err := ws.listSubscriptionsForTopic(topic)
	if err != nil {
		return nil, err
	}
	return subs.toPortable(), nil
}

func (ws *service) Publish(topic string, message string) error {
	return ws.publishForTopic(topic, message)
}

func (ws *service) listSubscriptionsForTopic(topic string) (subscriptions, error) {
	subs, err := ws.getSubscriptionsForTopic(topic)
	if err != nil {
		return nil, err
	}
	if topic != ports.AnyTopic && topic != ports.UnspecifiedTopic {
		subsForAnyTopic, err := ws.getSubscriptionsForTopic(ports.AnyTopic)
		if err != nil {
			return nil, err
		}
		subs = append(subs, subsForAnyTopic...)
	}
	return subs, nil
}

func (ws *service) getSubscriptionsForTopic(topic string) (subscriptions, error) {
	hooks, err := ws.repo.GetWebhooksForEvent(context.Background(), topic)
	if err != nil {
		return nil, err
	}
	subs := make(subscriptions, 0, len(hooks))
	for _, hook := range hooks {
		subs = append(subs, Subscription{hook})
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}

func (ws *service) publishForTopic(topic, message string) error {
	subs, err := ws.listSubscriptionsForTopic(topic)
	if err != nil {
		return err
	}

	ctx := context.Background()
	eg := &errgroup.Group{}
	for i := range subs {
		sub := subs[i]
		eg.Go(func() error { return ws.doRequest(ctx, sub, message) })
	}
	return eg.Wait()
}

// breaker returns the circuit breaker of the given endpoint, so that an
// unreachable endpoint doesn't stop the deliveries to the others.
func (ws *service) breaker(endpoint string) *gobreaker.CircuitBreaker {
	ws.lock.Lock()
	defer ws.lock.Unlock()

	cb, ok := ws.breakers[endpoint]
	if !ok {
		cb = circuitbreaker.NewCircuitBreaker(fmt.Sprintf("webhook %s", endpoint))
		ws.breakers[endpoint] = cb
	}
	return cb
}

func (ws *service) doRequest(
	ctx context.Context, sub Subscription, payload string,
) error {
	_, err := ws.breaker(sub.Endpoint).Execute(func() (interface{}, error) {
		headers := map[string]string{
			"Content-Type": "application/json",
		}
		if sub.IsSecured() {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
				IssuedAt: time.Now().Unix(),
				Subject:  sub.Event,
			})
			tokenString, err := token.SignedString([]byte(sub.Secret))
			if err != nil {
				return nil, err
			}
			headers["Authorization"] = fmt.Sprintf("Bearer %s", tokenString)
		}

		status, resp, err := ws.httpClient.post(ctx, sub.Endpoint, payload, headers)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("webhook %s responded with status %d: %s", sub.ID, status, resp)
		}
		return nil, nil
	})

	return err
}
