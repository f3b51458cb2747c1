package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xswap-network/xswapd/internal/core/application/events"
	"github.com/xswap-network/xswapd/internal/core/application/pubsub"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
)

var ctx = context.Background()

type mockSecurePubSub struct {
	mock.Mock
}

func (m *mockSecurePubSub) Subscribe(topic, endpoint, secret string) (string, error) {
	args := m.Called(topic, endpoint, secret)
	return args.String(0), args.Error(1)
}

func (m *mockSecurePubSub) Unsubscribe(topic, id string) error {
	return m.Called(topic, id).Error(0)
}

func (m *mockSecurePubSub) ListSubscriptionsForTopic(topic string) ([]ports.Subscription, error) {
	args := m.Called(topic)
	var subs []ports.Subscription
	if a := args.Get(0); a != nil {
		subs = a.([]ports.Subscription)
	}
	return subs, args.Error(1)
}

func (m *mockSecurePubSub) Publish(topic string, message string) error {
	return m.Called(topic, message).Error(0)
}

type subscription struct {
	id, topic, endpoint string
	secured             bool
}

func (s subscription) Topic() string    { return s.topic }
func (s subscription) Id() string       { return s.id }
func (s subscription) IsSecured() bool  { return s.secured }
func (s subscription) NotifyAt() string { return s.endpoint }

func TestAddWebhook(t *testing.T) {
	tests := []struct {
		name  string
		event string
		err   error
	}{
		{"swap settled", events.SwapSettled, nil},
		{"any event", ports.AnyTopic, nil},
		{"price update", events.PriceUpdate, domain.ErrValidation},
		{"unspecified", "", domain.ErrValidation},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			ps := &mockSecurePubSub{}
			ps.On("Subscribe", tt.event, "http://localhost", "").Return("id", nil)
			svc, err := pubsub.NewService(ps, 0)
			require.NoError(t, err)

			id, err := svc.AddWebhook(ctx, tt.event, "http://localhost", "")
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				ps.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "id", id)
		})
	}
}

func TestListAndRemoveWebhooks(t *testing.T) {
	ps := &mockSecurePubSub{}
	ps.On("ListSubscriptionsForTopic", "").Return([]ports.Subscription{
		subscription{"a", events.SwapSettled, "http://localhost/a", true},
		subscription{"b", ports.AnyTopic, "http://localhost/b", false},
	}, nil)
	ps.On("Unsubscribe", ports.UnspecifiedTopic, "a").Return(nil)

	svc, err := pubsub.NewService(ps, 0)
	require.NoError(t, err)

	hooks, err := svc.ListWebhooks(ctx, "")
	require.NoError(t, err)
	require.Len(t, hooks, 2)
	require.Equal(t, pubsub.WebhookInfo{
		ID: "a", Event: events.SwapSettled, Endpoint: "http://localhost/a", IsSecured: true,
	}, hooks[0])

	require.NoError(t, svc.RemoveWebhook(ctx, "a"))
	ps.AssertExpectations(t)
}

func TestDeliver(t *testing.T) {
	ps := &mockSecurePubSub{}
	var published []map[string]interface{}
	ps.On("Publish", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		payload := map[string]interface{}{}
		_ = json.Unmarshal([]byte(args.String(1)), &payload)
		published = append(published, payload)
	})

	svc, err := pubsub.NewService(ps, 0)
	require.NoError(t, err)
	svc.Start()

	hub := events.NewHub(10)
	hub.AddSink(svc)

	hub.Publish(events.New(events.PriceUpdate, "o1", nil))
	hub.Publish(events.NewDirect(events.SecretReleased, "o1", "r1", nil))
	hub.Publish(events.New(events.SwapSettled, "o1", events.SwapData{
		SwapID: "o1", Status: "settled",
	}))

	// Stop waits for the queue to be drained.
	svc.Stop()
	hub.Publish(events.New(events.SwapCancelled, "o2", nil))

	require.Len(t, published, 1)
	require.Equal(t, events.SwapSettled, published[0]["event"])
	require.Equal(t, "o1", published[0]["order_id"])
	require.EqualValues(t, 3, published[0]["seq"])
	ps.AssertNumberOfCalls(t, "Publish", 1)
}
