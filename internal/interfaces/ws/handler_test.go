package wsinterface_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xswap-network/xswapd/internal/core/application/events"
	"github.com/xswap-network/xswapd/internal/core/application/gateway"
	"github.com/xswap-network/xswapd/internal/core/domain"
	wsinterface "github.com/xswap-network/xswapd/internal/interfaces/ws"
)

type fakeGateway struct {
	lock         sync.Mutex
	conn         gateway.ResolverConn
	resolverID   string
	since        *uint64
	disconnected bool
	limited      bool
}

func (g *fakeGateway) Connect(
	resolverID string, conn gateway.ResolverConn, since *uint64,
) (string, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.conn, g.resolverID, g.since = conn, resolverID, since
	return "conn-1", nil
}

func (g *fakeGateway) Disconnect(string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.disconnected = true
}

func (g *fakeGateway) Touch(string) error { return nil }

func (g *fakeGateway) Allow(string) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.limited {
		return gateway.ErrRateLimited
	}
	return nil
}

func (g *fakeGateway) ResolverOf(string) (string, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.resolverID, nil
}

func (g *fakeGateway) SubmitBid(
	_ context.Context, orderID, resolverID string, price decimal.Decimal,
) (*domain.ResolverBid, error) {
	if orderID != "order" {
		return nil, domain.ErrOrderNotFound
	}
	return &domain.ResolverBid{
		OrderID:    orderID,
		ResolverID: resolverID,
		Price:      price,
		Timestamp:  time.Now(),
	}, nil
}

func (g *fakeGateway) connected() gateway.ResolverConn {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.conn
}

func (g *fakeGateway) isDisconnected() bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.disconnected
}

func dial(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestHandler(t *testing.T) {
	gw := &fakeGateway{}
	srv := httptest.NewServer(wsinterface.NewHandler(gw, time.Second))
	defer srv.Close()

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name  string
			query string
		}{
			{"missing resolver id", "since=1"},
			{"invalid since", "resolverId=r1&since=abc"},
		}
		for i := range tests {
			tt := tests[i]
			t.Run(tt.name, func(t *testing.T) {
				_, resp, err := dial(t, srv, tt.query)
				require.Error(t, err)
				require.NotNil(t, resp)
				require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			})
		}
	})

	t.Run("valid", func(t *testing.T) {
		ws, _, err := dial(t, srv, "resolverId=r1&since=7")
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return gw.connected() != nil
		}, time.Second, 10*time.Millisecond)
		gw.lock.Lock()
		require.Equal(t, "r1", gw.resolverID)
		require.NotNil(t, gw.since)
		require.Equal(t, uint64(7), *gw.since)
		gw.lock.Unlock()

		e := events.New(events.OrderCreated, "order", nil)
		require.NoError(t, gw.connected().Send(e))
		var got events.Event
		require.NoError(t, ws.ReadJSON(&got))
		require.Equal(t, events.OrderCreated, got.Type)
		require.Equal(t, "order", got.OrderID)

		tests := []struct {
			name         string
			msg          wsinterface.Message
			expectedType string
		}{
			{
				name:         "bid",
				msg:          wsinterface.Message{ID: "1", Type: wsinterface.MsgBid, OrderID: "order", Price: "100"},
				expectedType: wsinterface.MsgAck,
			},
			{
				name:         "ping",
				msg:          wsinterface.Message{ID: "2", Type: wsinterface.MsgPing},
				expectedType: wsinterface.MsgAck,
			},
			{
				name:         "unknown order",
				msg:          wsinterface.Message{ID: "3", Type: wsinterface.MsgBid, OrderID: "other", Price: "100"},
				expectedType: wsinterface.MsgError,
			},
			{
				name:         "invalid price",
				msg:          wsinterface.Message{ID: "4", Type: wsinterface.MsgBid, OrderID: "order", Price: "abc"},
				expectedType: wsinterface.MsgError,
			},
			{
				name:         "unknown type",
				msg:          wsinterface.Message{ID: "5", Type: "dance"},
				expectedType: wsinterface.MsgError,
			},
		}
		for i := range tests {
			tt := tests[i]
			t.Run(tt.name, func(t *testing.T) {
				require.NoError(t, ws.WriteJSON(tt.msg))
				var reply wsinterface.Reply
				require.NoError(t, ws.ReadJSON(&reply))
				require.Equal(t, tt.msg.ID, reply.Ref)
				require.Equal(t, tt.expectedType, reply.Type)
			})
		}

		gw.lock.Lock()
		gw.limited = true
		gw.lock.Unlock()
		require.NoError(t, ws.WriteJSON(wsinterface.Message{ID: "6", Type: wsinterface.MsgPing}))
		var reply wsinterface.Reply
		require.NoError(t, ws.ReadJSON(&reply))
		require.Equal(t, wsinterface.MsgError, reply.Type)
		require.Equal(t, gateway.ErrRateLimited.Error(), reply.Error)

		ws.Close()
		require.Eventually(t, gw.isDisconnected, time.Second, 10*time.Millisecond)
	})
}
