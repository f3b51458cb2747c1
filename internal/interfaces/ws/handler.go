// Package wsinterface serves the websocket endpoint through which resolvers
// receive the event stream and submit their bids.
package wsinterface

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/core/application/gateway"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

const (
	MsgBid   = "bid"
	MsgPing  = "ping"
	MsgAck   = "ack"
	MsgError = "error"

	defaultWriteTimeout = 10 * time.Second
	maxMessageSize      = 4096
)

// Gateway is the part of the resolver gateway used by the endpoint.
type Gateway interface {
	Connect(resolverID string, conn gateway.ResolverConn, since *uint64) (string, error)
	Disconnect(id string)
	Touch(id string) error
	Allow(id string) error
	ResolverOf(id string) (string, error)
	SubmitBid(
		ctx context.Context, orderID, resolverID string, price decimal.Decimal,
	) (*domain.ResolverBid, error)
}

// Message is an inbound message of a resolver.
type Message struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	OrderID string `json:"orderId,omitempty"`
	Price   string `json:"price,omitempty"`
}

// Reply answers an inbound message.
type Reply struct {
	Ref     string      `json:"ref,omitempty"`
	Type    string      `json:"type"`
	OrderID string      `json:"orderId,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type handler struct {
	gateway      Gateway
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

// NewHandler returns the http handler upgrading resolver connections. The
// resolver id is read from the resolverId query param. A since param makes
// the gateway replay the events published after that sequence number.
func NewHandler(gw Gateway, writeTimeout time.Duration) http.Handler {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &handler{
		gateway: gw,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resolverID := query.Get("resolverId")
	if resolverID == "" {
		http.Error(w, "missing resolverId", http.StatusBadRequest)
		return
	}
	var since *uint64
	if s := query.Get("since"); s != "" {
		seq, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = &seq
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(maxMessageSize)

	c := newConn(ws, h.writeTimeout)
	id, err := h.gateway.Connect(resolverID, c, since)
	if err != nil {
		//nolint
		c.writeJSON(Reply{Type: MsgError, Error: err.Error()})
		c.Close()
		return
	}
	ws.SetPongHandler(func(string) error {
		//nolint
		h.gateway.Touch(id)
		return nil
	})

	log.WithField("resolver", resolverID).Debugf("connection %s opened", id)
	h.readLoop(r.Context(), id, c)
}

func (h *handler) readLoop(ctx context.Context, id string, c *conn) {
	defer h.gateway.Disconnect(id)

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(
				err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
			) {
				log.WithError(err).Debugf("connection %s dropped", id)
			}
			return
		}

		reply := h.handleMessage(ctx, id, msg)
		if err := c.writeJSON(reply); err != nil {
			log.WithError(err).Debugf("failed to reply on connection %s", id)
			return
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, id string, msg Message) Reply {
	reply := Reply{Ref: msg.ID, Type: MsgAck, OrderID: msg.OrderID}
	fail := func(err error) Reply {
		reply.Type, reply.Error = MsgError, err.Error()
		return reply
	}

	if err := h.gateway.Allow(id); err != nil {
		return fail(err)
	}

	switch msg.Type {
	case MsgPing:
		return reply
	case MsgBid:
		resolverID, err := h.gateway.ResolverOf(id)
		if err != nil {
			return fail(err)
		}
		price, err := decimal.NewFromString(msg.Price)
		if err != nil {
			return fail(&domain.ValidationError{Field: "price", Reason: "invalid number"})
		}
		bid, err := h.gateway.SubmitBid(ctx, msg.OrderID, resolverID, price)
		if err != nil {
			return fail(err)
		}
		reply.Data = map[string]interface{}{
			"resolverId": bid.ResolverID,
			"price":      bid.Price.String(),
			"timestamp":  bid.Timestamp.UnixMilli(),
		}
		return reply
	default:
		return fail(errors.New("unknown message type"))
	}
}
