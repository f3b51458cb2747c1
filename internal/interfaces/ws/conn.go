package wsinterface

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xswap-network/xswapd/internal/core/application/events"
)

// conn adapts a websocket connection to gateway.ResolverConn. Writes of
// events and of replies to inbound messages are serialized.
type conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	writeLock    sync.Mutex
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *conn {
	return &conn{ws: ws, writeTimeout: writeTimeout}
}

func (c *conn) Send(e events.Event) error {
	return c.writeJSON(e)
}

func (c *conn) Ping() error {
	return c.ws.WriteControl(
		websocket.PingMessage, nil, time.Now().Add(c.writeTimeout),
	)
}

func (c *conn) Close() error {
	//nolint
	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout),
	)
	return c.ws.Close()
}

func (c *conn) writeJSON(v interface{}) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}
