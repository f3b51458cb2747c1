package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/core/application/events"
	"golang.org/x/time/rate"
)

// ResolverConn is the transport of one resolver connection. Send and Ping
// may block on I/O and are never called concurrently.
type ResolverConn interface {
	Send(e events.Event) error
	Ping() error
	Close() error
}

// handle is the gateway side of a resolver connection. Outbound events are
// queued and written by a dedicated goroutine, so that a slow resolver never
// stalls the others.
type handle struct {
	lastSeen   int64
	id         string
	resolverID string
	conn       ResolverConn
	queue      chan events.Event
	pings      chan struct{}
	limiter    *rate.Limiter
	overflow   func(h *handle)
	closeOnce  sync.Once
	done       chan struct{}
}

func newHandle(
	resolverID string, conn ResolverConn, queueSize int, limiter *rate.Limiter,
) *handle {
	return &handle{
		resolverID: resolverID,
		conn:       conn,
		queue:      make(chan events.Event, queueSize),
		pings:      make(chan struct{}, 1),
		limiter:    limiter,
		lastSeen:   time.Now().UnixNano(),
		done:       make(chan struct{}),
	}
}

// enqueue adds the event to the outbound queue without blocking. It returns
// false if the queue is full or the handle is closed.
func (h *handle) enqueue(e events.Event) bool {
	if h.isClosed() {
		return false
	}
	select {
	case h.queue <- e:
		return true
	default:
		return false
	}
}

// Deliver makes the handle an event sink of the hub. Private events of other
// resolvers are skipped. A resolver whose queue is full is considered too
// slow and is handed to the overflow callback.
func (h *handle) Deliver(e events.Event) {
	if e.IsPrivate() && e.To != h.resolverID {
		return
	}
	if !h.enqueue(e) && !h.isClosed() && h.overflow != nil {
		h.overflow(h)
	}
}

// ping schedules a liveness probe, unless one is already pending.
func (h *handle) ping() {
	select {
	case h.pings <- struct{}{}:
	default:
	}
}

func (h *handle) touch() {
	atomic.StoreInt64(&h.lastSeen, time.Now().UnixNano())
}

func (h *handle) idleFor() time.Duration {
	return time.Duration(time.Now().UnixNano() - atomic.LoadInt64(&h.lastSeen))
}

func (h *handle) isClosed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// writeLoop sends queued events and pings until the handle is closed or a
// write fails.
func (h *handle) writeLoop(onError func(error)) {
	for {
		select {
		case <-h.done:
			return
		case <-h.pings:
			if err := h.conn.Ping(); err != nil {
				onError(err)
				return
			}
		case e := <-h.queue:
			if err := h.conn.Send(e); err != nil {
				onError(err)
				return
			}
		}
	}
}

func (h *handle) close() {
	h.closeOnce.Do(func() {
		close(h.done)
		if err := h.conn.Close(); err != nil {
			log.WithError(err).Debugf("error while closing connection %s", h.id)
		}
	})
}
