package events

import (
	"sync"
)

// Sink receives every event published on the hub. Deliver must not block.
type Sink interface {
	Deliver(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

func (f SinkFunc) Deliver(e Event) {
	f(e)
}

// Hub sequences events, keeps the most recent ones for replay and fans them
// out to the registered sinks in sequence order.
type Hub struct {
	lock  sync.Mutex
	seq   uint64
	ring  []Event
	next  int
	full  bool
	sinks []Sink
}

// NewHub returns a hub keeping the last replaySize events.
func NewHub(replaySize int) *Hub {
	if replaySize <= 0 {
		replaySize = 1
	}
	return &Hub{ring: make([]Event, replaySize)}
}

// AddSink registers a sink for all future events.
func (h *Hub) AddSink(s Sink) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.sinks = append(h.sinks, s)
}

// Publish assigns the next sequence number to the event, records it and
// delivers it to every sink.
func (h *Hub) Publish(e Event) Event {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.seq++
	e.Seq = h.seq
	h.ring[h.next] = e
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}

	for _, s := range h.sinks {
		s.Deliver(e)
	}
	return e
}

// LastSeq returns the sequence number of the latest published event.
func (h *Hub) LastSeq() uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.seq
}

// Since returns the retained events with sequence number greater than seq,
// oldest first. Events older than the replay window are lost.
func (h *Hub) Since(seq uint64) []Event {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.since(seq)
}

// SubscribeSince delivers to the sink the retained events after seq and
// registers it for the future ones. Both happen atomically, so the sink sees
// every event in order without gaps or duplicates. It returns the number of
// replayed events.
func (h *Hub) SubscribeSince(seq uint64, s Sink) int {
	h.lock.Lock()
	defer h.lock.Unlock()

	missed := h.since(seq)
	for _, e := range missed {
		s.Deliver(e)
	}
	h.sinks = append(h.sinks, s)
	return len(missed)
}

// RemoveSink unregisters the given sink, that must be of a comparable type.
func (h *Hub) RemoveSink(s Sink) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for i, sink := range h.sinks {
		if sink == s {
			h.sinks = append(h.sinks[:i], h.sinks[i+1:]...)
			return
		}
	}
}

func (h *Hub) since(seq uint64) []Event {
	ordered := h.ring[:h.next]
	if h.full {
		ordered = append(append([]Event{}, h.ring[h.next:]...), h.ring[:h.next]...)
	}
	missed := make([]Event, 0)
	for _, e := range ordered {
		if e.Seq > seq {
			missed = append(missed, e)
		}
	}
	return missed
}
