package gateway

import (
	"sync"

	"github.com/google/uuid"
)

// registry is the arena of connected resolvers, indexed by handle id. Reads
// take a snapshot so that broadcasts never hold the lock while writing.
type registry struct {
	lock    sync.RWMutex
	handles map[string]*handle
}

func newRegistry() *registry {
	return &registry{handles: make(map[string]*handle)}
}

func (r *registry) insert(h *handle) string {
	r.lock.Lock()
	defer r.lock.Unlock()

	h.id = uuid.New().String()
	r.handles[h.id] = h
	return h.id
}

func (r *registry) remove(id string) (*handle, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	h, ok := r.handles[id]
	if ok {
		delete(r.handles, id)
	}
	return h, ok
}

func (r *registry) get(id string) (*handle, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	h, ok := r.handles[id]
	return h, ok
}

// byResolver returns the handles of every connection of the given resolver.
func (r *registry) byResolver(resolverID string) []*handle {
	r.lock.RLock()
	defer r.lock.RUnlock()

	handles := make([]*handle, 0, 1)
	for _, h := range r.handles {
		if h.resolverID == resolverID {
			handles = append(handles, h)
		}
	}
	return handles
}

func (r *registry) snapshot() []*handle {
	r.lock.RLock()
	defer r.lock.RUnlock()

	handles := make([]*handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	return handles
}

func (r *registry) len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.handles)
}
