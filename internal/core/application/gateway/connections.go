package gateway

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/pkg/stats"
)

// Connect registers a resolver connection and returns its handle id. If
// since is not nil, the retained events following that sequence number are
// replayed before any new one.
func (s *Service) Connect(
	resolverID string, conn ResolverConn, since *uint64,
) (string, error) {
	if resolverID == "" {
		return "", &domain.ValidationError{Field: "resolver_id", Reason: "missing"}
	}
	select {
	case <-s.ctx.Done():
		return "", ErrServiceUnavailable
	default:
	}

	queueSize := s.cfg.OutboundQueueSize
	h := newHandle(resolverID, conn, queueSize, newLimiter(s.cfg.MessageRate))
	h.overflow = func(h *handle) {
		go s.evict(h.id, "slow_consumer")
	}
	id := s.registry.insert(h)

	if since != nil {
		replayed := s.hub.SubscribeSince(*since, h)
		log.Debugf("replayed %d events to resolver %s", replayed, resolverID)
	} else {
		s.hub.AddSink(h)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		h.writeLoop(func(err error) {
			log.WithError(err).Debugf("write to resolver %s failed", resolverID)
			go s.evict(id, "write_error")
		})
	}()

	stats.ConnectedResolvers.Set(float64(s.registry.len()))
	log.WithField("resolver", resolverID).Infof("resolver connected (%s)", id)
	return id, nil
}

// Disconnect closes the connection with the given handle id.
func (s *Service) Disconnect(id string) {
	s.evict(id, "disconnect")
}

// Touch marks the connection as alive.
func (s *Service) Touch(id string) error {
	h, ok := s.registry.get(id)
	if !ok {
		return ErrConnectionNotFound
	}
	h.touch()
	return nil
}

// Allow reports whether the connection can submit another message now. Every
// inbound message counts as a liveness signal.
func (s *Service) Allow(id string) error {
	h, ok := s.registry.get(id)
	if !ok {
		return ErrConnectionNotFound
	}
	h.touch()
	if !h.limiter.Allow() {
		return ErrRateLimited
	}
	return nil
}

// ResolverOf returns the resolver identity bound to the connection.
func (s *Service) ResolverOf(id string) (string, error) {
	h, ok := s.registry.get(id)
	if !ok {
		return "", ErrConnectionNotFound
	}
	return h.resolverID, nil
}

// ConnectedResolvers returns the number of open resolver connections.
func (s *Service) ConnectedResolvers() int {
	return s.registry.len()
}

func (s *Service) heartbeat() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			for _, h := range s.registry.snapshot() {
				if h.idleFor() > s.cfg.LivenessTimeout {
					s.evict(h.id, "liveness")
					continue
				}
				h.ping()
			}
		}
	}
}

// evict removes the connection from the registry and closes it. If it was
// the last connection of its resolver, the pending bids of the resolver are
// discarded.
func (s *Service) evict(id, reason string) {
	h, ok := s.registry.remove(id)
	if !ok {
		return
	}
	s.hub.RemoveSink(h)
	h.close()

	stats.ConnectedResolvers.Set(float64(s.registry.len()))
	stats.ResolversEvicted.WithLabelValues(reason).Inc()

	if len(s.registry.byResolver(h.resolverID)) > 0 {
		return
	}
	discarded := 0
	for _, entry := range s.book.all() {
		if entry.removeBidsOf(h.resolverID) {
			discarded++
		}
	}
	log.WithField("resolver", h.resolverID).Infof(
		"connection %s closed (%s), %d pending bids discarded",
		id, reason, discarded,
	)
}
