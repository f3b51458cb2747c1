package httpinterface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	interfaces "github.com/xswap-network/xswapd/internal/interfaces"
)

const shutdownTimeout = 10 * time.Second

type ServiceOpts struct {
	Address       string
	EnableMetrics bool

	GatewaySvc    GatewayService
	SettlementSvc SettlementService
	WebhookSvc    WebhookService
	// ResolverHandler serves the resolver websocket endpoint, if not nil.
	ResolverHandler http.Handler
}

func (o ServiceOpts) validate() error {
	if o.Address == "" {
		return fmt.Errorf("missing listening address")
	}
	if o.GatewaySvc == nil {
		return fmt.Errorf("missing gateway service")
	}
	if o.SettlementSvc == nil {
		return fmt.Errorf("missing settlement service")
	}
	if o.WebhookSvc == nil {
		return fmt.Errorf("missing webhook service")
	}
	return nil
}

type service struct {
	server *http.Server
}

// NewService returns the REST interface of the daemon, serving the order,
// swap and webhook endpoints along with the resolver websocket.
func NewService(opts ServiceOpts) (interfaces.Service, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &service{
		server: &http.Server{
			Addr:              opts.Address,
			Handler:           NewRouter(opts),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *service) Start() error {
	errC := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	select {
	case err := <-errC:
		return err
	case <-time.After(100 * time.Millisecond):
	}

	log.Infof("http interface listening on %s", s.server.Addr)
	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("error while shutting down http interface")
		return
	}
	log.Debug("disabled http interface")
}

// NewRouter returns the router of the REST interface.
func NewRouter(opts ServiceOpts) http.Handler {
	h := &handler{
		gatewaySvc:    opts.GatewaySvc,
		settlementSvc: opts.SettlementSvc,
		webhookSvc:    opts.WebhookSvc,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	if opts.ResolverHandler != nil {
		r.Handle("/resolvers/ws", opts.ResolverHandler)
	}

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.submitOrder)
		r.Get("/", h.listOrders)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Get("/quote", h.getQuote)
			r.Get("/bids", h.listBids)
			r.Post("/bids", h.submitBid)
			r.Post("/accept", h.acceptBid)
			r.Post("/cancel", h.cancelOrder)
		})
	})
	r.Route("/swaps", func(r chi.Router) {
		r.Get("/", h.listSwaps)
		r.Get("/{swapID}", h.getSwap)
	})
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/", h.addWebhook)
		r.Get("/", h.listWebhooks)
		r.Delete("/{webhookID}", h.removeWebhook)
	})

	return r
}
