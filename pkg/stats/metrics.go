package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xswap",
		Name:      "orders_submitted_total",
		Help:      "Number of orders accepted into the auction.",
	})
	OrdersByOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xswap",
		Name:      "orders_closed_total",
		Help:      "Number of orders leaving the auction, by outcome.",
	}, []string{"outcome"})
	BidsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xswap",
		Name:      "bids_received_total",
		Help:      "Number of valid bids received.",
	})
	BidsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xswap",
		Name:      "bids_rejected_total",
		Help:      "Number of rejected bids, by reason.",
	}, []string{"reason"})
	SwapsByStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xswap",
		Name:      "swap_transitions_total",
		Help:      "Number of swap state transitions, by target status.",
	}, []string{"status"})
	SwapAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xswap",
		Name:      "swap_alerts_total",
		Help:      "Number of liveness alerts raised for swaps.",
	})
	ConnectedResolvers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "xswap",
		Name:      "connected_resolvers",
		Help:      "Number of resolver connections currently open.",
	})
	ResolversEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xswap",
		Name:      "resolvers_evicted_total",
		Help:      "Number of resolver connections evicted, by reason.",
	}, []string{"reason"})
	ChainCallRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xswap",
		Name:      "chain_call_retries_total",
		Help:      "Number of retried chain calls, by operation.",
	}, []string{"op"})
)
