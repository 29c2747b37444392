// Package metrics holds the Prometheus collectors shared across the service.
// Collectors register with the default registry and are exposed by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "splitledger"

var (
	// TransfersTotal counts wallet transfers and deposits by kind and final status.
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_transactions_total",
			Help:      "Wallet transactions by kind and status",
		},
		[]string{"kind", "status"},
	)

	// TransferredAmount sums the minor units moved by successful transfers.
	TransferredAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_transferred_minor_units_total",
			Help:      "Minor currency units moved between wallets",
		},
	)

	// PaymentTransitions counts payment workflow transitions by outcome.
	PaymentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_transitions_total",
			Help:      "External payment workflow transitions by transition and result",
		},
		[]string{"transition", "result"},
	)

	// EventsDelivered counts event deliveries per sink and result.
	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Event deliveries by sink and result",
		},
		[]string{"sink", "result"},
	)

	// EventsDropped counts events discarded because the queue was full or closed.
	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped before delivery",
		},
	)

	// RPCRequests counts Connect calls by procedure and code.
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Total number of RPC requests",
		},
		[]string{"procedure", "code"},
	)

	// RPCDuration observes Connect call latency.
	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "Duration of RPC requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"procedure"},
	)

	// HTTPRequests counts plain HTTP requests by method and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
