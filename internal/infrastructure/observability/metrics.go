package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Settlement metrics
	SettlementsTotal   *prometheus.CounterVec // kind, outcome, path (webhook|poll)
	SettlementDuration *prometheus.HistogramVec
	OrdersCreated      *prometheus.CounterVec // kind
	OrdersClosed       *prometheus.CounterVec // reason (explicit|expired)
	OrdersRefunded     prometheus.Counter

	// Notification metrics
	NotificationsTotal        *prometheus.CounterVec // result (ok|bad_signature|bad_serial|decrypt_failed|unknown_order)
	NotificationVerifyFailure prometheus.Counter

	// Gateway metrics
	GatewayRequestsTotal   *prometheus.CounterVec // op, result (ok|gateway_error|network_error)
	GatewayRequestDuration *prometheus.HistogramVec
	CircuitBreakerState    *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Worker metrics
	SweepOrdersProcessed *prometheus.CounterVec // action (closed|reconciled|skipped)
	OutboxPublished      *prometheus.CounterVec // status (ok|failed)
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		SettlementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlements_total",
				Help:      "Settlement attempts by order kind, outcome, and entry path",
			},
			[]string{"kind", "outcome", "path"},
		),
		SettlementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "settlement_duration_seconds",
				Help:      "Settlement transaction duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"kind"},
		),
		OrdersCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_created_total",
				Help:      "Payment orders created by kind",
			},
			[]string{"kind"},
		),
		OrdersClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_closed_total",
				Help:      "Payment orders closed by reason",
			},
			[]string{"reason"},
		),
		OrdersRefunded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_refunded_total",
				Help:      "Payment orders refunded",
			},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Inbound payment notifications by processing result",
			},
			[]string{"result"},
		),
		NotificationVerifyFailure: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_verify_failures_total",
				Help:      "Notifications rejected before processing due to signature or serial mismatch",
			},
		),
		GatewayRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Outbound gateway requests by operation and result",
			},
			[]string{"op", "result"},
		),
		GatewayRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Outbound gateway request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"op"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SweepOrdersProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_orders_processed_total",
				Help:      "Orders handled by the worker sweep by action",
			},
			[]string{"action"},
		),
		OutboxPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "Outbox entries published to the settlement event stream",
			},
			[]string{"status"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.SettlementsTotal,
		m.SettlementDuration,
		m.OrdersCreated,
		m.OrdersClosed,
		m.OrdersRefunded,
		m.NotificationsTotal,
		m.NotificationVerifyFailure,
		m.GatewayRequestsTotal,
		m.GatewayRequestDuration,
		m.CircuitBreakerState,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SweepOrdersProcessed,
		m.OutboxPublished,
	)

	return m
}
