// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var HTTPRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	},
	[]string{"route", "status", "method"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route", "method"},
)

var HTTPRateLimitRejectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "http_rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter",
	},
)

// DeviceControlCallsTotal counts device-control gateway calls by operation
// (start, stop, activate_camera) and outcome (ok, error).
var DeviceControlCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "device_control_calls_total",
		Help: "Total number of device-control gateway calls",
	},
	[]string{"operation", "outcome"},
)

var ExternalAPIDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "external_api_duration_seconds",
		Help:    "Duration of external API calls in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider", "service"},
)

var PushMessagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "push_messages_total",
		Help: "Push messages handed to the push gateway by outcome",
	},
	[]string{"outcome"},
)

// NotificationsRecordedTotal counts persisted notifications by ingestion
// source (http, amqp, mqtt).
var NotificationsRecordedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_recorded_total",
		Help: "Total number of notifications persisted",
	},
	[]string{"source"},
)

var BrokerPublishFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "broker_publish_failures_total",
		Help: "Total number of failed broker publishes",
	},
	[]string{"queue"},
)

var LiveClients = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "live_clients",
		Help: "Currently connected live websocket clients",
	},
)

// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
var CircuitBreakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current circuit breaker state by name",
	},
	[]string{"name"},
)

var once sync.Once

// Init registers every collector with the default registry.  Safe to call
// more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRateLimitRejectionsTotal,
			DeviceControlCallsTotal,
			ExternalAPIDuration,
			PushMessagesTotal,
			NotificationsRecordedTotal,
			BrokerPublishFailuresTotal,
			LiveClients,
			CircuitBreakerState,
		)
	})
}
