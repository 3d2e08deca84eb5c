package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	APIRequests      *prometheus.CounterVec
	APILatency       *prometheus.HistogramVec
	LogFetches       *prometheus.CounterVec
	StaleResponses   prometheus.Counter
	PollTicks        prometheus.Counter
	ActiveBrowsers   prometheus.Gauge
	Logins           *prometheus.CounterVec
	ServerRegistered prometheus.Counter
	ServerRemoved    prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		APIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "email_monitor_api_requests_total",
			Help: "Total number of backend API requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		APILatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "email_monitor_api_request_duration_seconds",
			Help:    "Time spent waiting on backend API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		LogFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "email_monitor_log_fetches_total",
			Help: "Log browser record fetches by trigger and result",
		}, []string{"trigger", "result"}),
		StaleResponses: factory.NewCounter(prometheus.CounterOpts{
			Name: "email_monitor_log_fetch_stale_total",
			Help: "Log fetch responses discarded because a newer fetch was issued",
		}),
		PollTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "email_monitor_poll_ticks_total",
			Help: "Auto-refresh poll ticks fired",
		}),
		ActiveBrowsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "email_monitor_active_log_browsers",
			Help: "Number of currently mounted log browsers",
		}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "email_monitor_logins_total",
			Help: "Operator login attempts by result",
		}, []string{"result"}),
		ServerRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "email_monitor_servers_registered_total",
			Help: "Mail servers registered through the dashboard",
		}),
		ServerRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "email_monitor_servers_removed_total",
			Help: "Mail servers removed through the dashboard",
		}),
	}
}
