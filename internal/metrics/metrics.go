// Package metrics exposes Prometheus collectors for the liquidity monitor.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	monitorCyclesTotal            *prometheus.CounterVec
	monitorFetchTotal             *prometheus.CounterVec
	monitorFetchDurationSeconds   *prometheus.HistogramVec
	monitorDisagreementsTotal     prometheus.Counter
	monitorAlertsTotal            *prometheus.CounterVec
	monitorChannelSendsTotal      *prometheus.CounterVec
	monitorConsecutiveFailures    prometheus.Gauge
	monitorPersistenceErrorsTotal prometheus.Counter
	monitorRateLimitDelaySeconds  *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		monitorCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liquidity_monitor_cycles_total",
				Help: "Total number of polling cycles, labeled by consensus verdict.",
			},
			[]string{"verdict"},
		)

		monitorFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liquidity_monitor_fetch_total",
				Help: "Total number of page fetches, labeled by method and outcome.",
			},
			[]string{"method", "outcome"},
		)

		monitorFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "liquidity_monitor_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by method.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"method"},
		)

		monitorDisagreementsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "liquidity_monitor_disagreements_total",
				Help: "Total number of cycles where the fetch methods disagreed.",
			},
		)

		monitorAlertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liquidity_monitor_alerts_total",
				Help: "Total number of dispatched notifications, labeled by kind.",
			},
			[]string{"kind"},
		)

		monitorChannelSendsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liquidity_monitor_channel_sends_total",
				Help: "Total number of channel send attempts, labeled by channel and outcome.",
			},
			[]string{"channel", "outcome"},
		)

		monitorConsecutiveFailures = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "liquidity_monitor_consecutive_failures",
				Help: "Number of consecutive cycles without a usable observation.",
			},
		)

		monitorPersistenceErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "liquidity_monitor_persistence_errors_total",
				Help: "Total number of cycles whose record step failed to persist.",
			},
		)

		monitorRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "liquidity_monitor_rate_limit_delay_seconds",
				Help:    "Histogram of waits imposed by the fetch rate limiter, labeled by host.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveCycle counts a completed cycle and updates the failure gauge.
func ObserveCycle(verdict string, consecutiveFailures int, agreement bool) {
	Init()
	monitorCyclesTotal.WithLabelValues(verdict).Inc()
	monitorConsecutiveFailures.Set(float64(consecutiveFailures))
	if !agreement {
		monitorDisagreementsTotal.Inc()
	}
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(method string, err error, duration time.Duration) {
	Init()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	monitorFetchTotal.WithLabelValues(method, outcome).Inc()
	monitorFetchDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveAlert counts a dispatched notification of the given kind.
func ObserveAlert(kind string) {
	Init()
	monitorAlertsTotal.WithLabelValues(kind).Inc()
}

// ObserveChannelSend records the outcome of one channel send.
func ObserveChannelSend(channel string, ok bool) {
	Init()
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	monitorChannelSendsTotal.WithLabelValues(channel, outcome).Inc()
}

// ObservePersistenceError counts a failed record step.
func ObservePersistenceError() {
	Init()
	monitorPersistenceErrorsTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a fetch waited for a rate-limit token.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	monitorRateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}
