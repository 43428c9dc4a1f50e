// Package metrics exposes Prometheus metrics for contract calls, minted
// records and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wondertwin-ai/loyaltynft/internal/records"
)

const namespace = "loyaltynft"

// Metrics holds collectors registered on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	contractCalls    *prometheus.CounterVec
	contractDuration *prometheus.HistogramVec
	recordsSkipped   *prometheus.CounterVec
	recordsMinted    *prometheus.CounterVec
	rewardsMinted    prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates and registers the collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		contractCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "calls_total",
			Help:      "Contract calls by operation and result.",
		}, []string{"op", "result"}),
		contractDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "call_duration_seconds",
			Help:      "Contract call latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"op"}),
		recordsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "skipped_total",
			Help:      "Indexed records skipped while listing, by reason.",
		}, []string{"reason"}),
		recordsMinted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "minted_total",
			Help:      "Minted records by loyalty level.",
		}, []string{"level"}),
		rewardsMinted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "rewards_minted_total",
			Help:      "Reward points granted by minted records.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ContractCall implements records.Observer.
func (m *Metrics) ContractCall(op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.contractCalls.WithLabelValues(op, result).Inc()
	m.contractDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordSkipped implements records.Observer.
func (m *Metrics) RecordSkipped(reason string) {
	m.recordsSkipped.WithLabelValues(reason).Inc()
}

// RecordCreated implements records.Observer.
func (m *Metrics) RecordCreated(r records.Record) {
	m.recordsMinted.WithLabelValues(r.LoyaltyLevel.String()).Inc()
	m.rewardsMinted.Add(float64(r.Rewards))
}

// TrackRecords registers a gauge reporting the number of loaded records.
func (m *Metrics) TrackRecords(count func() int) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "records",
		Name:      "loaded",
		Help:      "Records in the current collection.",
	}, func() float64 { return float64(count()) }))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Middleware records request counts and latency labelled by chi route
// pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
