// Package metrics はゲートウェイのPrometheusメトリクスを提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はゲートウェイの全メトリクスを保持する。
type Metrics struct {
	// requestsTotal はルート・ステータス別のリクエスト数。
	requestsTotal *prometheus.CounterVec
	// requestDuration はルート別の処理時間。
	requestDuration *prometheus.HistogramVec
	// shortCircuits はフィルター段・ステータス別の遮断数。
	shortCircuits *prometheus.CounterVec
	// sessionLookups は結果別のセッション確認の所要時間。
	sessionLookups *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New は専用レジストリにメトリクスを登録したMetricsを生成する。
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of proxied requests by route and status",
			},
			[]string{"route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Request latency through the gateway in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		shortCircuits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_short_circuits_total",
				Help: "Total number of requests stopped by a filter stage",
			},
			[]string{"stage", "status"},
		),
		sessionLookups: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_session_lookup_duration_seconds",
				Help:    "Session store lookup latency by result",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 3},
			},
			[]string{"result"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.shortCircuits,
		m.sessionLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest はプロキシしたリクエストを記録する。
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveShortCircuit はフィルター段による遮断を記録する。
func (m *Metrics) ObserveShortCircuit(stage string, status int) {
	m.shortCircuits.WithLabelValues(stage, strconv.Itoa(status)).Inc()
}

// ObserveSessionLookup はセッション確認の結果を記録する。
func (m *Metrics) ObserveSessionLookup(result string, d time.Duration) {
	m.sessionLookups.WithLabelValues(result).Observe(d.Seconds())
}

// Handler はメトリクスを公開するHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry はメトリクスのレジストリを返す。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
