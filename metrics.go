package livetiming

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "livetiming"

type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	captures        *prometheus.CounterVec
	undos           *prometheus.CounterVec
	changes         *prometheus.CounterVec
	laggedFeeds     prometheus.Counter
	liveConnections prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),

		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_transitions_total",
			Help:      "Session transitions by transition and result.",
		}, []string{"transition", "result"}),

		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lap_captures_total",
			Help:      "Lap capture attempts by result.",
		}, []string{"result"}),

		undos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lap_undos_total",
			Help:      "Lap undo attempts by result.",
		}, []string{"result"}),

		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "view_changes_total",
			Help:      "Changes merged into the server's view by table and kind.",
		}, []string{"table", "kind"}),

		laggedFeeds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "feed_lagged_subscribers_total",
			Help:      "Subscribers dropped for falling behind the change feed.",
		}),

		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "live_connections",
			Help:      "Open live websocket connections.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.transitions,
		m.captures,
		m.undos,
		m.changes,
		m.laggedFeeds,
		m.liveConnections,
		prometheus.NewGoCollector(),
	)

	return m
}

// RegisterGauge adds a gauge whose value is read on every scrape.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency against the matched route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"

		if rctx := chi.RouteContext(r.Context()); rctx != nil && len(rctx.RoutePatterns) > 0 {
			route = strings.Replace(strings.Join(rctx.RoutePatterns, ""), "/*/", "/", -1)
		}

		status := ww.Status()

		if status == 0 {
			status = http.StatusOK
		}

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}

	return errorCode(err)
}
