package muxhandlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
)

// unmatchedRoute is the route label of requests that reached the middleware
// without a matched route in the State.
const unmatchedRoute = "unmatched"

// HTTPMetrics holds the request collectors updated by MetricsMiddleware. It
// implements prometheus.Collector.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// NewHTTPMetrics creates request collectors under the given namespace with
// the "http" subsystem. Register the result on a prometheus.Registerer.
func NewHTTPMetrics(namespace string) *HTTPMetrics {
	return &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of handled requests.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time spent in the pipeline and handler.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of requests currently being handled.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requests.Describe(ch)
	m.duration.Describe(ch)
	m.inflight.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requests.Collect(ch)
	m.duration.Collect(ch)
	m.inflight.Collect(ch)
}

// MetricsMiddleware returns a middleware that records request count, latency
// and in-flight requests in m. Requests are labelled by route pattern rather
// than raw path to keep label cardinality bounded.
func MetricsMiddleware(m *HTTPMetrics) mux.Middleware {
	return mux.MiddlewareFunc(func(s *state.State, r *http.Request, next mux.Next) (*state.State, *mux.Response, error) {
		m.inflight.Inc()
		defer m.inflight.Dec()

		start := time.Now()
		s, resp, err := next(s, r)
		elapsed := time.Since(start)

		status := responseStatus(resp, err)

		route := unmatchedRoute
		if s != nil && !s.Detached() {
			if rt := mux.CurrentRoute(s); rt != nil {
				route = rt.Pattern()
			}
		}

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		return s, resp, err
	})
}

// responseStatus is the status the router will send for a pipeline outcome.
func responseStatus(resp *mux.Response, err error) int {
	switch {
	case err != nil || resp == nil:
		return http.StatusInternalServerError
	case resp.Status == 0:
		return http.StatusOK
	default:
		return resp.Status
	}
}
