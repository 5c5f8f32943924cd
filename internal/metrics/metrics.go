// Package metrics exposes Prometheus metrics for HTTP requests and table store calls.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dtroode/sheetkeeper/internal/model"
)

const namespace = "sheetkeeper"

// Store operation outcomes.
const (
	StatusOK       = "ok"
	StatusNotFound = "not_found"
	StatusConflict = "conflict"
	StatusError    = "error"
)

// Metrics holds all Prometheus collectors of the service.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them in registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of table store operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Table store operation duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation", "backend"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency. Requests are labelled with
// the route template so path parameters such as usernames do not become labels.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := routeTemplate(r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

var _ model.BlobStore = (*instrumentedStore)(nil)

type instrumentedStore struct {
	next    model.BlobStore
	backend string
	metrics *Metrics
}

// InstrumentStore wraps store so every Get and Put is counted and timed.
func InstrumentStore(store model.BlobStore, backend string, m *Metrics) model.BlobStore {
	return &instrumentedStore{next: store, backend: backend, metrics: m}
}

func (s *instrumentedStore) Get(ctx context.Context) (model.Blob, error) {
	start := time.Now()
	blob, err := s.next.Get(ctx)
	s.observe("get", start, err)
	return blob, err
}

func (s *instrumentedStore) Put(ctx context.Context, data []byte, baseRevision string) (string, error) {
	start := time.Now()
	revision, err := s.next.Put(ctx, data, baseRevision)
	s.observe("put", start, err)
	return revision, err
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	s.metrics.StoreOperationDuration.WithLabelValues(op, s.backend).Observe(time.Since(start).Seconds())
	s.metrics.StoreOperationsTotal.WithLabelValues(op, s.backend, statusOf(err)).Inc()
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, model.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, model.ErrRevisionConflict):
		return StatusConflict
	default:
		return StatusError
	}
}
