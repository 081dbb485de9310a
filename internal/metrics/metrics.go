// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors and the registry they are registered in.
type Metrics struct {
	Registry *prometheus.Registry

	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	bookings      *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	cancellations *prometheus.CounterVec
}

// New registers every collector in a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gym",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gym",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gym",
			Name:      "bookings_created_total",
			Help:      "Bookings created, by role of the booker.",
		}, []string{"role"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gym",
			Name:      "booking_rejections_total",
			Help:      "Booking requests rejected, by rule.",
		}, []string{"rule"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gym",
			Name:      "bookings_cancelled_total",
			Help:      "Bookings cancelled, by who cancelled them (owner or admin).",
		}, []string{"by"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.bookings, m.rejections, m.cancellations,
	)
	return m
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// BookingCreated counts a successful booking by role.
func (m *Metrics) BookingCreated(role string) {
	if m != nil {
		m.bookings.WithLabelValues(role).Inc()
	}
}

// BookingRejected counts a rule rejection.
func (m *Metrics) BookingRejected(rule string) {
	if m != nil {
		m.rejections.WithLabelValues(rule).Inc()
	}
}

// BookingCancelled counts a deletion; by is "owner" or "admin".
func (m *Metrics) BookingCancelled(by string) {
	if m != nil {
		m.cancellations.WithLabelValues(by).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
