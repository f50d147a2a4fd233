// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// authOperations is package-level so the auth service can count outcomes
// without holding a Server.
var authOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warden_auth_operations_total",
		Help: "Total number of auth operations by operation and result",
	},
	[]string{"operation", "result"},
)

// RecordAuthOperation counts one auth operation outcome.
func RecordAuthOperation(operation, result string) {
	authOperations.WithLabelValues(operation, result).Inc()
}

// Metrics contains the HTTP metrics recorded by the API middleware.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	reg prometheus.Registerer
}

// NewMetrics creates and registers the warden metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		reg: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(authOperations)

	return m
}

// WatchHasher exposes inFlight as the warden_hasher_in_flight gauge.
// Safe on a nil receiver.
func (m *Metrics) WatchHasher(inFlight func() int) {
	if m == nil || inFlight == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "warden_hasher_in_flight",
			Help: "Password hash computations currently holding a slot",
		},
		func() float64 { return float64(inFlight()) },
	))
}

// ObserveRequest records a finished HTTP request. Safe on a nil receiver.
func (m *Metrics) ObserveRequest(route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
