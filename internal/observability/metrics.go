// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Login outcomes recorded by RecordLogin.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// Metrics holds the application metrics.
type Metrics struct {
	RequestDuration  *prometheus.HistogramVec
	RequestsTotal    *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
	Registrations    prometheus.Counter
	Logins           *prometheus.CounterVec
}

// NewMetrics creates the application metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skycast_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.3, 0.5, 1, 3, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skycast_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skycast_weather_upstream_requests_total",
				Help: "Total number of requests to the weather API by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skycast_user_registrations_total",
			Help: "Total number of user registrations",
		}),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skycast_user_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.UpstreamRequests, m.Registrations, m.Logins)
	return m
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, elapsed time.Duration) {
	m.RequestDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// ObserveUpstream records one weather API call.
func (m *Metrics) ObserveUpstream(endpoint, status string) {
	m.UpstreamRequests.WithLabelValues(endpoint, status).Inc()
}

// RecordRegistration counts a completed registration.
func (m *Metrics) RecordRegistration() {
	m.Registrations.Inc()
}

// RecordLogin counts a login attempt with the given outcome.
func (m *Metrics) RecordLogin(status string) {
	m.Logins.WithLabelValues(status).Inc()
}
