// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Service's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	registrations  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	passwordEvents *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	duration       *prometheus.HistogramVec
}

// NewMetrics creates the auth collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "turnia_auth_registrations_total",
			Help: "Registrations by result",
		}, []string{"result"}),
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "turnia_auth_logins_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "turnia_auth_refreshes_total",
			Help: "Refresh token rotations by result",
		}, []string{"result"}),
		passwordEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "turnia_auth_password_events_total",
			Help: "Password change, reset request and reset outcomes",
		}, []string{"event", "result"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "turnia_auth_reset_notifications_total",
			Help: "Password reset notification deliveries by result",
		}, []string{"result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "turnia_auth_operation_duration_seconds",
			Help:    "Latency of auth operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) registration(result string) {
	if m != nil {
		m.registrations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) login(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) refresh(result string) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) password(event, result string) {
	if m != nil {
		m.passwordEvents.WithLabelValues(event, result).Inc()
	}
}

func (m *Metrics) notification(result string) {
	if m != nil {
		m.notifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) observe(operation string, start time.Time) {
	if m != nil {
		m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
