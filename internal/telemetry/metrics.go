// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tmpvault"

// Expiry paths label the secrets_expired_total counter.
const (
	ExpiredByTimer  = "timer"
	ExpiredOnList   = "list"
	ExpiredOnGet    = "get"
	ExpiredOnStart  = "recover"
	VerificationOK  = "ok"
	VerificationBad = "unauthorized"
)

// Metrics holds the store collectors. A nil *Metrics is valid and records
// nothing, so registries can run without instrumentation.
type Metrics struct {
	SessionsActive       prometheus.Gauge
	SessionsCreated      prometheus.Counter
	SessionVerifications *prometheus.CounterVec
	SecretsStored        prometheus.Counter
	SecretsExpired       *prometheus.CounterVec
	ExpiryPending        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions held by the registry.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created since start.",
		}),
		SessionVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_verifications_total",
			Help:      "Session lookups by verification result.",
		}, []string{"result"}),
		SecretsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secrets_stored_total",
			Help:      "Secrets stored since start.",
		}),
		SecretsExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secrets_expired_total",
			Help:      "Secrets removed after their ttl, by the path that removed them.",
		}, []string{"path"}),
		ExpiryPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "expiry_pending",
			Help:      "Expiry timers currently armed.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.SessionsActive,
			m.SessionsCreated,
			m.SessionVerifications,
			m.SecretsStored,
			m.SecretsExpired,
			m.ExpiryPending,
		)
	}
	return m
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionDeleted() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) SessionVerified(result string) {
	if m == nil {
		return
	}
	m.SessionVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) SecretStored() {
	if m == nil {
		return
	}
	m.SecretsStored.Inc()
}

func (m *Metrics) SecretExpired(path string) {
	if m == nil {
		return
	}
	m.SecretsExpired.WithLabelValues(path).Inc()
}

// SetPending records the number of armed expiry timers.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.ExpiryPending.Set(float64(n))
}
