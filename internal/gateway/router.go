// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package gateway exposes the vault over a JSON HTTP API.
package gateway

import (
	"context"
	"iter"
	"net/http"

	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/carabiner-dev/tmpvault/internal/secret"
	"github.com/carabiner-dev/tmpvault/internal/session"
	"github.com/carabiner-dev/tmpvault/internal/vault"
)

// Service is the set of vault operations served over HTTP.
type Service interface {
	CreateSession(ctx context.Context, userID string, payload []byte) (string, error)
	GetSession(ctx context.Context, id string) (*session.Session, error)
	DeleteSession(ctx context.Context, id string) error
	StoreSecret(ctx context.Context, name string, value []byte, ttlSeconds int64) (string, error)
	ListSecrets(ctx context.Context) iter.Seq2[secret.Info, error]
	GetSecret(ctx context.Context, id string) (*secret.Secret, error)
	DeleteSecret(ctx context.Context, id string) error
	SecurityInfo(ctx context.Context) (*vault.SecurityInfo, error)
}

// Config tunes the router.
type Config struct {
	// Logger is the base request logger. Nil uses the logger in the
	// server context.
	Logger *clog.Logger

	// Gatherer serves /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer

	// RateLimit is the number of requests per second accepted, 0 disables
	// limiting.
	RateLimit float64

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
}

// NewRouter builds the HTTP handler for svc.
func NewRouter(svc Service, cfg Config) http.Handler {
	h := &handler{svc: svc, maxBody: cfg.MaxBodyBytes}
	if h.maxBody <= 0 {
		h.maxBody = 2 << 20
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimit))

		r.Get("/", h.index)
		r.Get("/security-info", h.securityInfo)

		r.Post("/session", h.createSession)
		r.Get("/session/{id}", h.getSession)
		r.Delete("/session/{id}", h.deleteSession)

		r.Post("/secret", h.storeSecret)
		r.Get("/secrets", h.listSecrets)
		r.Get("/secret/{id}", h.getSecret)
		r.Delete("/secret/{id}", h.deleteSecret)
	})

	return otelhttp.NewHandler(r, "tmpvault.gateway",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	)
}
