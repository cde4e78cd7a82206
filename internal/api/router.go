// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vetbridge/vetbridge/internal/config"
)

// NewRouter assembles the HTTP routes. The webhook receiver and the cron
// trigger authenticate with shared secrets; everything under /api/v1 except
// cron requires an operator JWT.
func NewRouter(h *Handler, sec config.SecurityConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if sec.RateLimitReqs > 0 {
		r.Use(httprate.Limit(
			sec.RateLimitReqs,
			sec.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		))
	}

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(RequireWebhookSecret(sec.WebhookSecret))
		r.Post("/provider", h.Webhook)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cron", func(r chi.Router) {
			r.Use(RequireCronSecret(sec.CronSecret))
			r.Get("/sync", h.CronSync)
			r.Post("/sync", h.CronSync)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireJWT(sec.JWTSecret))
			r.Post("/sync", h.TriggerSync)
			r.Get("/sync/runs", h.ListRuns)
			r.Get("/clinics", h.ListClinics)
		})
	})

	return r
}
