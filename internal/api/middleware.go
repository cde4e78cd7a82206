// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vetbridge/vetbridge/internal/logging"
)

// RequireJWT validates a bearer token signed with HS256. The subject claim
// is recorded as the sync trigger provenance via the request header, so
// handlers can attribute manual runs to an operator. An empty configured
// secret refuses every request: any HS256 token signed with the empty key
// would otherwise verify.
func RequireJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "operator endpoints disabled")
				return
			}
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logging.Warn().Err(err).Msg("Rejected API request with invalid token")
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
				r.Header.Set("X-Operator", sub)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCronSecret guards scheduler-only endpoints with a shared bearer
// secret. Comparison is constant time.
func RequireCronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "cron endpoint disabled")
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing cron secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// webhookSecretHeaders are checked in order for the shared webhook secret.
var webhookSecretHeaders = []string{"X-Provider-Webhook-Secret", "X-Webhook-Secret"}

// RequireWebhookSecret validates the shared secret the provider sends with
// every notification. An empty configured secret disables the check, which
// only makes sense in development.
func RequireWebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			for _, h := range webhookSecretHeaders {
				if got := r.Header.Get(h); got != "" &&
					subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			logging.Warn().Msg("Webhook rejected: invalid secret")
			respondError(w, http.StatusUnauthorized, "unauthorized", "invalid webhook secret")
		})
	}
}
