// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

// Package provider is the rate-limited, retrying HTTP client for the
// practice management API. Every outbound call goes through bearer token
// injection, client-side throttling, a per-clinic circuit breaker, and the
// retry loop for 401 and 429 responses.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/vetbridge/vetbridge/internal/config"
	"github.com/vetbridge/vetbridge/internal/logging"
	"github.com/vetbridge/vetbridge/internal/metrics"
	"github.com/vetbridge/vetbridge/internal/models"
)

// ValidationSink receives provider 422 rejections for later diagnosis.
// Sink failures never fail the request they annotate.
type ValidationSink interface {
	RecordValidationFailure(ctx context.Context, clinicID, path string, detail []byte) error
}

// Client issues authenticated GET requests against clinic provider sites.
// Safe for concurrent use.
type Client struct {
	http       *http.Client
	tokens     *TokenSource
	limiter    Limiter
	audit      ValidationSink
	maxRetries int

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]

	sleep func(context.Context, time.Duration) error
}

// NewClient builds a provider client. audit may be nil.
func NewClient(cfg config.ProviderConfig, tokens *TokenSource, limiter Limiter, audit ValidationSink) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		tokens:     tokens,
		limiter:    limiter,
		audit:      audit,
		maxRetries: maxRetries,
		breakers:   make(map[string]*gobreaker.CircuitBreaker[[]byte]),
		sleep:      sleepCtx,
	}
}

// breaker returns the clinic's circuit breaker, creating it on first use.
//
// Scope and validation errors do not count as failures: they indicate a
// configuration defect on our side while the provider itself is healthy,
// so tripping the breaker on them would only delay the inevitable.
func (c *Client) breaker(clinicID string) *gobreaker.CircuitBreaker[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[clinicID]; ok {
		return cb
	}
	name := "provider-" + clinicID
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var scopeErr *ScopeError
			var valErr *ValidationError
			return errors.As(err, &scopeErr) || errors.As(err, &valErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := breakerStateString(from), breakerStateString(to)
			logging.Info().
				Str("breaker", name).
				Str("from", fromStr).
				Str("to", toStr).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
	c.breakers[clinicID] = cb
	return cb
}

func breakerStateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func breakerStateFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Get performs an authenticated GET against the clinic's provider site and
// returns the response body. path may carry a query string.
func (c *Client) Get(ctx context.Context, clinic *models.Clinic, path string, query url.Values) ([]byte, error) {
	return c.breaker(clinic.ID).Execute(func() ([]byte, error) {
		return c.do(ctx, clinic, path, query)
	})
}

func (c *Client) do(ctx context.Context, clinic *models.Clinic, path string, query url.Values) ([]byte, error) {
	fullPath := path
	if len(query) > 0 {
		fullPath = path + "?" + query.Encode()
	}

	// classify turns 401 and 429 terminal once attempt reaches the retry
	// cap, so every iteration either returns or increments attempt.
	attempt := 0
	for {
		token, err := c.tokens.Token(ctx, clinic)
		if err != nil {
			metrics.ProviderRequests.WithLabelValues(clinic.ID, "failed").Inc()
			return nil, err
		}

		if err := c.limiter.Wait(ctx, clinic.ID, path); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, clinic.BaseURL+fullPath, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.ProviderRequests.WithLabelValues(clinic.ID, "failed").Inc()
			return nil, fmt.Errorf("provider request to %s failed: %w", path, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			metrics.ProviderRequests.WithLabelValues(clinic.ID, "failed").Inc()
			return nil, fmt.Errorf("failed to read provider response from %s: %w", path, readErr)
		}

		state, kind := classify(resp.StatusCode, attempt, c.maxRetries)

		if state == stateSucceeded {
			metrics.ProviderRequests.WithLabelValues(clinic.ID, "success").Inc()
			return body, nil
		}

		if state == stateBackoff {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				logging.Warn().
					Str("path", path).
					Int("attempt", attempt).
					Msg("Provider returned 401, invalidating token and retrying")
				if err := c.tokens.Invalidate(ctx, clinic.ID); err != nil {
					logging.Err(err).Str("clinic_id", clinic.ID).Msg("Token invalidation failed")
				}
				metrics.ProviderRetries.WithLabelValues(clinic.ID, "unauthorized").Inc()
			case http.StatusTooManyRequests:
				delay := backoffDelay(attempt, retryAfterHeader(resp))
				logging.Warn().
					Str("path", path).
					Int("attempt", attempt+1).
					Int("max_retries", c.maxRetries).
					Dur("backoff", delay).
					Msg("Provider returned 429, backing off")
				metrics.ProviderRetries.WithLabelValues(clinic.ID, "rate_limited").Inc()
				if err := c.sleep(ctx, delay); err != nil {
					return nil, err
				}
			}
			attempt++
			continue
		}

		// Terminal failure.
		return nil, c.terminalError(ctx, clinic, path, resp.StatusCode, kind, body, attempt)
	}
}

func (c *Client) terminalError(ctx context.Context, clinic *models.Clinic, path string, status int, kind failureKind, body []byte, attempt int) error {
	switch kind {
	case failAuth:
		metrics.ProviderRequests.WithLabelValues(clinic.ID, "failed").Inc()
		return &AuthError{ClinicID: clinic.ID, Op: "request " + path, Body: truncateBody(body)}
	case failScope:
		logging.Error().
			Str("path", path).
			Str("scope", clinic.Scope).
			Str("body", truncateBody(body)).
			Msg("Provider returned 403, scope does not cover resource")
		metrics.ProviderRequests.WithLabelValues(clinic.ID, "failed").Inc()
		return &ScopeError{ClinicID: clinic.ID, Path: path, Scope: clinic.Scope}
	case failValidation:
		logging.Error().
			Str("path", path).
			Str("body", truncateBody(body)).
			Msg("Provider returned 422, request shape rejected")
		if c.audit != nil {
			if err := c.audit.RecordValidationFailure(ctx, clinic.ID, path, body); err != nil {
				logging.Err(err).Str("path", path).Msg("Failed to record validation failure")
			}
		}
		metrics.ProviderRequests.WithLabelValues(clinic.ID, "failed").Inc()
		return &ValidationError{ClinicID: clinic.ID, Path: path, Body: truncateBody(body)}
	case failRateLimit:
		metrics.ProviderRequests.WithLabelValues(clinic.ID, "rate_limited").Inc()
		return &RateLimitError{ClinicID: clinic.ID, Path: path, Attempts: attempt}
	default:
		logging.Error().
			Str("path", path).
			Int("status", status).
			Str("body", truncateBody(body)).
			Msg("Provider returned unexpected error status")
		metrics.ProviderRequests.WithLabelValues(clinic.ID, "failed").Inc()
		return &APIError{ClinicID: clinic.ID, Path: path, StatusCode: status, Body: truncateBody(body)}
	}
}

func retryAfterHeader(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
