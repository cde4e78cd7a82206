// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package provider

import (
	"net/http"
	"time"
)

// retryState tracks where a request sits in its retry lifecycle.
type retryState int

const (
	stateAttempting retryState = iota
	stateBackoff
	stateSucceeded
	stateFailed
)

func (s retryState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateBackoff:
		return "backoff"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// failureKind classifies why a request left the retry loop without
// succeeding.
type failureKind int

const (
	failNone failureKind = iota
	failAuth
	failScope
	failValidation
	failRateLimit
	failAPI
)

const (
	maxBackoff  = 60 * time.Second
	baseBackoff = time.Second
)

// backoffDelay returns how long to wait before the next attempt after a
// 429. A positive Retry-After wins; otherwise exponential starting at 1s
// and capped at 60s.
func backoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	d := baseBackoff << uint(attempt)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

// classify maps a response status to the next retry state. Retryable
// statuses (401, 429) move to backoff while attempts remain; everything
// else is terminal.
func classify(status int, attempt, maxRetries int) (retryState, failureKind) {
	switch {
	case status >= 200 && status < 300:
		return stateSucceeded, failNone
	case status == http.StatusUnauthorized:
		if attempt < maxRetries {
			return stateBackoff, failNone
		}
		return stateFailed, failAuth
	case status == http.StatusForbidden:
		return stateFailed, failScope
	case status == http.StatusUnprocessableEntity:
		return stateFailed, failValidation
	case status == http.StatusTooManyRequests:
		if attempt < maxRetries {
			return stateBackoff, failNone
		}
		return stateFailed, failRateLimit
	default:
		return stateFailed, failAPI
	}
}
