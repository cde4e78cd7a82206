// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package provider

import (
	"fmt"
	"time"
)

// maxErrorBody caps how much of a provider response body is captured in an
// error. Bodies can carry full HTML error pages.
const maxErrorBody = 64 * 1024

func truncateBody(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "...(truncated)"
	}
	return string(body)
}

// AuthError reports a credential rejection (401) or a token issuance
// failure. The holder of a rejected token is expected to discard it and
// re-issue before retrying.
type AuthError struct {
	ClinicID string
	Op       string
	Body     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider auth failed for clinic %s during %s: %s", e.ClinicID, e.Op, e.Body)
}

// ScopeError reports a 403: the credential is valid but its granted scope
// does not cover the requested resource. Retrying cannot help until the
// clinic's scope configuration changes, so the message names the scope.
type ScopeError struct {
	ClinicID string
	Path     string
	Scope    string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("provider denied clinic %s access to %s: granted scope %q does not cover this resource", e.ClinicID, e.Path, e.Scope)
}

// ValidationError reports a 422: the provider rejected the request shape.
// The body is preserved for the audit sink.
type ValidationError struct {
	ClinicID string
	Path     string
	Body     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("provider rejected request to %s for clinic %s: %s", e.Path, e.ClinicID, e.Body)
}

// RateLimitError reports a 429 that survived every retry attempt.
type RateLimitError struct {
	ClinicID   string
	Path       string
	Attempts   int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider rate limited %s for clinic %s after %d attempts", e.Path, e.ClinicID, e.Attempts)
}

// APIError reports any other non-2xx provider response.
type APIError struct {
	ClinicID   string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned %d for %s (clinic %s): %s", e.StatusCode, e.Path, e.ClinicID, e.Body)
}

// UpsertError reports a persistence failure for a fetched batch. The fetch
// succeeded; only the local write failed.
type UpsertError struct {
	Resource string
	Batch    int
	Err      error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("failed to upsert %s batch %d: %v", e.Resource, e.Batch, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }
