// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package provider

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/vetbridge/vetbridge/internal/logging"
	"github.com/vetbridge/vetbridge/internal/models"
	"github.com/vetbridge/vetbridge/internal/store"
)

// TokenSource issues and caches OAuth client_credentials tokens per clinic.
//
// Tokens live in the shared store so they survive restarts and are visible
// to every instance. Issuance is not coordinated across instances: two
// callers that both find the cache stale will both hit the token endpoint,
// and the last write to the cache wins. The provider tolerates overlapping
// valid tokens, so the duplicate issuance is only wasted work.
type TokenSource struct {
	store         store.TokenStore
	http          *http.Client
	refreshBuffer time.Duration
	pace          *rate.Limiter

	now func() time.Time
}

// NewTokenSource builds a token source. refreshBuffer is how long before
// expiry a cached token is treated as stale. issuanceRate caps token
// endpoint calls per second across all clinics; zero disables pacing.
func NewTokenSource(st store.TokenStore, httpClient *http.Client, refreshBuffer time.Duration, issuanceRate float64) *TokenSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if refreshBuffer <= 0 {
		refreshBuffer = 5 * time.Minute
	}
	var pace *rate.Limiter
	if issuanceRate > 0 {
		pace = rate.NewLimiter(rate.Limit(issuanceRate), 1)
	}
	return &TokenSource{
		store:         st,
		http:          httpClient,
		refreshBuffer: refreshBuffer,
		pace:          pace,
		now:           time.Now,
	}
}

// Token returns a valid bearer token for the clinic, issuing a fresh one
// when the cache is empty or inside the refresh buffer.
func (ts *TokenSource) Token(ctx context.Context, clinic *models.Clinic) (string, error) {
	cached, err := ts.store.GetToken(ctx, clinic.ID)
	if err != nil {
		return "", err
	}
	if cached != nil {
		if remaining := cached.ExpiresAt.Sub(ts.now()); remaining > ts.refreshBuffer {
			logging.Debug().
				Str("clinic", clinic.Label).
				Dur("remaining", remaining).
				Msg("Using cached provider token")
			return cached.AccessToken, nil
		}
		logging.Info().
			Str("clinic", clinic.Label).
			Msg("Provider token expired or near expiry, refreshing")
	}

	tok, err := ts.issue(ctx, clinic)
	if err != nil {
		return "", err
	}

	expiresAt := ts.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	cacheErr := ts.store.PutToken(ctx, &models.CachedToken{
		ClinicID:    clinic.ID,
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   expiresAt,
		IssuedAt:    ts.now(),
	})
	if cacheErr != nil {
		// Non-fatal: the token is still usable in memory.
		logging.Err(cacheErr).
			Str("clinic", clinic.Label).
			Msg("Failed to cache provider token")
	}

	logging.Info().
		Str("clinic", clinic.Label).
		Int64("expires_in_s", tok.ExpiresIn).
		Msg("New provider token obtained")
	return tok.AccessToken, nil
}

func (ts *TokenSource) issue(ctx context.Context, clinic *models.Clinic) (*TokenResponse, error) {
	if ts.pace != nil {
		if err := ts.pace.Wait(ctx); err != nil {
			return nil, err
		}
	}

	form := url.Values{
		"partner_id":    {clinic.PartnerID},
		"client_id":     {clinic.ClientID},
		"client_secret": {clinic.ClientSecret},
		"grant_type":    {"client_credentials"},
		"scope":         {clinic.Scope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		clinic.BaseURL+PathToken, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.http.Do(req)
	if err != nil {
		return nil, &AuthError{ClinicID: clinic.ID, Op: "token request", Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
	if err != nil {
		return nil, &AuthError{ClinicID: clinic.ID, Op: "token read", Body: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{ClinicID: clinic.ID, Op: "token issue", Body: truncateBody(body)}
	}

	var tok TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, &AuthError{ClinicID: clinic.ID, Op: "token decode", Body: err.Error()}
	}
	if tok.AccessToken == "" {
		return nil, &AuthError{ClinicID: clinic.ID, Op: "token issue", Body: "empty access_token in response"}
	}
	return &tok, nil
}

// Invalidate discards the cached token so the next Token call issues a
// fresh one. Called after a 401.
func (ts *TokenSource) Invalidate(ctx context.Context, clinicID string) error {
	if err := ts.store.DeleteToken(ctx, clinicID); err != nil {
		return err
	}
	logging.Info().Str("clinic_id", clinicID).Msg("Invalidated cached provider token")
	return nil
}
