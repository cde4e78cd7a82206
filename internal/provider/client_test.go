// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vetbridge/vetbridge/internal/config"
	"github.com/vetbridge/vetbridge/internal/models"
)

// nopLimiter admits every call immediately.
type nopLimiter struct{ calls int }

func (n *nopLimiter) Wait(context.Context, string, string) error {
	n.calls++
	return nil
}

// memAuditSink records 422 details.
type memAuditSink struct {
	mu      sync.Mutex
	entries []string
}

func (m *memAuditSink) RecordValidationFailure(_ context.Context, clinicID, path string, detail []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, clinicID+" "+path+" "+string(detail))
	return nil
}

func newTestClient(t *testing.T, store *memTokenStore, limiter Limiter, audit ValidationSink, baseURL string) (*Client, *models.Clinic) {
	t.Helper()
	clinic := testClinic(baseURL)
	if _, ok := store.tokens[clinic.ID]; !ok {
		store.tokens[clinic.ID] = &models.CachedToken{
			ClinicID:    clinic.ID,
			AccessToken: "test-token",
			ExpiresAt:   time.Now().Add(time.Hour),
		}
	}
	ts := NewTokenSource(store, http.DefaultClient, 5*time.Minute, 0)
	c := NewClient(config.ProviderConfig{MaxRetries: 5, RequestTimeout: 5 * time.Second}, ts, limiter, audit)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c, clinic
}

func TestClientSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("expected bearer header, got %q", got)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	limiter := &nopLimiter{}
	c, clinic := newTestClient(t, newMemTokenStore(), limiter, nil, srv.URL)

	body, err := c.Get(context.Background(), clinic, "/v1/consult", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("unexpected body %q", body)
	}
	if limiter.calls != 1 {
		t.Errorf("expected one limiter wait, got %d", limiter.calls)
	}
}

func TestClientUnauthorizedReissuesToken(t *testing.T) {
	var issued int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.URL.Path == PathToken {
			issued++
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: fmt.Sprintf("token-%d", issued),
				TokenType:   "Bearer",
				ExpiresIn:   3600,
			})
			return
		}
		if r.Header.Get("Authorization") == "Bearer stale" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	store := newMemTokenStore()
	store.tokens["clinic-1"] = &models.CachedToken{
		ClinicID:    "clinic-1",
		AccessToken: "stale",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	c, clinic := newTestClient(t, store, &nopLimiter{}, nil, srv.URL)

	body, err := c.Get(context.Background(), clinic, "/v1/consult", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("unexpected body %q", body)
	}
	if store.deletes != 1 {
		t.Errorf("expected one token invalidation, got %d", store.deletes)
	}
	if issued != 1 {
		t.Errorf("expected one fresh issuance, got %d", issued)
	}
}

func TestClientScopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("forbidden"))
	}))
	defer srv.Close()

	c, clinic := newTestClient(t, newMemTokenStore(), &nopLimiter{}, nil, srv.URL)

	_, err := c.Get(context.Background(), clinic, "/v1/consult", nil)
	var scopeErr *ScopeError
	if !errors.As(err, &scopeErr) {
		t.Fatalf("expected ScopeError, got %v", err)
	}
	if !strings.Contains(scopeErr.Error(), clinic.Scope) {
		t.Errorf("scope error should name the granted scope: %v", scopeErr)
	}
}

func TestClientValidationErrorAudited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"messages":["limit out of range"]}`))
	}))
	defer srv.Close()

	audit := &memAuditSink{}
	c, clinic := newTestClient(t, newMemTokenStore(), &nopLimiter{}, audit, srv.URL)

	_, err := c.Get(context.Background(), clinic, "/v1/consult", nil)
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(audit.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(audit.entries))
	}
	if !strings.Contains(audit.entries[0], "limit out of range") {
		t.Errorf("audit entry should carry the provider detail: %q", audit.entries[0])
	}
}

func TestClientRateLimitRetriesThenSucceeds(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		hits++
		if hits <= 2 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var slept []time.Duration
	c, clinic := newTestClient(t, newMemTokenStore(), &nopLimiter{}, nil, srv.URL)
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	body, err := c.Get(context.Background(), clinic, "/v1/consult", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("unexpected body %q", body)
	}
	if len(slept) != 2 {
		t.Fatalf("expected two backoffs, got %d", len(slept))
	}
	for _, d := range slept {
		if d != time.Second {
			t.Errorf("Retry-After of 1s should win over exponential, got %v", d)
		}
	}
}

func TestClientRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, clinic := newTestClient(t, newMemTokenStore(), &nopLimiter{}, nil, srv.URL)

	_, err := c.Get(context.Background(), clinic, "/v1/consult", nil)
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rlErr.Attempts != 5 {
		t.Errorf("expected 5 attempts recorded, got %d", rlErr.Attempts)
	}
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c, clinic := newTestClient(t, newMemTokenStore(), &nopLimiter{}, nil, srv.URL)

	_, err := c.Get(context.Background(), clinic, "/v1/consult", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", apiErr.StatusCode)
	}
}

func TestFetchAllWalksPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if got := r.URL.Query().Get("limit"); got != "200" {
			t.Errorf("expected limit 200, got %q", got)
		}
		if got := r.URL.Query().Get("modified_since"); got != "1700000000" {
			t.Errorf("expected modified_since passthrough, got %q", got)
		}
		switch page {
		case "1":
			fmt.Fprint(w, `{"meta":{"page":1,"pages_total":3},"items":[{"id":1},{"id":2}]}`)
		case "2":
			fmt.Fprint(w, `{"meta":{"page":2,"pages_total":3},"items":[{"id":3}]}`)
		case "3":
			fmt.Fprint(w, `{"meta":{"page":3,"pages_total":3},"items":[{"id":4}]}`)
		default:
			t.Errorf("unexpected page %q", page)
		}
	}))
	defer srv.Close()

	c, clinic := newTestClient(t, newMemTokenStore(), &nopLimiter{}, nil, srv.URL)

	params := map[string][]string{"modified_since": {"1700000000"}}
	items, err := c.FetchAll(context.Background(), clinic, "/v2/appointment", params, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 4 {
		t.Errorf("expected 4 items across 3 pages, got %d", len(items))
	}
}

func TestFetchAllEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"meta":{"page":1,"pages_total":1,"items_total":0},"items":[]}`)
	}))
	defer srv.Close()

	c, clinic := newTestClient(t, newMemTokenStore(), &nopLimiter{}, nil, srv.URL)

	items, err := c.FetchAll(context.Background(), clinic, "/v1/contact", nil, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}
