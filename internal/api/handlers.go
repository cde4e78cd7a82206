// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

// Package api exposes the HTTP surface: the provider webhook receiver, the
// manual and scheduled sync triggers, and the read-only sync log and clinic
// listings.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/vetbridge/vetbridge/internal/logging"
	"github.com/vetbridge/vetbridge/internal/models"
	"github.com/vetbridge/vetbridge/internal/store"
	"github.com/vetbridge/vetbridge/internal/sync"
)

// SyncService triggers targeted or full syncs for one clinic.
type SyncService interface {
	SyncResource(ctx context.Context, clinic *models.Clinic, resource models.ResourceType, opts sync.Options) (models.SyncResult, error)
	SyncAll(ctx context.Context, clinic *models.Clinic, opts sync.Options) (*sync.FullResult, error)
}

// FleetRunner runs a full sync across every active clinic.
type FleetRunner interface {
	RunAll(ctx context.Context, triggeredBy string) ([]sync.ClinicOutcome, error)
}

// WebhookProcessor ingests provider push notifications.
type WebhookProcessor interface {
	Process(ctx context.Context, payload *sync.WebhookPayload, raw json.RawMessage, siteUIDHeader string) (int, error)
}

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	store     store.Store
	syncs     SyncService
	fleet     FleetRunner
	webhooks  WebhookProcessor
	maxBody   int64
	runsLimit int
}

// NewHandler builds the API handler set.
func NewHandler(st store.Store, syncs SyncService, fleet FleetRunner, webhooks WebhookProcessor) *Handler {
	return &Handler{
		store:     st,
		syncs:     syncs,
		fleet:     fleet,
		webhooks:  webhooks,
		maxBody:   1 << 20,
		runsLimit: 100,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Webhook receives provider push notifications. The provider retries
// non-2xx responses aggressively, so dispatch failures still acknowledge:
// the event log plus the periodic sync recover anything missed.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "unreadable request body")
		return
	}

	var payload sync.WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	received, err := h.webhooks.Process(r.Context(), &payload, raw, r.Header.Get("X-Provider-Site-UID"))
	if err != nil {
		logging.Err(err).Msg("Webhook event logging failed")
		respondError(w, http.StatusInternalServerError, "internal", "failed to log webhook event")
		return
	}

	respondData(w, http.StatusOK, map[string]any{"received": received})
}

var validate = validator.New()

type syncRequest struct {
	ClinicID string `json:"clinic_id" validate:"required"`
	Type     string `json:"type" validate:"omitempty,oneof=staff appointments consults invoice_lines contacts full"`
	Since    string `json:"since" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// TriggerSync runs a manual sync for one clinic.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, h.maxBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resource := models.ResourceFull
	if req.Type != "" {
		resource = models.ResourceType(req.Type)
	}

	clinic, err := h.store.GetClinic(r.Context(), req.ClinicID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "clinic not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "clinic lookup failed")
		return
	}
	if !clinic.Active {
		respondError(w, http.StatusNotFound, "not_found", "clinic is inactive")
		return
	}

	opts := sync.Options{TriggeredBy: "manual"}
	if operator := r.Header.Get("X-Operator"); operator != "" {
		opts.TriggeredBy = operator
	}
	if req.Since != "" {
		since, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			respondError(w, http.StatusBadRequest, "bad_request", "since must be RFC 3339")
			return
		}
		opts.Since = &since
	}

	logging.Info().
		Str("clinic", clinic.Label).
		Str("type", string(resource)).
		Str("triggered_by", opts.TriggeredBy).
		Msg("Manual sync triggered")

	if resource == models.ResourceFull {
		result, err := h.syncs.SyncAll(r.Context(), clinic, opts)
		if err != nil {
			respondError(w, http.StatusBadGateway, "sync_failed", err.Error())
			return
		}
		respondData(w, http.StatusOK, map[string]any{
			"clinic": clinic.Label,
			"type":   resource,
			"result": result,
		})
		return
	}

	result, err := h.syncs.SyncResource(r.Context(), clinic, resource, opts)
	if err != nil {
		respondError(w, http.StatusBadGateway, "sync_failed", err.Error())
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"clinic": clinic.Label,
		"type":   resource,
		"result": result,
	})
}

// CronSync runs the fleet-wide scheduled sync. Per-clinic failures are
// reported in the outcome list, not as an HTTP error.
func (h *Handler) CronSync(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.fleet.RunAll(r.Context(), "cron")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	respondData(w, http.StatusOK, map[string]any{"results": outcomes})
}

// ListRuns returns recent sync audit runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	clinicID := r.URL.Query().Get("clinic_id")
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > h.runsLimit {
		limit = h.runsLimit
	}

	runs, err := h.store.ListRuns(r.Context(), clinicID, limit)
	if err != nil {
		logging.Err(err).Msg("Failed to list sync runs")
		respondError(w, http.StatusInternalServerError, "internal", "failed to list sync runs")
		return
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}
	respondData(w, http.StatusOK, map[string]any{"runs": runs})
}

// clinicView is the redacted clinic listing: no secrets, no partner
// credentials.
type clinicView struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	SiteUID    string  `json:"site_uid"`
	BaseURL    string  `json:"base_url"`
	Scope      string  `json:"scope"`
	LocationID *string `json:"location_id,omitempty"`
	Active     bool    `json:"is_active"`
}

// ListClinics returns the active clinic registry with credentials redacted.
func (h *Handler) ListClinics(w http.ResponseWriter, r *http.Request) {
	clinics, err := h.store.ListActiveClinics(r.Context())
	if err != nil {
		logging.Err(err).Msg("Failed to list clinics")
		respondError(w, http.StatusInternalServerError, "internal", "failed to list clinics")
		return
	}

	views := make([]clinicView, 0, len(clinics))
	for _, c := range clinics {
		views = append(views, clinicView{
			ID:         c.ID,
			Label:      c.Label,
			SiteUID:    c.SiteUID,
			BaseURL:    c.BaseURL,
			Scope:      c.Scope,
			LocationID: c.LocationID,
			Active:     c.Active,
		})
	}
	respondData(w, http.StatusOK, map[string]any{"clinics": views})
}
