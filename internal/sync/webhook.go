// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package sync

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/vetbridge/vetbridge/internal/logging"
	"github.com/vetbridge/vetbridge/internal/metrics"
	"github.com/vetbridge/vetbridge/internal/models"
	"github.com/vetbridge/vetbridge/internal/store"
)

// WebhookItem is one changed record inside a webhook notification.
type WebhookItem struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// WebhookPayload is the provider's push notification body.
type WebhookPayload struct {
	Event string        `json:"event"`
	Items []WebhookItem `json:"items"`
	Meta  struct {
		SiteUID string `json:"site_uid"`
	} `json:"meta"`
}

// Resyncer runs a targeted resource sync, used for webhook follow-ups.
type Resyncer interface {
	SyncResource(ctx context.Context, clinic *models.Clinic, resource models.ResourceType, opts Options) (models.SyncResult, error)
}

// Processor ingests webhook notifications: every event is logged, and when
// the originating clinic can be resolved, a narrow resync of the affected
// resource runs over the recent window.
type Processor struct {
	store    store.Store
	resyncer Resyncer
	window   time.Duration

	now func() time.Time
}

// NewProcessor builds a webhook processor. window bounds the follow-up
// resync; zero defaults to 24 hours.
func NewProcessor(st store.Store, resyncer Resyncer, window time.Duration) *Processor {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Processor{store: st, resyncer: resyncer, window: window, now: time.Now}
}

// resourceFromEvent maps a webhook item type or event prefix onto a
// tracked resource type. Unknown types return ("", false); their events
// are still logged.
func resourceFromEvent(itemType, eventType string) (models.ResourceType, bool) {
	name := itemType
	if name == "" {
		name, _, _ = strings.Cut(eventType, ".")
	}
	switch name {
	case "user":
		return models.ResourceStaff, true
	case "appointment":
		return models.ResourceAppointments, true
	case "consult":
		return models.ResourceConsults, true
	case "invoiceline":
		return models.ResourceInvoiceLines, true
	case "contact":
		return models.ResourceContacts, true
	default:
		return "", false
	}
}

// Process logs the notification and dispatches follow-up syncs. It returns
// how many event rows were logged. Dispatch failures are swallowed: the
// provider gets its acknowledgement either way and the periodic sync will
// reconcile anything missed.
func (p *Processor) Process(ctx context.Context, payload *WebhookPayload, raw json.RawMessage, siteUIDHeader string) (int, error) {
	eventType := payload.Event
	if eventType == "" {
		eventType = "unknown"
	}

	logging.Info().
		Str("event", eventType).
		Int("items", len(payload.Items)).
		Msg("Webhook received")

	// Resolve the originating clinic by site UID. An unknown or missing
	// site still gets its events logged, just without dispatch.
	siteUID := payload.Meta.SiteUID
	if siteUID == "" {
		siteUID = siteUIDHeader
	}
	var clinic *models.Clinic
	if siteUID != "" {
		c, err := p.store.GetClinicBySiteUID(ctx, siteUID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			logging.Warn().Str("site_uid", siteUID).Msg("Webhook from unknown site")
		case err != nil:
			logging.Err(err).Str("site_uid", siteUID).Msg("Clinic lookup failed")
		case !c.Active:
			logging.Warn().Str("site_uid", siteUID).Msg("Webhook from inactive clinic")
		default:
			clinic = c
		}
	}

	events := p.buildEvents(clinic, eventType, payload, raw)
	ids, err := p.store.InsertWebhookEvents(ctx, events)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("rejected").Inc()
		return 0, err
	}
	metrics.WebhookEvents.WithLabelValues("logged").Add(float64(len(ids)))

	if clinic != nil {
		if p.dispatch(ctx, clinic, eventType, payload.Items) {
			if err := p.store.MarkWebhookProcessed(ctx, ids); err != nil {
				logging.Err(err).Msg("Failed to mark webhook events processed")
			}
		}
	}

	return len(ids), nil
}

// buildEvents produces one event row per item, or a single synthetic row
// when the notification carries no items.
func (p *Processor) buildEvents(clinic *models.Clinic, eventType string, payload *WebhookPayload, raw json.RawMessage) []models.WebhookEvent {
	var clinicID *string
	if clinic != nil {
		id := clinic.ID
		clinicID = &id
	}

	prefix, _, _ := strings.Cut(eventType, ".")

	if len(payload.Items) == 0 {
		return []models.WebhookEvent{{
			ClinicID:     clinicID,
			EventType:    eventType,
			ResourceType: prefix,
			Payload:      raw,
		}}
	}

	events := make([]models.WebhookEvent, 0, len(payload.Items))
	for _, item := range payload.Items {
		resourceType := item.Type
		if resourceType == "" {
			resourceType = prefix
		}
		var resourceID *int64
		if item.ID != 0 {
			id := item.ID
			resourceID = &id
		}
		events = append(events, models.WebhookEvent{
			ClinicID:     clinicID,
			EventType:    eventType,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Payload:      raw,
		})
	}
	return events
}

// dispatch runs one narrow resync per distinct tracked resource named in
// the notification. Returns true when every dispatched sync succeeded.
func (p *Processor) dispatch(ctx context.Context, clinic *models.Clinic, eventType string, items []WebhookItem) bool {
	resources := make(map[models.ResourceType]struct{})
	if len(items) == 0 {
		if r, ok := resourceFromEvent("", eventType); ok {
			resources[r] = struct{}{}
		}
	}
	for _, item := range items {
		if r, ok := resourceFromEvent(item.Type, eventType); ok {
			resources[r] = struct{}{}
		}
	}
	if len(resources) == 0 {
		return false
	}

	since := p.now().Add(-p.window)
	ok := true
	for resource := range resources {
		_, err := p.resyncer.SyncResource(ctx, clinic, resource, Options{
			Since:       &since,
			TriggeredBy: "webhook",
		})
		if err != nil {
			logging.Err(err).
				Str("clinic", clinic.Label).
				Str("resource", string(resource)).
				Msg("Webhook-triggered sync failed")
			metrics.WebhookEvents.WithLabelValues("dispatch_failed").Inc()
			ok = false
			continue
		}
		logging.Info().
			Str("clinic", clinic.Label).
			Str("resource", string(resource)).
			Msg("Webhook-triggered sync complete")
		metrics.WebhookEvents.WithLabelValues("dispatched").Inc()
	}
	return ok
}
