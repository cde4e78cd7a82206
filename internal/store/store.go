// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

// Package store defines the persistence contracts consumed by the sync core.
//
// The backing tables (clinic registry, credential cache, sync audit log,
// resource tables, webhook event log, partner registry) live in a shared
// relational store owned by the wider platform; Vetbridge populates them
// through these interfaces. The production implementation is store/pg.
package store

import (
	"context"
	"errors"

	"github.com/vetbridge/vetbridge/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// TenantStore reads the clinic registry. Clinics are administered outside
// the sync core and are read-only here.
type TenantStore interface {
	GetClinic(ctx context.Context, id string) (*models.Clinic, error)
	GetClinicBySiteUID(ctx context.Context, siteUID string) (*models.Clinic, error)
	ListActiveClinics(ctx context.Context) ([]models.Clinic, error)
}

// TokenStore is the one-row-per-clinic credential cache.
//
// GetToken returns (nil, nil) when no credential is cached. PutToken
// overwrites any prior row for the clinic; concurrent writers race and the
// last write wins.
type TokenStore interface {
	GetToken(ctx context.Context, clinicID string) (*models.CachedToken, error)
	PutToken(ctx context.Context, token *models.CachedToken) error
	DeleteToken(ctx context.Context, clinicID string) error
}

// SyncLogStore is the append-only sync audit log.
type SyncLogStore interface {
	// CreateRun inserts a run in running state and assigns run.ID.
	CreateRun(ctx context.Context, run *models.SyncRun) error

	// CompleteRun writes the terminal status and counts. Called exactly once
	// per run.
	CompleteRun(ctx context.Context, id string, status models.SyncStatus, result models.SyncResult, errorDetail []byte) error

	// RecordValidationFailure logs a provider 422 rejection so the request
	// shape can be diagnosed after the fact.
	RecordValidationFailure(ctx context.Context, clinicID, path string, detail []byte) error

	// ListRuns returns the most recent runs, newest first. An empty clinicID
	// matches all clinics.
	ListRuns(ctx context.Context, clinicID string, limit int) ([]models.SyncRun, error)
}

// ResourceStore persists normalized resource rows. Every Upsert method is
// idempotent: re-writing identical rows converges on the natural key instead
// of inserting duplicates.
type ResourceStore interface {
	UpsertStaff(ctx context.Context, rows []models.StaffMember) error
	UpsertAppointments(ctx context.Context, rows []models.Appointment) error
	UpsertConsults(ctx context.Context, rows []models.Consult) error
	UpsertInvoiceLines(ctx context.Context, rows []models.InvoiceLine) error
	UpsertContacts(ctx context.Context, rows []models.Contact) error

	// ListReferralContacts returns contacts carrying a non-null referral
	// source label, for the referral aggregator.
	ListReferralContacts(ctx context.Context) ([]models.ReferralContact, error)
}

// PartnerStore reads the partner registry and writes the three rollup fields
// the aggregator owns.
type PartnerStore interface {
	ListPartners(ctx context.Context) ([]models.ReferralPartner, error)
	UpdatePartnerStats(ctx context.Context, id string, referrals int, revenue float64, lastContact *string) error
}

// WebhookStore is the append-only webhook event log.
type WebhookStore interface {
	// InsertWebhookEvents logs the events and returns their assigned IDs in
	// the same order.
	InsertWebhookEvents(ctx context.Context, events []models.WebhookEvent) ([]string, error)
	MarkWebhookProcessed(ctx context.Context, ids []string) error
}

// Store is the full persistence surface the sync core depends on.
type Store interface {
	TenantStore
	TokenStore
	SyncLogStore
	ResourceStore
	PartnerStore
	WebhookStore
}
