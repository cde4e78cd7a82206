// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

// Package pg implements the store interfaces on Postgres via the pgx stdlib
// driver.
package pg

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vetbridge/vetbridge/internal/config"
	"github.com/vetbridge/vetbridge/internal/store"
)

// Store is the Postgres-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to Postgres and configures the connection pool.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// schema holds the DDL for every table the sync core touches. Statements are
// idempotent so EnsureSchema can run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS clinics (
    id            TEXT PRIMARY KEY,
    label         TEXT NOT NULL,
    site_uid      TEXT NOT NULL UNIQUE,
    partner_id    TEXT NOT NULL,
    client_id     TEXT NOT NULL,
    client_secret TEXT NOT NULL,
    scope         TEXT NOT NULL,
    base_url      TEXT NOT NULL,
    location_id   TEXT,
    is_active     BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS provider_tokens (
    clinic_id    TEXT PRIMARY KEY REFERENCES clinics(id) ON DELETE CASCADE,
    access_token TEXT NOT NULL,
    token_type   TEXT NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL,
    issued_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_runs (
    id               TEXT PRIMARY KEY,
    clinic_id        TEXT NOT NULL,
    resource_type    TEXT NOT NULL,
    status           TEXT NOT NULL,
    records_fetched  INTEGER NOT NULL DEFAULT 0,
    records_upserted INTEGER NOT NULL DEFAULT 0,
    records_errored  INTEGER NOT NULL DEFAULT 0,
    error_detail     JSONB,
    triggered_by     TEXT NOT NULL DEFAULT 'manual',
    started_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS sync_runs_clinic_started_idx
    ON sync_runs (clinic_id, started_at DESC);

CREATE TABLE IF NOT EXISTS staff (
    clinic_id  TEXT NOT NULL,
    remote_id  BIGINT NOT NULL,
    first_name TEXT,
    last_name  TEXT,
    email      TEXT,
    role       TEXT,
    is_active  BOOLEAN NOT NULL DEFAULT TRUE,
    raw        JSONB,
    synced_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (clinic_id, remote_id)
);

CREATE TABLE IF NOT EXISTS appointments (
    clinic_id          TEXT NOT NULL,
    remote_id          BIGINT NOT NULL,
    start_at           TIMESTAMPTZ,
    end_at             TIMESTAMPTZ,
    type_id            BIGINT,
    type_name          TEXT,
    status_id          BIGINT,
    status_name        TEXT,
    description        TEXT,
    animal_id          BIGINT,
    animal_name        TEXT,
    contact_id         BIGINT,
    contact_name       TEXT,
    resource_id        BIGINT,
    resource_name      TEXT,
    created_by_user_id BIGINT,
    raw                JSONB,
    synced_at          TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (clinic_id, remote_id)
);

CREATE TABLE IF NOT EXISTS consults (
    clinic_id      TEXT NOT NULL,
    remote_id      BIGINT NOT NULL,
    type_id        BIGINT,
    type_name      TEXT,
    status         TEXT,
    animal_id      BIGINT,
    animal_name    TEXT,
    contact_id     BIGINT,
    vet_user_id    BIGINT,
    vet_name       TEXT,
    tech_user_id   BIGINT,
    tech_name      TEXT,
    date_created   TEXT,
    date_completed TEXT,
    raw            JSONB,
    synced_at      TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (clinic_id, remote_id)
);

CREATE TABLE IF NOT EXISTS invoice_lines (
    clinic_id              TEXT NOT NULL,
    invoice_number         TEXT NOT NULL,
    invoice_line_reference TEXT NOT NULL,
    invoice_date           TEXT,
    invoice_date_modified  TEXT,
    client_code            TEXT,
    client_name            TEXT,
    pet_name               TEXT,
    product_name           TEXT,
    product_group          TEXT,
    account                TEXT,
    department             TEXT,
    standard_price         DOUBLE PRECISION,
    discount               DOUBLE PRECISION,
    price_after_discount   DOUBLE PRECISION,
    total_tax_amount       DOUBLE PRECISION,
    total_earned           DOUBLE PRECISION,
    staff_member           TEXT,
    case_owner             TEXT,
    division               TEXT,
    invoice_type           TEXT,
    payment_terms          TEXT,
    consult_id             BIGINT,
    raw                    JSONB,
    synced_at              TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (invoice_number, invoice_line_reference)
);

CREATE TABLE IF NOT EXISTS contacts (
    clinic_id       TEXT NOT NULL,
    contact_code    TEXT NOT NULL,
    first_name      TEXT,
    last_name       TEXT,
    email           TEXT,
    phone_mobile    TEXT,
    address_city    TEXT,
    address_zip     TEXT,
    revenue_ytd     TEXT,
    last_visit      TEXT,
    division        TEXT,
    referral_source TEXT,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    raw             JSONB,
    synced_at       TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (contact_code)
);
CREATE INDEX IF NOT EXISTS contacts_referral_source_idx
    ON contacts (referral_source) WHERE referral_source IS NOT NULL;

CREATE TABLE IF NOT EXISTS referral_partners (
    id                       TEXT PRIMARY KEY,
    hospital_name            TEXT NOT NULL,
    total_referrals_all_time INTEGER NOT NULL DEFAULT 0,
    total_revenue_all_time   DOUBLE PRECISION NOT NULL DEFAULT 0,
    last_contact_date        TEXT,
    updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS validation_failures (
    id          TEXT PRIMARY KEY,
    clinic_id   TEXT NOT NULL,
    path        TEXT NOT NULL,
    detail      JSONB,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS webhook_events (
    id            TEXT PRIMARY KEY,
    clinic_id     TEXT,
    event_type    TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    resource_id   BIGINT,
    payload       JSONB,
    processed     BOOLEAN NOT NULL DEFAULT FALSE,
    processed_at  TIMESTAMPTZ,
    received_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS webhook_events_received_idx
    ON webhook_events (received_at DESC);
`

// EnsureSchema creates any missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
