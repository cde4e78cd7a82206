// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vetbridge/vetbridge/internal/models"
	"github.com/vetbridge/vetbridge/internal/store"
)

const clinicColumns = `id, label, site_uid, partner_id, client_id, client_secret,
	scope, base_url, location_id, is_active`

func scanClinic(row interface{ Scan(...any) error }) (*models.Clinic, error) {
	var c models.Clinic
	err := row.Scan(&c.ID, &c.Label, &c.SiteUID, &c.PartnerID, &c.ClientID,
		&c.ClientSecret, &c.Scope, &c.BaseURL, &c.LocationID, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan clinic: %w", err)
	}
	return &c, nil
}

func (s *Store) GetClinic(ctx context.Context, id string) (*models.Clinic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+clinicColumns+` FROM clinics WHERE id = $1`, id)
	return scanClinic(row)
}

func (s *Store) GetClinicBySiteUID(ctx context.Context, siteUID string) (*models.Clinic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+clinicColumns+` FROM clinics WHERE site_uid = $1`, siteUID)
	return scanClinic(row)
}

func (s *Store) ListActiveClinics(ctx context.Context) ([]models.Clinic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+clinicColumns+` FROM clinics WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clinics: %w", err)
	}
	defer rows.Close()

	var out []models.Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
