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
)

// GetToken returns the cached credential for the clinic, or (nil, nil) when
// no row exists.
func (s *Store) GetToken(ctx context.Context, clinicID string) (*models.CachedToken, error) {
	var t models.CachedToken
	err := s.db.QueryRowContext(ctx,
		`SELECT clinic_id, access_token, token_type, expires_at, issued_at
		 FROM provider_tokens WHERE clinic_id = $1`, clinicID).
		Scan(&t.ClinicID, &t.AccessToken, &t.TokenType, &t.ExpiresAt, &t.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	return &t, nil
}

// PutToken overwrites the clinic's cached credential. Concurrent writers
// race and the last write wins.
func (s *Store) PutToken(ctx context.Context, token *models.CachedToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_tokens (clinic_id, access_token, token_type, expires_at, issued_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (clinic_id) DO UPDATE SET
		   access_token = EXCLUDED.access_token,
		   token_type   = EXCLUDED.token_type,
		   expires_at   = EXCLUDED.expires_at,
		   issued_at    = EXCLUDED.issued_at`,
		token.ClinicID, token.AccessToken, token.TokenType, token.ExpiresAt, token.IssuedAt)
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *Store) DeleteToken(ctx context.Context, clinicID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM provider_tokens WHERE clinic_id = $1`, clinicID); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
