// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vetbridge/vetbridge/internal/models"
)

// CreateRun inserts the run in running state and assigns its ID.
func (s *Store) CreateRun(ctx context.Context, run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = models.SyncRunning
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, clinic_id, resource_type, status, triggered_by, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.ClinicID, string(run.Resource), string(run.Status),
		run.TriggeredBy, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// CompleteRun writes the terminal status and counts for the run.
func (s *Store) CompleteRun(ctx context.Context, id string, status models.SyncStatus, result models.SyncResult, errorDetail []byte) error {
	var detail any
	if len(errorDetail) > 0 {
		detail = errorDetail
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET
		   status = $2,
		   records_fetched = $3,
		   records_upserted = $4,
		   records_errored = $5,
		   error_detail = $6,
		   completed_at = now()
		 WHERE id = $1`,
		id, string(status), result.Fetched, result.Upserted, result.Errors, detail)
	if err != nil {
		return fmt.Errorf("failed to complete sync run: %w", err)
	}
	return nil
}

// RecordValidationFailure logs a provider 422 rejection for later diagnosis.
func (s *Store) RecordValidationFailure(ctx context.Context, clinicID, path string, detail []byte) error {
	var d any
	if len(detail) > 0 {
		d = detail
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validation_failures (id, clinic_id, path, detail)
		 VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), clinicID, path, d)
	if err != nil {
		return fmt.Errorf("failed to record validation failure: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. An empty clinicID
// matches all clinics.
func (s *Store) ListRuns(ctx context.Context, clinicID string, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, clinic_id, resource_type, status, records_fetched,
		        records_upserted, records_errored, error_detail, triggered_by,
		        started_at, completed_at
		 FROM sync_runs
		 WHERE ($1 = '' OR clinic_id = $1)
		 ORDER BY started_at DESC
		 LIMIT $2`, clinicID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var out []models.SyncRun
	for rows.Next() {
		var r models.SyncRun
		var resource, status string
		var detail []byte
		if err := rows.Scan(&r.ID, &r.ClinicID, &resource, &status,
			&r.RecordsFetched, &r.RecordsUpserted, &r.RecordsErrored,
			&detail, &r.TriggeredBy, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		r.Resource = models.ResourceType(resource)
		r.Status = models.SyncStatus(status)
		r.ErrorDetail = detail
		out = append(out, r)
	}
	return out, rows.Err()
}
