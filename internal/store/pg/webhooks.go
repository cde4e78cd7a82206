// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vetbridge/vetbridge/internal/models"
)

// InsertWebhookEvents logs the events and returns their assigned IDs in the
// same order.
func (s *Store) InsertWebhookEvents(ctx context.Context, events []models.WebhookEvent) ([]string, error) {
	if len(events) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(events))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO webhook_events (id, clinic_id, event_type, resource_type,
			   resource_id, payload, received_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
		if err != nil {
			return fmt.Errorf("failed to prepare webhook insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range events {
			id := e.ID
			if id == "" {
				id = uuid.NewString()
			}
			received := e.ReceivedAt
			if received.IsZero() {
				received = time.Now().UTC()
			}
			var payload any
			if len(e.Payload) > 0 {
				payload = []byte(e.Payload)
			}
			if _, err := stmt.ExecContext(ctx, id, e.ClinicID, e.EventType,
				e.ResourceType, e.ResourceID, payload, received); err != nil {
				return fmt.Errorf("failed to insert webhook event: %w", err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) MarkWebhookProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhook_events SET processed = TRUE, processed_at = now()
		 WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to mark webhooks processed: %w", err)
	}
	return nil
}
