// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package sync

import (
	"context"
	"time"

	"github.com/vetbridge/vetbridge/internal/logging"
	"github.com/vetbridge/vetbridge/internal/models"
	"github.com/vetbridge/vetbridge/internal/store"
)

// FullSyncer runs a full sync for one clinic. Satisfied by Orchestrator.
type FullSyncer interface {
	SyncAll(ctx context.Context, clinic *models.Clinic, opts Options) (*FullResult, error)
}

// ClinicOutcome is the per-clinic result of a fleet run.
type ClinicOutcome struct {
	Clinic string `json:"clinic"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Runner drives full syncs across the whole clinic fleet. Clinics run
// sequentially so their provider rate windows never collide, and a failure
// in one clinic never stops the rest.
type Runner struct {
	store    store.TenantStore
	syncer   FullSyncer
	lookback time.Duration

	now func() time.Time
}

// NewRunner builds a fleet runner. lookback bounds the incremental window
// of each scheduled run; zero defaults to 6 hours, generous enough to
// overlap the previous run.
func NewRunner(st store.TenantStore, syncer FullSyncer, lookback time.Duration) *Runner {
	if lookback <= 0 {
		lookback = 6 * time.Hour
	}
	return &Runner{store: st, syncer: syncer, lookback: lookback, now: time.Now}
}

// RunAll syncs every active clinic and reports per-clinic outcomes. The
// returned error covers only the clinic listing itself.
func (r *Runner) RunAll(ctx context.Context, triggeredBy string) ([]ClinicOutcome, error) {
	clinics, err := r.store.ListActiveClinics(ctx)
	if err != nil {
		return nil, err
	}
	if len(clinics) == 0 {
		logging.Info().Msg("No active clinics to sync")
		return nil, nil
	}

	since := r.now().Add(-r.lookback)
	outcomes := make([]ClinicOutcome, 0, len(clinics))
	succeeded := 0

	for i := range clinics {
		clinic := &clinics[i]
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}

		_, err := r.syncer.SyncAll(ctx, clinic, Options{
			Since:       &since,
			TriggeredBy: triggeredBy,
		})
		if err != nil {
			logging.Err(err).Str("clinic", clinic.Label).Msg("Fleet sync failed for clinic")
			outcomes = append(outcomes, ClinicOutcome{
				Clinic: clinic.Label,
				Status: "failed",
				Error:  err.Error(),
			})
			continue
		}
		succeeded++
		outcomes = append(outcomes, ClinicOutcome{Clinic: clinic.Label, Status: "completed"})
	}

	logging.Info().
		Int("total", len(clinics)).
		Int("succeeded", succeeded).
		Int("failed", len(clinics)-succeeded).
		Msg("Fleet sync complete")
	return outcomes, nil
}
