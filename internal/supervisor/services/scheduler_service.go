// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package services

import (
	"context"
	"time"

	"github.com/vetbridge/vetbridge/internal/logging"
	"github.com/vetbridge/vetbridge/internal/sync"
)

// FleetRunner runs a full sync across every active clinic.
type FleetRunner interface {
	RunAll(ctx context.Context, triggeredBy string) ([]sync.ClinicOutcome, error)
}

// SchedulerService runs the fleet-wide sync on a fixed interval. A failed
// pass is logged and the ticker keeps going; per-clinic failures are already
// isolated inside the runner.
type SchedulerService struct {
	runner   FleetRunner
	interval time.Duration
	name     string
}

// NewSchedulerService creates the periodic sync scheduler.
func NewSchedulerService(runner FleetRunner, interval time.Duration) *SchedulerService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SchedulerService{
		runner:   runner,
		interval: interval,
		name:     "sync-scheduler",
	}
}

// Serve implements suture.Service. The first pass runs after one full
// interval: startup is when operators trigger manual syncs, and the webhook
// receiver covers fresh changes from the moment the server is up.
func (s *SchedulerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", s.interval).Msg("Sync scheduler started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			outcomes, err := s.runner.RunAll(ctx, "scheduler")
			if err != nil {
				logging.Err(err).Msg("Scheduled sync pass failed")
				continue
			}
			failed := 0
			for _, o := range outcomes {
				if o.Error != "" {
					failed++
				}
			}
			logging.Info().
				Int("clinics", len(outcomes)).
				Int("failed", failed).
				Msg("Scheduled sync pass finished")
		}
	}
}

// String implements fmt.Stringer; suture uses it to identify the service.
func (s *SchedulerService) String() string {
	return s.name
}
