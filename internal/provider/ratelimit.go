// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vetbridge/vetbridge/internal/logging"
	"github.com/vetbridge/vetbridge/internal/metrics"
)

// Limiter gates outbound provider calls. Wait blocks until a call to the
// given path is allowed under all applicable windows, records the call, and
// returns. It returns early only when ctx is done.
type Limiter interface {
	Wait(ctx context.Context, clinicID, path string) error
}

// LimiterConfig holds the per-minute call ceilings the provider enforces.
type LimiterConfig struct {
	PerEndpoint  int // calls/min per endpoint path
	Global       int // calls/min across all endpoints
	Availability int // calls/min for the availability endpoint
}

// DefaultLimiterConfig matches the provider's published ceilings.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{PerEndpoint: 60, Global: 180, Availability: 300}
}

const (
	limiterWindow = time.Minute
	// Small cushion past the oldest call's expiry so a wakeup never lands
	// inside the closing window.
	limiterBuffer = 50 * time.Millisecond

	availabilityPath = "/ezycab/availability"
)

type clinicWindow struct {
	endpoint map[string][]time.Time
	global   []time.Time
}

// SlidingWindow is an in-memory sliding-window limiter keyed by clinic and
// endpoint path. State resets on process restart, which is acceptable: the
// provider's own limiter is the authority and 429 handling covers the gap.
type SlidingWindow struct {
	cfg LimiterConfig

	mu      sync.Mutex
	clinics map[string]*clinicWindow

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

var _ Limiter = (*SlidingWindow)(nil)

// NewSlidingWindow builds a limiter with the given ceilings. Zero values
// fall back to the defaults.
func NewSlidingWindow(cfg LimiterConfig) *SlidingWindow {
	def := DefaultLimiterConfig()
	if cfg.PerEndpoint <= 0 {
		cfg.PerEndpoint = def.PerEndpoint
	}
	if cfg.Global <= 0 {
		cfg.Global = def.Global
	}
	if cfg.Availability <= 0 {
		cfg.Availability = def.Availability
	}
	return &SlidingWindow{
		cfg:     cfg,
		clinics: make(map[string]*clinicWindow),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *SlidingWindow) window(clinicID string) *clinicWindow {
	w, ok := s.clinics[clinicID]
	if !ok {
		w = &clinicWindow{endpoint: make(map[string][]time.Time)}
		s.clinics[clinicID] = w
	}
	return w
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

func (s *SlidingWindow) endpointLimit(path string) int {
	if strings.Contains(path, availabilityPath) {
		return s.cfg.Availability
	}
	return s.cfg.PerEndpoint
}

// Wait blocks until a call to path is admissible for the clinic, then
// records it against both the endpoint and global windows.
func (s *SlidingWindow) Wait(ctx context.Context, clinicID, path string) error {
	limit := s.endpointLimit(path)
	var waited time.Duration

	for {
		s.mu.Lock()
		now := s.now()
		cutoff := now.Add(-limiterWindow)
		w := s.window(clinicID)
		w.global = prune(w.global, cutoff)
		w.endpoint[path] = prune(w.endpoint[path], cutoff)
		ep := w.endpoint[path]

		if len(ep) < limit && len(w.global) < s.cfg.Global {
			w.global = append(w.global, now)
			w.endpoint[path] = append(ep, now)
			s.mu.Unlock()
			if waited > 0 {
				metrics.RateLimitWait.WithLabelValues(clinicID).Observe(waited.Seconds())
			}
			return nil
		}

		// Wait until the oldest call inside whichever window is full ages
		// out of it.
		oldest := now
		if len(ep) >= limit {
			oldest = ep[0]
		}
		if len(w.global) >= s.cfg.Global && w.global[0].Before(oldest) {
			oldest = w.global[0]
		}
		s.mu.Unlock()

		wait := oldest.Add(limiterWindow).Sub(now) + limiterBuffer
		if wait <= 0 {
			continue
		}
		logging.Debug().
			Str("clinic_id", clinicID).
			Str("path", path).
			Dur("wait", wait).
			Msg("Rate limit reached, waiting")
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
		waited += wait
	}
}
