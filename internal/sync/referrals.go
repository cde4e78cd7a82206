// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package sync

import (
	"context"
	"strconv"
	"strings"

	"github.com/vetbridge/vetbridge/internal/logging"
	"github.com/vetbridge/vetbridge/internal/models"
	"github.com/vetbridge/vetbridge/internal/store"
)

// referralStore is the slice of the store the aggregator needs.
type referralStore interface {
	ListReferralContacts(ctx context.Context) ([]models.ReferralContact, error)
	ListPartners(ctx context.Context) ([]models.ReferralPartner, error)
	UpdatePartnerStats(ctx context.Context, id string, referrals int, revenue float64, lastContact *string) error
}

var _ referralStore = (store.Store)(nil)

type partnerRollup struct {
	referrals int
	revenue   float64
	lastVisit *string
}

// UpdateReferralStats cross-references contact referral sources against the
// partner registry and rewrites each matched partner's rollup fields.
//
// Matching is case-insensitive on the trimmed hospital name. Revenue parses
// leniently: an unparseable revenue_ytd counts the referral but contributes
// zero revenue. An empty partner registry is a successful no-op.
func UpdateReferralStats(ctx context.Context, st referralStore) (models.ReferralStats, error) {
	logging.Info().Msg("Updating referral partner stats from contact data")

	partners, err := st.ListPartners(ctx)
	if err != nil {
		return models.ReferralStats{}, err
	}
	if len(partners) == 0 {
		logging.Info().Msg("No referral partners registered, skipping referral stats update")
		return models.ReferralStats{}, nil
	}

	partnerByName := make(map[string]string, len(partners))
	for _, p := range partners {
		name := strings.ToLower(strings.TrimSpace(p.HospitalName))
		if name != "" {
			partnerByName[name] = p.ID
		}
	}

	contacts, err := st.ListReferralContacts(ctx)
	if err != nil {
		return models.ReferralStats{}, err
	}

	rollups := make(map[string]*partnerRollup)
	for _, c := range contacts {
		source := strings.ToLower(strings.TrimSpace(c.ReferralSource))
		if source == "" {
			continue
		}
		partnerID, ok := partnerByName[source]
		if !ok {
			continue
		}

		r := rollups[partnerID]
		if r == nil {
			r = &partnerRollup{}
			rollups[partnerID] = r
		}
		r.referrals++
		if v, err := strconv.ParseFloat(strings.TrimSpace(c.RevenueYTD), 64); err == nil {
			r.revenue += v
		}
		if c.LastVisit != nil && *c.LastVisit != "" {
			if r.lastVisit == nil || *c.LastVisit > *r.lastVisit {
				v := *c.LastVisit
				r.lastVisit = &v
			}
		}
	}

	var stats models.ReferralStats
	for partnerID, r := range rollups {
		if err := st.UpdatePartnerStats(ctx, partnerID, r.referrals, r.revenue, r.lastVisit); err != nil {
			logging.Err(err).Str("partner_id", partnerID).Msg("Failed to update partner stats")
			continue
		}
		stats.PartnersUpdated++
		stats.TotalReferrals += r.referrals
		stats.TotalRevenue += r.revenue
	}

	logging.Info().
		Int("partners_updated", stats.PartnersUpdated).
		Int("total_referrals", stats.TotalReferrals).
		Float64("total_revenue", stats.TotalRevenue).
		Msg("Referral partner stats updated")
	return stats, nil
}
