// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package pg

import (
	"context"
	"fmt"

	"github.com/vetbridge/vetbridge/internal/models"
)

func (s *Store) ListPartners(ctx context.Context) ([]models.ReferralPartner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hospital_name, total_referrals_all_time,
		        total_revenue_all_time, last_contact_date
		 FROM referral_partners ORDER BY hospital_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	defer rows.Close()

	var out []models.ReferralPartner
	for rows.Next() {
		var p models.ReferralPartner
		if err := rows.Scan(&p.ID, &p.HospitalName, &p.TotalReferrals,
			&p.TotalRevenue, &p.LastContactDate); err != nil {
			return nil, fmt.Errorf("failed to scan partner: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePartnerStats writes the three rollup fields the aggregator owns.
// Other partner fields are managed elsewhere and left untouched.
func (s *Store) UpdatePartnerStats(ctx context.Context, id string, referrals int, revenue float64, lastContact *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE referral_partners SET
		   total_referrals_all_time = $2,
		   total_revenue_all_time   = $3,
		   last_contact_date        = $4,
		   updated_at               = now()
		 WHERE id = $1`,
		id, referrals, revenue, lastContact)
	if err != nil {
		return fmt.Errorf("failed to update partner stats: %w", err)
	}
	return nil
}
