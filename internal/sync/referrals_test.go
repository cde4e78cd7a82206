// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/vetbridge/vetbridge/internal/models"
)

func addContact(st *fakeStore, code, source, revenue string, lastVisit *string) {
	c := models.Contact{ClinicID: "clinic-1", ContactCode: code}
	if source != "" {
		c.ReferralSource = strPtr(source)
	}
	if revenue != "" {
		c.RevenueYTD = strPtr(revenue)
	}
	c.LastVisit = lastVisit
	st.contacts[code] = c
}

func TestReferralStatsCaseInsensitiveMatch(t *testing.T) {
	st := newFakeStore()
	st.partners = []models.ReferralPartner{{ID: "p1", HospitalName: "Animal Hospital"}}
	addContact(st, "C1", "Animal Hospital", "100.00", nil)
	addContact(st, "C2", "animal hospital", "50.00", nil)
	addContact(st, "C3", "  ANIMAL HOSPITAL  ", "25.00", nil)

	stats, err := UpdateReferralStats(context.Background(), st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.PartnersUpdated != 1 {
		t.Errorf("expected 1 partner updated, got %d", stats.PartnersUpdated)
	}
	if stats.TotalReferrals != 3 {
		t.Errorf("all case variants must match, got %d referrals", stats.TotalReferrals)
	}
	if stats.TotalRevenue != 175.00 {
		t.Errorf("expected revenue 175.00, got %v", stats.TotalRevenue)
	}
}

func TestReferralStatsLenientRevenue(t *testing.T) {
	st := newFakeStore()
	st.partners = []models.ReferralPartner{{ID: "p1", HospitalName: "Vet Clinic"}}
	addContact(st, "C1", "Vet Clinic", "not-a-number", nil)
	addContact(st, "C2", "Vet Clinic", "200.50", nil)
	addContact(st, "C3", "Vet Clinic", "", nil)

	stats, err := UpdateReferralStats(context.Background(), st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalReferrals != 3 {
		t.Errorf("unparseable revenue still counts the referral, got %d", stats.TotalReferrals)
	}
	if stats.TotalRevenue != 200.50 {
		t.Errorf("unparseable revenue contributes zero, got %v", stats.TotalRevenue)
	}
}

func TestReferralStatsMaxLastVisit(t *testing.T) {
	st := newFakeStore()
	st.partners = []models.ReferralPartner{{ID: "p1", HospitalName: "Vet Clinic"}}
	addContact(st, "C1", "Vet Clinic", "10", strPtr("2026-03-15"))
	addContact(st, "C2", "Vet Clinic", "10", strPtr("2026-07-01"))
	addContact(st, "C3", "Vet Clinic", "10", nil)

	if _, err := UpdateReferralStats(context.Background(), st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := st.partnerStats["p1"]
	lastVisit, _ := got[2].(*string)
	if lastVisit == nil || *lastVisit != "2026-07-01" {
		t.Errorf("expected latest visit date, got %v", lastVisit)
	}
}

func TestReferralStatsEmptyRegistry(t *testing.T) {
	st := newFakeStore()
	addContact(st, "C1", "Animal Hospital", "100", nil)

	stats, err := UpdateReferralStats(context.Background(), st)
	if err != nil {
		t.Fatalf("empty registry must be a successful no-op: %v", err)
	}
	if stats != (models.ReferralStats{}) {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestReferralStatsUnmatchedSourceSkipped(t *testing.T) {
	st := newFakeStore()
	st.partners = []models.ReferralPartner{{ID: "p1", HospitalName: "Vet Clinic"}}
	addContact(st, "C1", "Google", "500", nil)

	stats, err := UpdateReferralStats(context.Background(), st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.PartnersUpdated != 0 {
		t.Errorf("unmatched sources must not update partners, got %+v", stats)
	}
}

func TestReferralStatsPartialUpdateFailure(t *testing.T) {
	st := newFakeStore()
	st.partners = []models.ReferralPartner{
		{ID: "p1", HospitalName: "Clinic One"},
		{ID: "p2", HospitalName: "Clinic Two"},
	}
	st.partnerErr = map[string]error{"p1": errors.New("db error")}
	addContact(st, "C1", "Clinic One", "100", nil)
	addContact(st, "C2", "Clinic Two", "200", nil)

	stats, err := UpdateReferralStats(context.Background(), st)
	if err != nil {
		t.Fatalf("per-partner failures must not fail the update: %v", err)
	}
	if stats.PartnersUpdated != 1 {
		t.Errorf("expected 1 partner updated, got %d", stats.PartnersUpdated)
	}
	if stats.TotalRevenue != 200 {
		t.Errorf("failed partner must not count toward totals, got %v", stats.TotalRevenue)
	}
}
