// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vetbridge/vetbridge/internal/config"
	"github.com/vetbridge/vetbridge/internal/models"
)

func newTestOrchestrator(st *fakeStore, fetcher Fetcher) *Orchestrator {
	return NewOrchestrator(st, fetcher, config.SyncConfig{BatchSize: 200, FailureThreshold: 1.0}, config.ProviderConfig{PageSize: 200})
}

func TestSyncStaffLifecycle(t *testing.T) {
	st := newFakeStore()
	fetcher := newFakeFetcher()
	fetcher.items["/v4/user"] = []json.RawMessage{
		json.RawMessage(`{"user":{"id":1,"first_name":"Dana"}}`),
		json.RawMessage(`{"user":{"id":2,"first_name":"Lee"}}`),
	}
	o := newTestOrchestrator(st, fetcher)

	result, err := o.SyncStaff(context.Background(), syncTestClinic(), Options{TriggeredBy: "manual"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Fetched != 2 || result.Upserted != 2 || result.Errors != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if len(st.staff) != 2 {
		t.Errorf("expected 2 staff rows, got %d", len(st.staff))
	}
	if len(st.runs) != 1 {
		t.Fatalf("expected one audit run, got %d", len(st.runs))
	}
	run := st.runs[0]
	if run.Status != models.SyncCompleted {
		t.Errorf("expected completed run, got %s", run.Status)
	}
	if run.TriggeredBy != "manual" || run.Resource != models.ResourceStaff {
		t.Errorf("run provenance wrong: %+v", run)
	}
	if run.CompletedAt == nil {
		t.Error("run should carry a completion time")
	}
}

func TestSyncIdempotentRerun(t *testing.T) {
	st := newFakeStore()
	fetcher := newFakeFetcher()
	fetcher.items["/v1/consult"] = []json.RawMessage{
		json.RawMessage(`{"consult":{"id":10,"status":"open"}}`),
		json.RawMessage(`{"consult":{"id":11,"status":"closed"}}`),
	}
	o := newTestOrchestrator(st, fetcher)
	clinic := syncTestClinic()

	for i := 0; i < 2; i++ {
		if _, err := o.SyncConsults(context.Background(), clinic, Options{}); err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
	}
	if len(st.consults) != 2 {
		t.Errorf("re-running the same sync must converge, got %d rows", len(st.consults))
	}
}

func TestSyncCompletedWithErrors(t *testing.T) {
	st := newFakeStore()
	st.upsertErr = errors.New("constraint violation")
	fetcher := newFakeFetcher()
	fetcher.items["/v4/user"] = []json.RawMessage{
		json.RawMessage(`{"user":{"id":1}}`),
	}
	o := newTestOrchestrator(st, fetcher)

	result, err := o.SyncStaff(context.Background(), syncTestClinic(), Options{})
	if err != nil {
		t.Fatalf("batch errors must not fail the call: %v", err)
	}
	if result.Fetched != 1 || result.Upserted != 0 || result.Errors != 1 {
		t.Errorf("expected {fetched:1 upserted:0 errors:1}, got %+v", result)
	}
	// The fetch succeeded, so the run completes even though every record
	// errored; the counts are the audit record.
	if st.runs[0].Status != models.SyncCompleted {
		t.Errorf("expected completed run with error counts, got %s", st.runs[0].Status)
	}
}

func TestCompletionPolicy(t *testing.T) {
	cases := []struct {
		name      string
		threshold float64
		result    models.SyncResult
		want      models.SyncStatus
	}{
		{"no records", 1.0, models.SyncResult{}, models.SyncCompleted},
		{"no errors", 1.0, models.SyncResult{Fetched: 10, Upserted: 10}, models.SyncCompleted},
		{"partial errors below threshold", 1.0, models.SyncResult{Fetched: 10, Upserted: 8, Errors: 2}, models.SyncCompleted},
		{"all errored at default threshold", 1.0, models.SyncResult{Fetched: 10, Errors: 10}, models.SyncCompleted},
		{"exactly at threshold completes", 0.5, models.SyncResult{Fetched: 10, Upserted: 5, Errors: 5}, models.SyncCompleted},
		{"over threshold fails", 0.5, models.SyncResult{Fetched: 10, Upserted: 4, Errors: 6}, models.SyncFailed},
		{"zero threshold falls back to default", 0, models.SyncResult{Fetched: 10, Upserted: 8, Errors: 2}, models.SyncCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := CompletionPolicy{FailureThreshold: tc.threshold}
			if got := p.Status(tc.result); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSyncFetchFailureFailsRun(t *testing.T) {
	st := newFakeStore()
	fetcher := newFakeFetcher()
	fetcher.errs["/v2/appointment"] = errors.New("provider down")
	o := newTestOrchestrator(st, fetcher)

	_, err := o.SyncAppointments(context.Background(), syncTestClinic(), Options{})
	if err == nil {
		t.Fatal("expected fetch error to propagate")
	}
	if len(st.runs) != 1 || st.runs[0].Status != models.SyncFailed {
		t.Fatalf("fetch failure must close the run as failed")
	}
	if len(st.runs[0].ErrorDetail) == 0 {
		t.Error("failed run should carry error detail")
	}
}

func TestSyncSincePassesModifiedSince(t *testing.T) {
	st := newFakeStore()
	fetcher := newFakeFetcher()
	o := newTestOrchestrator(st, fetcher)

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if _, err := o.SyncConsults(context.Background(), syncTestClinic(), Options{Since: &since}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := fetcher.params["/v1/consult"].Get("modified_since")
	if got != "1785542400" {
		t.Errorf("expected modified_since in Unix seconds, got %q", got)
	}
}

func TestSyncAllUpdatesReferralsAfterContacts(t *testing.T) {
	st := newFakeStore()
	st.partners = []models.ReferralPartner{{ID: "p1", HospitalName: "Animal Hospital"}}
	fetcher := newFakeFetcher()
	fetcher.items["/v1/contact"] = []json.RawMessage{
		json.RawMessage(`{"contact":{"id":1,"contact_code":"C1","hear_about_option":"animal hospital","revenue_ytd":"100.50"}}`),
	}
	o := newTestOrchestrator(st, fetcher)

	full, err := o.SyncAll(context.Background(), syncTestClinic(), Options{TriggeredBy: "cron"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(full.Results) != 5 {
		t.Errorf("expected results for all 5 resources, got %d", len(full.Results))
	}
	if full.Referrals.PartnersUpdated != 1 {
		t.Errorf("referral rollup should run after contacts, got %+v", full.Referrals)
	}
	if _, ok := st.partnerStats["p1"]; !ok {
		t.Error("partner p1 should have been updated")
	}
}

func TestSyncAllReportsReferralFailure(t *testing.T) {
	st := newFakeStore()
	st.partnerListErr = errors.New("partner registry unavailable")
	fetcher := newFakeFetcher()
	fetcher.items["/v1/contact"] = []json.RawMessage{
		json.RawMessage(`{"contact":{"id":1,"contact_code":"C1"}}`),
	}
	o := newTestOrchestrator(st, fetcher)

	full, err := o.SyncAll(context.Background(), syncTestClinic(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(full.Results) != 5 {
		t.Errorf("resource syncs must still complete, got %d", len(full.Results))
	}
	if full.ReferralsError == "" {
		t.Error("a failed rollup pass must be reported, not folded into empty stats")
	}
	if full.Referrals.PartnersUpdated != 0 {
		t.Errorf("stats must stay zero on failure, got %+v", full.Referrals)
	}
}

func TestSyncAllResourceFailureIsolated(t *testing.T) {
	st := newFakeStore()
	fetcher := newFakeFetcher()
	fetcher.errs["/v2/appointment"] = errors.New("provider down")
	fetcher.items["/v4/user"] = []json.RawMessage{json.RawMessage(`{"user":{"id":1}}`)}
	o := newTestOrchestrator(st, fetcher)

	full, err := o.SyncAll(context.Background(), syncTestClinic(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(full.Results) != 4 {
		t.Errorf("expected 4 successful resources, got %d", len(full.Results))
	}
	if full.Errors[models.ResourceAppointments] == "" {
		t.Error("appointment failure should be reported")
	}
	if len(st.staff) != 1 {
		t.Error("other resources must still land")
	}
}

func TestSyncResourceUnknownType(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), newFakeFetcher())
	if _, err := o.SyncResource(context.Background(), syncTestClinic(), models.ResourceType("bogus"), Options{}); err == nil {
		t.Error("expected error for unknown resource type")
	}
}
