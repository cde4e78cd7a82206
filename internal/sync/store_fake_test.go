// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	gosync "sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/vetbridge/vetbridge/internal/models"
	"github.com/vetbridge/vetbridge/internal/store"
)

// fakeStore is an in-memory store.Store that deduplicates on the same
// natural keys as the Postgres implementation.
type fakeStore struct {
	mu gosync.Mutex

	clinics  []models.Clinic
	tokens   map[string]*models.CachedToken
	runs     []*models.SyncRun
	runSeq   int
	failures []string

	staff        map[string]models.StaffMember
	appointments map[string]models.Appointment
	consults     map[string]models.Consult
	invoiceLines map[string]models.InvoiceLine
	contacts     map[string]models.Contact

	partners      []models.ReferralPartner
	partnerStats  map[string][3]any
	webhookEvents []models.WebhookEvent
	processed     map[string]bool

	upsertErr      error // when set, every resource upsert fails
	partnerErr     map[string]error
	partnerListErr error
	clinicListErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tokens:       make(map[string]*models.CachedToken),
		staff:        make(map[string]models.StaffMember),
		appointments: make(map[string]models.Appointment),
		consults:     make(map[string]models.Consult),
		invoiceLines: make(map[string]models.InvoiceLine),
		contacts:     make(map[string]models.Contact),
		partnerStats: make(map[string][3]any),
		processed:    make(map[string]bool),
	}
}

var _ store.Store = (*fakeStore)(nil)

func (f *fakeStore) GetClinic(_ context.Context, id string) (*models.Clinic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.clinics {
		if f.clinics[i].ID == id {
			c := f.clinics[i]
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetClinicBySiteUID(_ context.Context, siteUID string) (*models.Clinic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.clinics {
		if f.clinics[i].SiteUID == siteUID {
			c := f.clinics[i]
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListActiveClinics(_ context.Context) ([]models.Clinic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clinicListErr != nil {
		return nil, f.clinicListErr
	}
	var out []models.Clinic
	for _, c := range f.clinics {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetToken(_ context.Context, clinicID string) (*models.CachedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[clinicID], nil
}

func (f *fakeStore) PutToken(_ context.Context, t *models.CachedToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[t.ClinicID] = t
	return nil
}

func (f *fakeStore) DeleteToken(_ context.Context, clinicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, clinicID)
	return nil
}

func (f *fakeStore) CreateRun(_ context.Context, run *models.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runSeq++
	run.ID = fmt.Sprintf("run-%d", f.runSeq)
	run.Status = models.SyncRunning
	run.StartedAt = time.Now()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) CompleteRun(_ context.Context, id string, status models.SyncStatus, result models.SyncResult, detail []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.runs {
		if r.ID == id {
			now := time.Now()
			r.Status = status
			r.RecordsFetched = result.Fetched
			r.RecordsUpserted = result.Upserted
			r.RecordsErrored = result.Errors
			r.ErrorDetail = json.RawMessage(detail)
			r.CompletedAt = &now
			return nil
		}
	}
	return errors.New("run not found")
}

func (f *fakeStore) RecordValidationFailure(_ context.Context, clinicID, path string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, clinicID+" "+path)
	return nil
}

func (f *fakeStore) ListRuns(_ context.Context, clinicID string, limit int) ([]models.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SyncRun
	for i := len(f.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if clinicID == "" || f.runs[i].ClinicID == clinicID {
			out = append(out, *f.runs[i])
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertStaff(_ context.Context, rows []models.StaffMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, r := range rows {
		f.staff[fmt.Sprintf("%s/%d", r.ClinicID, r.RemoteID)] = r
	}
	return nil
}

func (f *fakeStore) UpsertAppointments(_ context.Context, rows []models.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, r := range rows {
		f.appointments[fmt.Sprintf("%s/%d", r.ClinicID, r.RemoteID)] = r
	}
	return nil
}

func (f *fakeStore) UpsertConsults(_ context.Context, rows []models.Consult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, r := range rows {
		f.consults[fmt.Sprintf("%s/%d", r.ClinicID, r.RemoteID)] = r
	}
	return nil
}

func (f *fakeStore) UpsertInvoiceLines(_ context.Context, rows []models.InvoiceLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, r := range rows {
		f.invoiceLines[r.InvoiceNumber+"/"+r.LineReference] = r
	}
	return nil
}

func (f *fakeStore) UpsertContacts(_ context.Context, rows []models.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, r := range rows {
		f.contacts[r.ContactCode] = r
	}
	return nil
}

func (f *fakeStore) ListReferralContacts(_ context.Context) ([]models.ReferralContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ReferralContact
	for _, c := range f.contacts {
		if c.ReferralSource != nil && *c.ReferralSource != "" {
			rc := models.ReferralContact{ReferralSource: *c.ReferralSource, LastVisit: c.LastVisit}
			if c.RevenueYTD != nil {
				rc.RevenueYTD = *c.RevenueYTD
			}
			out = append(out, rc)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPartners(_ context.Context) ([]models.ReferralPartner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.partnerListErr != nil {
		return nil, f.partnerListErr
	}
	return append([]models.ReferralPartner(nil), f.partners...), nil
}

func (f *fakeStore) UpdatePartnerStats(_ context.Context, id string, referrals int, revenue float64, lastContact *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.partnerErr[id]; err != nil {
		return err
	}
	f.partnerStats[id] = [3]any{referrals, revenue, lastContact}
	return nil
}

func (f *fakeStore) InsertWebhookEvents(_ context.Context, events []models.WebhookEvent) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(events))
	for _, e := range events {
		e.ID = fmt.Sprintf("evt-%d", len(f.webhookEvents)+1)
		f.webhookEvents = append(f.webhookEvents, e)
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (f *fakeStore) MarkWebhookProcessed(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.processed[id] = true
	}
	return nil
}

// fakeFetcher serves scripted items per path.
type fakeFetcher struct {
	mu     gosync.Mutex
	items  map[string][]json.RawMessage
	errs   map[string]error
	params map[string]url.Values
	calls  int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		items:  make(map[string][]json.RawMessage),
		errs:   make(map[string]error),
		params: make(map[string]url.Values),
	}
}

func (f *fakeFetcher) FetchAll(_ context.Context, _ *models.Clinic, path string, params url.Values, _ int) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.params[path] = params
	if err := f.errs[path]; err != nil {
		return nil, err
	}
	return f.items[path], nil
}

func syncTestClinic() *models.Clinic {
	return &models.Clinic{
		ID:      "clinic-1",
		Label:   "Venice",
		SiteUID: "site-venice",
		BaseURL: "https://api.example.test",
		Active:  true,
	}
}

func strPtr(s string) *string { return &s }
