// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

// Package models defines the domain types shared across Vetbridge: clinics,
// cached credentials, sync runs, normalized resource rows, webhook events,
// and referral partner rollups.
package models

import (
	"time"

	"github.com/goccy/go-json"
)

// ResourceType identifies a category of remote data tracked by the sync core.
type ResourceType string

const (
	ResourceStaff        ResourceType = "staff"
	ResourceAppointments ResourceType = "appointments"
	ResourceConsults     ResourceType = "consults"
	ResourceInvoiceLines ResourceType = "invoice_lines"
	ResourceContacts     ResourceType = "contacts"

	// ResourceFull is not a resource table; it marks a full multi-resource
	// sync in trigger requests and audit rows.
	ResourceFull ResourceType = "full"
)

// TrackedResources lists every resource type the orchestrator syncs, in no
// particular order.
var TrackedResources = []ResourceType{
	ResourceStaff,
	ResourceAppointments,
	ResourceConsults,
	ResourceInvoiceLines,
	ResourceContacts,
}

// Valid reports whether r names a syncable resource type (including "full").
func (r ResourceType) Valid() bool {
	switch r {
	case ResourceStaff, ResourceAppointments, ResourceConsults,
		ResourceInvoiceLines, ResourceContacts, ResourceFull:
		return true
	}
	return false
}

// SyncStatus is the lifecycle state of a sync run audit entry.
type SyncStatus string

const (
	SyncRunning   SyncStatus = "running"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// Clinic is one remote practice-management tenant. Rows are administered
// outside the sync core and are read-only here.
type Clinic struct {
	ID           string  `json:"id"`
	Label        string  `json:"label"`
	SiteUID      string  `json:"site_uid"`
	PartnerID    string  `json:"partner_id"`
	ClientID     string  `json:"client_id"`
	ClientSecret string  `json:"-"`
	Scope        string  `json:"scope"`
	BaseURL      string  `json:"base_url"`
	LocationID   *string `json:"location_id,omitempty"`
	Active       bool    `json:"is_active"`
}

// CachedToken is the single cached bearer credential for a clinic.
type CachedToken struct {
	ClinicID    string    `json:"clinic_id"`
	AccessToken string    `json:"-"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	IssuedAt    time.Time `json:"issued_at"`
}

// SyncRun is one audit-log entry: exactly one per orchestrator invocation.
type SyncRun struct {
	ID              string          `json:"id"`
	ClinicID        string          `json:"clinic_id"`
	Resource        ResourceType    `json:"resource_type"`
	Status          SyncStatus      `json:"status"`
	RecordsFetched  int             `json:"records_fetched"`
	RecordsUpserted int             `json:"records_upserted"`
	RecordsErrored  int             `json:"records_errored"`
	ErrorDetail     json.RawMessage `json:"error_detail,omitempty"`
	TriggeredBy     string          `json:"triggered_by"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// SyncResult summarizes one resource sync for the caller.
type SyncResult struct {
	Fetched  int `json:"fetched"`
	Upserted int `json:"upserted"`
	Errors   int `json:"errors"`
}

// Add accumulates another result into r.
func (r *SyncResult) Add(other SyncResult) {
	r.Fetched += other.Fetched
	r.Upserted += other.Upserted
	r.Errors += other.Errors
}

// StaffMember is a normalized remote staff record, keyed (clinic, remote id).
type StaffMember struct {
	ClinicID  string          `json:"clinic_id"`
	RemoteID  int64           `json:"remote_id"`
	FirstName *string         `json:"first_name"`
	LastName  *string         `json:"last_name"`
	Email     *string         `json:"email"`
	Role      *string         `json:"role"`
	Active    bool            `json:"is_active"`
	Raw       json.RawMessage `json:"-"`
	SyncedAt  time.Time       `json:"synced_at"`
}

// Appointment is a normalized remote appointment, keyed (clinic, remote id).
type Appointment struct {
	ClinicID        string          `json:"clinic_id"`
	RemoteID        int64           `json:"remote_id"`
	StartAt         *time.Time      `json:"start_at"`
	EndAt           *time.Time      `json:"end_at"`
	TypeID          *int64          `json:"type_id"`
	TypeName        *string         `json:"type_name"`
	StatusID        *int64          `json:"status_id"`
	StatusName      *string         `json:"status_name"`
	Description     *string         `json:"description"`
	AnimalID        *int64          `json:"animal_id"`
	AnimalName      *string         `json:"animal_name"`
	ContactID       *int64          `json:"contact_id"`
	ContactName     *string         `json:"contact_name"`
	ResourceID      *int64          `json:"resource_id"`
	ResourceName    *string         `json:"resource_name"`
	CreatedByUserID *int64          `json:"created_by_user_id"`
	Raw             json.RawMessage `json:"-"`
	SyncedAt        time.Time       `json:"synced_at"`
}

// Consult is a normalized remote clinical consult, keyed (clinic, remote id).
type Consult struct {
	ClinicID      string          `json:"clinic_id"`
	RemoteID      int64           `json:"remote_id"`
	TypeID        *int64          `json:"consult_type_id"`
	TypeName      *string         `json:"consult_type_name"`
	Status        *string         `json:"status"`
	AnimalID      *int64          `json:"animal_id"`
	AnimalName    *string         `json:"animal_name"`
	ContactID     *int64          `json:"contact_id"`
	VetUserID     *int64          `json:"vet_user_id"`
	VetName       *string         `json:"vet_name"`
	TechUserID    *int64          `json:"tech_user_id"`
	TechName      *string         `json:"tech_name"`
	DateCreated   *string         `json:"date_created"`
	DateCompleted *string         `json:"date_completed"`
	Raw           json.RawMessage `json:"-"`
	SyncedAt      time.Time       `json:"synced_at"`
}

// InvoiceLine is a normalized remote invoice line. The upsert key is the
// composite (invoice number, line reference) rather than the remote row id,
// so API-sourced lines converge with lines imported from clinic reports.
type InvoiceLine struct {
	ClinicID        string          `json:"clinic_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	LineReference   string          `json:"invoice_line_reference"`
	InvoiceDate     *string         `json:"invoice_date"`
	DateModified    *string         `json:"invoice_date_modified"`
	ClientCode      *string         `json:"client_code"`
	ClientName      *string         `json:"client_name"`
	PetName         *string         `json:"pet_name"`
	ProductName     *string         `json:"product_name"`
	ProductGroup    *string         `json:"product_group"`
	Account         *string         `json:"account"`
	Department      *string         `json:"department"`
	StandardPrice   *float64        `json:"standard_price"`
	Discount        *float64        `json:"discount"`
	PriceAfterDisc  *float64        `json:"price_after_discount"`
	TotalTax        *float64        `json:"total_tax_amount"`
	TotalEarned     *float64        `json:"total_earned"`
	StaffMember     *string         `json:"staff_member"`
	CaseOwner       *string         `json:"case_owner"`
	Division        *string         `json:"division"`
	InvoiceType     *string         `json:"invoice_type"`
	PaymentTerms    *string         `json:"payment_terms"`
	ConsultRemoteID *int64          `json:"consult_id"`
	Raw             json.RawMessage `json:"-"`
	SyncedAt        time.Time       `json:"synced_at"`
}

// Contact is a normalized remote client contact, keyed by the remote contact
// code. RevenueYTD stays a string: the provider sends it inconsistently and
// the referral aggregator owns the lenient numeric parse.
type Contact struct {
	ClinicID       string          `json:"clinic_id"`
	ContactCode    string          `json:"contact_code"`
	FirstName      *string         `json:"first_name"`
	LastName       *string         `json:"last_name"`
	Email          *string         `json:"email"`
	PhoneMobile    *string         `json:"phone_mobile"`
	AddressCity    *string         `json:"address_city"`
	AddressZip     *string         `json:"address_zip"`
	RevenueYTD     *string         `json:"revenue_ytd"`
	LastVisit      *string         `json:"last_visit"`
	Division       *string         `json:"division"`
	ReferralSource *string         `json:"referral_source"`
	Active         bool            `json:"is_active"`
	Raw            json.RawMessage `json:"-"`
	SyncedAt       time.Time       `json:"synced_at"`
}

// ReferralContact is the projection of Contact the referral aggregator reads:
// only rows carrying a non-null referral source label.
type ReferralContact struct {
	ReferralSource string  `json:"referral_source"`
	RevenueYTD     string  `json:"revenue_ytd"`
	LastVisit      *string `json:"last_visit"`
}

// ReferralPartner is a partner registry row. The registry is owned by the
// collaborator domain; the sync core only rewrites the three rollup fields.
type ReferralPartner struct {
	ID              string  `json:"id"`
	HospitalName    string  `json:"hospital_name"`
	TotalReferrals  int     `json:"total_referrals_all_time"`
	TotalRevenue    float64 `json:"total_revenue_all_time"`
	LastContactDate *string `json:"last_contact_date"`
}

// ReferralStats summarizes one aggregation pass.
type ReferralStats struct {
	PartnersUpdated int     `json:"partners_updated"`
	TotalReferrals  int     `json:"total_referrals"`
	TotalRevenue    float64 `json:"total_revenue"`
}

// WebhookEvent is one logged inbound change notification.
type WebhookEvent struct {
	ID           string          `json:"id"`
	ClinicID     *string         `json:"clinic_id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *int64          `json:"resource_id"`
	Payload      json.RawMessage `json:"payload"`
	Processed    bool            `json:"processed"`
	ProcessedAt  *time.Time      `json:"processed_at"`
	ReceivedAt   time.Time       `json:"received_at"`
}
