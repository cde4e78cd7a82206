// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package provider

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// TokenResponse is the OAuth token endpoint payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// ListMeta is the pagination header on list responses.
type ListMeta struct {
	Timestamp      string `json:"timestamp"`
	ItemsPageTotal int    `json:"items_page_total"`
	ItemsPageSize  int    `json:"items_page_size"`
	ItemsTotal     int    `json:"items_total"`
	Page           int    `json:"page"`
	PagesTotal     int    `json:"pages_total"`
}

// ListEnvelope is one page of a list endpoint. Items stay raw so each
// resource decoder can apply its own schema, including the optional
// single-key wrapper some endpoints add around every item.
type ListEnvelope struct {
	Meta  ListMeta          `json:"meta"`
	Items []json.RawMessage `json:"items"`
}

// Endpoint paths for the tracked resources. API versions differ per
// resource and are fixed by the provider.
const (
	PathStaff        = "/v4/user"
	PathAppointments = "/v2/appointment"
	PathConsults     = "/v1/consult"
	PathInvoiceLines = "/v1/invoiceline"
	PathContacts     = "/v1/contact"
	PathToken        = "/v1/oauth/access_token"
)

// FlexString decodes a JSON string or number into a string. Some provider
// fields switch between the two across API versions.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// StringPtr returns the value as *string, or nil when empty.
func (f *FlexString) StringPtr() *string {
	if f == nil || *f == "" {
		return nil
	}
	s := string(*f)
	return &s
}

// Float returns the value parsed as a float, or 0 when unparseable.
func (f FlexString) Float() float64 {
	v, err := strconv.ParseFloat(string(f), 64)
	if err != nil {
		return 0
	}
	return v
}

// Wire schemas for the tracked resources, matching the provider's JSON
// field names.

// WireUser is a staff record as served by GET /v4/user.
type WireUser struct {
	ID        int64   `json:"id"`
	Active    *bool   `json:"active"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Role      *string `json:"role"`
}

// WireAppointment is an appointment as served by GET /v2/appointment.
// Start and end times are Unix seconds.
type WireAppointment struct {
	ID              int64   `json:"id"`
	StartAt         *int64  `json:"start_at"`
	EndAt           *int64  `json:"end_at"`
	TypeID          *int64  `json:"appointment_type_id"`
	TypeName        *string `json:"appointment_type_name"`
	StatusID        *int64  `json:"status_id"`
	StatusName      *string `json:"status_name"`
	Description     *string `json:"description"`
	AnimalID        *int64  `json:"animal_id"`
	AnimalName      *string `json:"animal_name"`
	ContactID       *int64  `json:"contact_id"`
	ContactName     *string `json:"contact_name"`
	ResourceID      *int64  `json:"resource_id"`
	ResourceName    *string `json:"resource_name"`
	CreatedByUserID *int64  `json:"created_by_user_id"`
}

// WireConsult is a consult as served by GET /v1/consult.
type WireConsult struct {
	ID            int64   `json:"id"`
	TypeID        *int64  `json:"consult_type_id"`
	TypeName      *string `json:"consult_type_name"`
	Status        *string `json:"status"`
	AnimalID      *int64  `json:"animal_id"`
	AnimalName    *string `json:"animal_name"`
	ContactID     *int64  `json:"contact_id"`
	VetUserID     *int64  `json:"vet_user_id"`
	VetName       *string `json:"vet_name"`
	TechUserID    *int64  `json:"tech_user_id"`
	TechName      *string `json:"tech_name"`
	DateCreated   *string `json:"date_created"`
	DateCompleted *string `json:"date_completed"`
}

// WireInvoiceLine is an invoice line as served by GET /v1/invoiceline.
type WireInvoiceLine struct {
	ID                 int64    `json:"id"`
	InvoiceID          *int64   `json:"invoice_id"`
	LineReference      *string  `json:"invoice_line_reference"`
	DateCreated        *string  `json:"date_created"`
	DateModified       *string  `json:"date_modified"`
	ProductID          *int64   `json:"product_id"`
	ProductName        *string  `json:"product_name"`
	ProductGroup       *string  `json:"product_group"`
	Quantity           *float64 `json:"quantity"`
	UnitPrice          *float64 `json:"unit_price"`
	DiscountPercentage *float64 `json:"discount_percentage"`
	DiscountAmount     *float64 `json:"discount_amount"`
	LineTotal          *float64 `json:"line_total"`
	TotalTax           *float64 `json:"total_tax"`
	TotalEarned        *float64 `json:"total_earned"`
	ContactID          *int64   `json:"contact_id"`
	ContactName        *string  `json:"contact_name"`
	ContactCode        *string  `json:"contact_code"`
	AnimalID           *int64   `json:"animal_id"`
	AnimalName         *string  `json:"animal_name"`
	ConsultID          *int64   `json:"consult_id"`
	StaffUserID        *int64   `json:"staff_user_id"`
	StaffName          *string  `json:"staff_name"`
	CaseOwnerUserID    *int64   `json:"case_owner_user_id"`
	CaseOwnerName      *string  `json:"case_owner_name"`
	Department         *string  `json:"department"`
	Division           *string  `json:"division"`
	Account            *string  `json:"account"`
	InvoiceType        *string  `json:"invoice_type"`
	PaymentTerms       *string  `json:"payment_terms"`
}

// WireContact is a contact as served by GET /v1/contact. RevenueYTD is
// lenient because the provider serves it as a number on some sites and a
// formatted string on others.
type WireContact struct {
	ID              int64       `json:"id"`
	ContactCode     *string     `json:"contact_code"`
	FirstName       *string     `json:"first_name"`
	LastName        *string     `json:"last_name"`
	Email           *string     `json:"email"`
	PhoneMobile     *string     `json:"phone_mobile"`
	AddressCity     *string     `json:"address_physical_city"`
	AddressZip      *string     `json:"address_physical_postcode"`
	IsActive        *bool       `json:"is_active"`
	Division        *string     `json:"division"`
	HearAboutOption *string     `json:"hear_about_option"`
	RevenueYTD      *FlexString `json:"revenue_ytd"`
	LastInvoiced    *string     `json:"last_invoiced_date"`
}
