// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package sync

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/vetbridge/vetbridge/internal/models"
	"github.com/vetbridge/vetbridge/internal/provider"
)

// Some list endpoints wrap every item in a single-key object named after
// the resource ({"user": {...}}); others serve bare objects. unwrap returns
// the inner object when the wrapper key is present, otherwise the item
// itself.
func unwrap(item json.RawMessage, key string) json.RawMessage {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(item, &wrapper); err != nil {
		return item
	}
	if inner, ok := wrapper[key]; ok && len(inner) > 0 && inner[0] == '{' {
		return inner
	}
	return item
}

func unixPtr(ts *int64) *time.Time {
	if ts == nil || *ts == 0 {
		return nil
	}
	t := time.Unix(*ts, 0).UTC()
	return &t
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func int64String(v *int64) *string {
	if v == nil || *v == 0 {
		return nil
	}
	s := strconv.FormatInt(*v, 10)
	return &s
}

// decodeStaff normalizes /v4/user items. Items that fail to decode or
// carry no id are counted as errored and dropped.
func decodeStaff(clinicID string, items []json.RawMessage, syncedAt time.Time) ([]models.StaffMember, int) {
	rows := make([]models.StaffMember, 0, len(items))
	errored := 0
	for _, item := range items {
		raw := unwrap(item, "user")
		var u provider.WireUser
		if err := json.Unmarshal(raw, &u); err != nil || u.ID == 0 {
			errored++
			continue
		}
		rows = append(rows, models.StaffMember{
			ClinicID:  clinicID,
			RemoteID:  u.ID,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Email:     u.Email,
			Role:      u.Role,
			Active:    boolOr(u.Active, true),
			Raw:       raw,
			SyncedAt:  syncedAt,
		})
	}
	return rows, errored
}

// decodeAppointments normalizes /v2/appointment items. Start and end times
// arrive as Unix seconds.
func decodeAppointments(clinicID string, items []json.RawMessage, syncedAt time.Time) ([]models.Appointment, int) {
	rows := make([]models.Appointment, 0, len(items))
	errored := 0
	for _, item := range items {
		raw := unwrap(item, "appointment")
		var a provider.WireAppointment
		if err := json.Unmarshal(raw, &a); err != nil || a.ID == 0 {
			errored++
			continue
		}
		rows = append(rows, models.Appointment{
			ClinicID:        clinicID,
			RemoteID:        a.ID,
			StartAt:         unixPtr(a.StartAt),
			EndAt:           unixPtr(a.EndAt),
			TypeID:          a.TypeID,
			TypeName:        a.TypeName,
			StatusID:        a.StatusID,
			StatusName:      a.StatusName,
			Description:     a.Description,
			AnimalID:        a.AnimalID,
			AnimalName:      a.AnimalName,
			ContactID:       a.ContactID,
			ContactName:     a.ContactName,
			ResourceID:      a.ResourceID,
			ResourceName:    a.ResourceName,
			CreatedByUserID: a.CreatedByUserID,
			Raw:             raw,
			SyncedAt:        syncedAt,
		})
	}
	return rows, errored
}

// decodeConsults normalizes /v1/consult items.
func decodeConsults(clinicID string, items []json.RawMessage, syncedAt time.Time) ([]models.Consult, int) {
	rows := make([]models.Consult, 0, len(items))
	errored := 0
	for _, item := range items {
		raw := unwrap(item, "consult")
		var c provider.WireConsult
		if err := json.Unmarshal(raw, &c); err != nil || c.ID == 0 {
			errored++
			continue
		}
		rows = append(rows, models.Consult{
			ClinicID:      clinicID,
			RemoteID:      c.ID,
			TypeID:        c.TypeID,
			TypeName:      c.TypeName,
			Status:        c.Status,
			AnimalID:      c.AnimalID,
			AnimalName:    c.AnimalName,
			ContactID:     c.ContactID,
			VetUserID:     c.VetUserID,
			VetName:       c.VetName,
			TechUserID:    c.TechUserID,
			TechName:      c.TechName,
			DateCreated:   c.DateCreated,
			DateCompleted: c.DateCompleted,
			Raw:           raw,
			SyncedAt:      syncedAt,
		})
	}
	return rows, errored
}

// decodeInvoiceLines normalizes /v1/invoiceline items. The dedup key is
// invoice_number plus invoice_line_reference; rows that cannot produce both
// are errored. The line reference falls back to the remote id, and the
// client code to the contact id, mirroring how upstream exports fill gaps.
func decodeInvoiceLines(clinicID string, items []json.RawMessage, syncedAt time.Time) ([]models.InvoiceLine, int) {
	rows := make([]models.InvoiceLine, 0, len(items))
	errored := 0
	for _, item := range items {
		raw := unwrap(item, "invoiceline")
		var il provider.WireInvoiceLine
		if err := json.Unmarshal(raw, &il); err != nil || il.ID == 0 {
			errored++
			continue
		}
		invoiceNumber := int64String(il.InvoiceID)
		if invoiceNumber == nil {
			errored++
			continue
		}
		lineRef := il.LineReference
		if lineRef == nil || *lineRef == "" {
			s := strconv.FormatInt(il.ID, 10)
			lineRef = &s
		}
		clientCode := il.ContactCode
		if clientCode == nil || *clientCode == "" {
			clientCode = int64String(il.ContactID)
		}
		discount := il.DiscountPercentage
		if discount == nil {
			discount = il.DiscountAmount
		}
		totalEarned := il.TotalEarned
		if totalEarned == nil {
			totalEarned = il.LineTotal
		}
		rows = append(rows, models.InvoiceLine{
			ClinicID:        clinicID,
			InvoiceNumber:   *invoiceNumber,
			LineReference:   *lineRef,
			InvoiceDate:     il.DateCreated,
			DateModified:    il.DateModified,
			ClientCode:      clientCode,
			ClientName:      il.ContactName,
			PetName:         il.AnimalName,
			ProductName:     il.ProductName,
			ProductGroup:    il.ProductGroup,
			Account:         il.Account,
			Department:      il.Department,
			StandardPrice:   il.UnitPrice,
			Discount:        discount,
			PriceAfterDisc:  il.LineTotal,
			TotalTax:        il.TotalTax,
			TotalEarned:     totalEarned,
			StaffMember:     il.StaffName,
			CaseOwner:       il.CaseOwnerName,
			Division:        il.Division,
			InvoiceType:     il.InvoiceType,
			PaymentTerms:    il.PaymentTerms,
			ConsultRemoteID: il.ConsultID,
			Raw:             raw,
			SyncedAt:        syncedAt,
		})
	}
	return rows, errored
}

// decodeContacts normalizes /v1/contact items. The contact code falls back
// to the remote id. revenue_ytd stays a string; the referral aggregator
// owns the lenient numeric parse.
func decodeContacts(clinicID string, items []json.RawMessage, syncedAt time.Time) ([]models.Contact, int) {
	rows := make([]models.Contact, 0, len(items))
	errored := 0
	for _, item := range items {
		raw := unwrap(item, "contact")
		var c provider.WireContact
		if err := json.Unmarshal(raw, &c); err != nil || c.ID == 0 {
			errored++
			continue
		}
		code := c.ContactCode
		if code == nil || *code == "" {
			s := strconv.FormatInt(c.ID, 10)
			code = &s
		}
		rows = append(rows, models.Contact{
			ClinicID:       clinicID,
			ContactCode:    *code,
			FirstName:      c.FirstName,
			LastName:       c.LastName,
			Email:          c.Email,
			PhoneMobile:    c.PhoneMobile,
			AddressCity:    c.AddressCity,
			AddressZip:     c.AddressZip,
			RevenueYTD:     c.RevenueYTD.StringPtr(),
			LastVisit:      c.LastInvoiced,
			Division:       c.Division,
			ReferralSource: c.HearAboutOption,
			Active:         boolOr(c.IsActive, true),
			Raw:            raw,
			SyncedAt:       syncedAt,
		})
	}
	return rows, errored
}
