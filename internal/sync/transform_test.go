// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package sync

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

var syncedAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func TestDecodeStaffWrappedAndBare(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"user":{"id":7,"first_name":"Dana","active":false}}`),
		json.RawMessage(`{"id":8,"first_name":"Lee"}`),
	}
	rows, errored := decodeStaff("clinic-1", items, syncedAt)
	if errored != 0 {
		t.Fatalf("expected no errors, got %d", errored)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].RemoteID != 7 || rows[0].Active {
		t.Errorf("wrapped item decoded wrong: %+v", rows[0])
	}
	if rows[1].RemoteID != 8 || !rows[1].Active {
		t.Errorf("bare item should default active to true: %+v", rows[1])
	}
}

func TestDecodeStaffRejectsMissingID(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"user":{"first_name":"NoID"}}`),
		json.RawMessage(`{"id":0,"first_name":"ZeroID"}`),
		json.RawMessage(`not json`),
		json.RawMessage(`{"id":9}`),
	}
	rows, errored := decodeStaff("clinic-1", items, syncedAt)
	if errored != 3 {
		t.Errorf("expected 3 errored items, got %d", errored)
	}
	if len(rows) != 1 || rows[0].RemoteID != 9 {
		t.Errorf("expected only the valid row to survive, got %+v", rows)
	}
}

func TestDecodeAppointmentsUnixTimes(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"appointment":{"id":42,"start_at":1785585600,"end_at":1785589200,"appointment_type_name":"Surgery"}}`),
		json.RawMessage(`{"id":43,"start_at":0}`),
	}
	rows, errored := decodeAppointments("clinic-1", items, syncedAt)
	if errored != 0 {
		t.Fatalf("expected no errors, got %d", errored)
	}
	want := time.Unix(1785585600, 0).UTC()
	if rows[0].StartAt == nil || !rows[0].StartAt.Equal(want) {
		t.Errorf("expected start %v, got %v", want, rows[0].StartAt)
	}
	if rows[1].StartAt != nil {
		t.Errorf("zero timestamp should map to nil, got %v", rows[1].StartAt)
	}
}

func TestDecodeInvoiceLineKeys(t *testing.T) {
	t.Run("explicit reference", func(t *testing.T) {
		items := []json.RawMessage{
			json.RawMessage(`{"invoiceline":{"id":5,"invoice_id":900,"invoice_line_reference":"L-2","contact_code":"C100","unit_price":50.5,"line_total":45.0}}`),
		}
		rows, errored := decodeInvoiceLines("clinic-1", items, syncedAt)
		if errored != 0 || len(rows) != 1 {
			t.Fatalf("expected 1 row, got %d rows %d errors", len(rows), errored)
		}
		r := rows[0]
		if r.InvoiceNumber != "900" || r.LineReference != "L-2" {
			t.Errorf("wrong key: %s/%s", r.InvoiceNumber, r.LineReference)
		}
		if r.ClientCode == nil || *r.ClientCode != "C100" {
			t.Errorf("expected contact code C100, got %v", r.ClientCode)
		}
		if r.StandardPrice == nil || *r.StandardPrice != 50.5 {
			t.Errorf("unit_price should map to standard price")
		}
		// total_earned absent, falls back to line_total
		if r.TotalEarned == nil || *r.TotalEarned != 45.0 {
			t.Errorf("expected total earned fallback to line_total, got %v", r.TotalEarned)
		}
	})

	t.Run("fallback keys", func(t *testing.T) {
		items := []json.RawMessage{
			json.RawMessage(`{"id":6,"invoice_id":901,"contact_id":777}`),
		}
		rows, errored := decodeInvoiceLines("clinic-1", items, syncedAt)
		if errored != 0 || len(rows) != 1 {
			t.Fatalf("expected 1 row, got %d rows %d errors", len(rows), errored)
		}
		if rows[0].LineReference != "6" {
			t.Errorf("line reference should fall back to remote id, got %q", rows[0].LineReference)
		}
		if rows[0].ClientCode == nil || *rows[0].ClientCode != "777" {
			t.Errorf("client code should fall back to contact id, got %v", rows[0].ClientCode)
		}
	})

	t.Run("missing invoice id rejected", func(t *testing.T) {
		items := []json.RawMessage{
			json.RawMessage(`{"id":7,"product_name":"Vaccine"}`),
		}
		rows, errored := decodeInvoiceLines("clinic-1", items, syncedAt)
		if len(rows) != 0 || errored != 1 {
			t.Errorf("row without invoice_id must be rejected, got %d rows %d errors", len(rows), errored)
		}
	})
}

func TestDecodeContacts(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"contact":{"id":1,"contact_code":"C1","hear_about_option":"Animal Hospital","revenue_ytd":1250.75,"last_invoiced_date":"2026-07-01"}}`),
		json.RawMessage(`{"contact":{"id":2,"revenue_ytd":"980.25"}}`),
	}
	rows, errored := decodeContacts("clinic-1", items, syncedAt)
	if errored != 0 {
		t.Fatalf("expected no errors, got %d", errored)
	}
	if rows[0].ReferralSource == nil || *rows[0].ReferralSource != "Animal Hospital" {
		t.Errorf("hear_about_option should map to referral source")
	}
	if rows[0].RevenueYTD == nil || *rows[0].RevenueYTD != "1250.75" {
		t.Errorf("numeric revenue should decode to string, got %v", rows[0].RevenueYTD)
	}
	if rows[0].LastVisit == nil || *rows[0].LastVisit != "2026-07-01" {
		t.Errorf("last_invoiced_date should map to last visit")
	}
	if rows[1].ContactCode != "2" {
		t.Errorf("contact code should fall back to remote id, got %q", rows[1].ContactCode)
	}
	if rows[1].RevenueYTD == nil || *rows[1].RevenueYTD != "980.25" {
		t.Errorf("string revenue should pass through, got %v", rows[1].RevenueYTD)
	}
}
