// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vetbridge/vetbridge/internal/models"
)

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) UpsertStaff(ctx context.Context, rows []models.StaffMember) error {
	if len(rows) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO staff (clinic_id, remote_id, first_name, last_name, email, role, is_active, raw, synced_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (clinic_id, remote_id) DO UPDATE SET
			   first_name = EXCLUDED.first_name,
			   last_name  = EXCLUDED.last_name,
			   email      = EXCLUDED.email,
			   role       = EXCLUDED.role,
			   is_active  = EXCLUDED.is_active,
			   raw        = EXCLUDED.raw,
			   synced_at  = EXCLUDED.synced_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare staff upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.ClinicID, r.RemoteID,
				r.FirstName, r.LastName, r.Email, r.Role, r.Active,
				[]byte(r.Raw), r.SyncedAt); err != nil {
				return fmt.Errorf("failed to upsert staff %d: %w", r.RemoteID, err)
			}
		}
		return nil
	})
}

func (s *Store) UpsertAppointments(ctx context.Context, rows []models.Appointment) error {
	if len(rows) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO appointments (clinic_id, remote_id, start_at, end_at,
			   type_id, type_name, status_id, status_name, description,
			   animal_id, animal_name, contact_id, contact_name,
			   resource_id, resource_name, created_by_user_id, raw, synced_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			 ON CONFLICT (clinic_id, remote_id) DO UPDATE SET
			   start_at = EXCLUDED.start_at,
			   end_at = EXCLUDED.end_at,
			   type_id = EXCLUDED.type_id,
			   type_name = EXCLUDED.type_name,
			   status_id = EXCLUDED.status_id,
			   status_name = EXCLUDED.status_name,
			   description = EXCLUDED.description,
			   animal_id = EXCLUDED.animal_id,
			   animal_name = EXCLUDED.animal_name,
			   contact_id = EXCLUDED.contact_id,
			   contact_name = EXCLUDED.contact_name,
			   resource_id = EXCLUDED.resource_id,
			   resource_name = EXCLUDED.resource_name,
			   created_by_user_id = EXCLUDED.created_by_user_id,
			   raw = EXCLUDED.raw,
			   synced_at = EXCLUDED.synced_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare appointment upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.ClinicID, r.RemoteID,
				r.StartAt, r.EndAt, r.TypeID, r.TypeName, r.StatusID,
				r.StatusName, r.Description, r.AnimalID, r.AnimalName,
				r.ContactID, r.ContactName, r.ResourceID, r.ResourceName,
				r.CreatedByUserID, []byte(r.Raw), r.SyncedAt); err != nil {
				return fmt.Errorf("failed to upsert appointment %d: %w", r.RemoteID, err)
			}
		}
		return nil
	})
}

func (s *Store) UpsertConsults(ctx context.Context, rows []models.Consult) error {
	if len(rows) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO consults (clinic_id, remote_id, type_id, type_name,
			   status, animal_id, animal_name, contact_id, vet_user_id, vet_name,
			   tech_user_id, tech_name, date_created, date_completed, raw, synced_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			 ON CONFLICT (clinic_id, remote_id) DO UPDATE SET
			   type_id = EXCLUDED.type_id,
			   type_name = EXCLUDED.type_name,
			   status = EXCLUDED.status,
			   animal_id = EXCLUDED.animal_id,
			   animal_name = EXCLUDED.animal_name,
			   contact_id = EXCLUDED.contact_id,
			   vet_user_id = EXCLUDED.vet_user_id,
			   vet_name = EXCLUDED.vet_name,
			   tech_user_id = EXCLUDED.tech_user_id,
			   tech_name = EXCLUDED.tech_name,
			   date_created = EXCLUDED.date_created,
			   date_completed = EXCLUDED.date_completed,
			   raw = EXCLUDED.raw,
			   synced_at = EXCLUDED.synced_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare consult upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.ClinicID, r.RemoteID,
				r.TypeID, r.TypeName, r.Status, r.AnimalID, r.AnimalName,
				r.ContactID, r.VetUserID, r.VetName, r.TechUserID, r.TechName,
				r.DateCreated, r.DateCompleted, []byte(r.Raw), r.SyncedAt); err != nil {
				return fmt.Errorf("failed to upsert consult %d: %w", r.RemoteID, err)
			}
		}
		return nil
	})
}

func (s *Store) UpsertInvoiceLines(ctx context.Context, rows []models.InvoiceLine) error {
	if len(rows) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO invoice_lines (clinic_id, invoice_number, invoice_line_reference,
			   invoice_date, invoice_date_modified, client_code, client_name, pet_name,
			   product_name, product_group, account, department, standard_price,
			   discount, price_after_discount, total_tax_amount, total_earned,
			   staff_member, case_owner, division, invoice_type, payment_terms,
			   consult_id, raw, synced_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			   $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
			 ON CONFLICT (invoice_number, invoice_line_reference) DO UPDATE SET
			   clinic_id = EXCLUDED.clinic_id,
			   invoice_date = EXCLUDED.invoice_date,
			   invoice_date_modified = EXCLUDED.invoice_date_modified,
			   client_code = EXCLUDED.client_code,
			   client_name = EXCLUDED.client_name,
			   pet_name = EXCLUDED.pet_name,
			   product_name = EXCLUDED.product_name,
			   product_group = EXCLUDED.product_group,
			   account = EXCLUDED.account,
			   department = EXCLUDED.department,
			   standard_price = EXCLUDED.standard_price,
			   discount = EXCLUDED.discount,
			   price_after_discount = EXCLUDED.price_after_discount,
			   total_tax_amount = EXCLUDED.total_tax_amount,
			   total_earned = EXCLUDED.total_earned,
			   staff_member = EXCLUDED.staff_member,
			   case_owner = EXCLUDED.case_owner,
			   division = EXCLUDED.division,
			   invoice_type = EXCLUDED.invoice_type,
			   payment_terms = EXCLUDED.payment_terms,
			   consult_id = EXCLUDED.consult_id,
			   raw = EXCLUDED.raw,
			   synced_at = EXCLUDED.synced_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare invoice line upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.ClinicID, r.InvoiceNumber,
				r.LineReference, r.InvoiceDate, r.DateModified, r.ClientCode,
				r.ClientName, r.PetName, r.ProductName, r.ProductGroup,
				r.Account, r.Department, r.StandardPrice, r.Discount,
				r.PriceAfterDisc, r.TotalTax, r.TotalEarned, r.StaffMember,
				r.CaseOwner, r.Division, r.InvoiceType, r.PaymentTerms,
				r.ConsultRemoteID, []byte(r.Raw), r.SyncedAt); err != nil {
				return fmt.Errorf("failed to upsert invoice line %s/%s: %w",
					r.InvoiceNumber, r.LineReference, err)
			}
		}
		return nil
	})
}

func (s *Store) UpsertContacts(ctx context.Context, rows []models.Contact) error {
	if len(rows) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO contacts (clinic_id, contact_code, first_name, last_name,
			   email, phone_mobile, address_city, address_zip, revenue_ytd,
			   last_visit, division, referral_source, is_active, raw, synced_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			 ON CONFLICT (contact_code) DO UPDATE SET
			   clinic_id = EXCLUDED.clinic_id,
			   first_name = EXCLUDED.first_name,
			   last_name = EXCLUDED.last_name,
			   email = EXCLUDED.email,
			   phone_mobile = EXCLUDED.phone_mobile,
			   address_city = EXCLUDED.address_city,
			   address_zip = EXCLUDED.address_zip,
			   revenue_ytd = EXCLUDED.revenue_ytd,
			   last_visit = EXCLUDED.last_visit,
			   division = EXCLUDED.division,
			   referral_source = EXCLUDED.referral_source,
			   is_active = EXCLUDED.is_active,
			   raw = EXCLUDED.raw,
			   synced_at = EXCLUDED.synced_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare contact upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.ClinicID, r.ContactCode,
				r.FirstName, r.LastName, r.Email, r.PhoneMobile, r.AddressCity,
				r.AddressZip, r.RevenueYTD, r.LastVisit, r.Division,
				r.ReferralSource, r.Active, []byte(r.Raw), r.SyncedAt); err != nil {
				return fmt.Errorf("failed to upsert contact %s: %w", r.ContactCode, err)
			}
		}
		return nil
	})
}

// ListReferralContacts returns contacts that carry a referral source label.
func (s *Store) ListReferralContacts(ctx context.Context) ([]models.ReferralContact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT referral_source, COALESCE(revenue_ytd, ''), last_visit
		 FROM contacts
		 WHERE referral_source IS NOT NULL AND referral_source <> ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to list referral contacts: %w", err)
	}
	defer rows.Close()

	var out []models.ReferralContact
	for rows.Next() {
		var c models.ReferralContact
		if err := rows.Scan(&c.ReferralSource, &c.RevenueYTD, &c.LastVisit); err != nil {
			return nil, fmt.Errorf("failed to scan referral contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
