// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

// Package sync pulls resources from the practice management API and
// reconciles them into the shared store. Each resource sync writes an
// audit run, upserts in fixed-size batches, and reports per-record
// dispositions.
package sync

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	gosync "sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/vetbridge/vetbridge/internal/config"
	"github.com/vetbridge/vetbridge/internal/logging"
	"github.com/vetbridge/vetbridge/internal/metrics"
	"github.com/vetbridge/vetbridge/internal/models"
	"github.com/vetbridge/vetbridge/internal/provider"
	"github.com/vetbridge/vetbridge/internal/store"
)

// Fetcher walks every page of a provider list endpoint.
type Fetcher interface {
	FetchAll(ctx context.Context, clinic *models.Clinic, path string, params url.Values, pageSize int) ([]json.RawMessage, error)
}

var _ Fetcher = (*provider.Client)(nil)

// Options adjust a single sync invocation.
type Options struct {
	// Since restricts the fetch to records modified after this time.
	// Nil fetches everything.
	Since *time.Time

	// TriggeredBy is recorded in the audit run: manual, cron, webhook.
	TriggeredBy string
}

func (o Options) triggeredBy() string {
	if o.TriggeredBy == "" {
		return "manual"
	}
	return o.TriggeredBy
}

func (o Options) params() url.Values {
	v := url.Values{}
	if o.Since != nil {
		v.Set("modified_since", strconv.FormatInt(o.Since.Unix(), 10))
	}
	return v
}

// CompletionPolicy decides the terminal status of a run that fetched
// records but failed to land some of them. A run fails only when the
// errored share exceeds the threshold; at or below it the run completes
// and the error counts stand as the record. The default threshold of 1.0
// can never be exceeded, so upsert errors alone never fail a run; only a
// failed fetch does.
type CompletionPolicy struct {
	FailureThreshold float64
}

// Status returns the terminal status for the given counts.
func (p CompletionPolicy) Status(result models.SyncResult) models.SyncStatus {
	if result.Fetched == 0 || result.Errors == 0 {
		return models.SyncCompleted
	}
	threshold := p.FailureThreshold
	if threshold <= 0 {
		threshold = 1.0
	}
	if float64(result.Errors)/float64(result.Fetched) > threshold {
		return models.SyncFailed
	}
	return models.SyncCompleted
}

// Orchestrator coordinates resource syncs for a clinic.
type Orchestrator struct {
	store   store.Store
	fetcher Fetcher
	policy  CompletionPolicy

	batchSize int
	pageSize  int

	now func() time.Time
}

// NewOrchestrator builds an orchestrator from the sync configuration.
func NewOrchestrator(st store.Store, fetcher Fetcher, syncCfg config.SyncConfig, providerCfg config.ProviderConfig) *Orchestrator {
	batchSize := syncCfg.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	pageSize := providerCfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Orchestrator{
		store:     st,
		fetcher:   fetcher,
		policy:    CompletionPolicy{FailureThreshold: syncCfg.FailureThreshold},
		batchSize: batchSize,
		pageSize:  pageSize,
		now:       time.Now,
	}
}

// upsertBatches writes rows in fixed-size chunks. A failed chunk counts
// every row in it as errored and does not stop later chunks.
func upsertBatches[T any](ctx context.Context, rows []T, batchSize int, resource models.ResourceType, upsert func(context.Context, []T) error) (upserted, errored int) {
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[i:end]
		if err := upsert(ctx, chunk); err != nil {
			uerr := &provider.UpsertError{Resource: string(resource), Batch: i / batchSize, Err: err}
			logging.Err(uerr).
				Str("resource", string(resource)).
				Int("batch", i/batchSize).
				Msg("Batch upsert failed")
			errored += len(chunk)
			continue
		}
		upserted += len(chunk)
	}
	return upserted, errored
}

// syncResource is the shared run lifecycle: open an audit run, fetch,
// decode, upsert in batches, close the run with the policy's status. The
// decode callback returns how many rows it kept and how many it rejected.
func (o *Orchestrator) syncResource(
	ctx context.Context,
	clinic *models.Clinic,
	resource models.ResourceType,
	opts Options,
	path string,
	land func(ctx context.Context, items []json.RawMessage, syncedAt time.Time) (kept int, upserted int, errored int),
) (models.SyncResult, error) {
	run := &models.SyncRun{
		ClinicID:    clinic.ID,
		Resource:    resource,
		TriggeredBy: opts.triggeredBy(),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return models.SyncResult{}, fmt.Errorf("failed to open sync run: %w", err)
	}

	start := o.now()
	items, err := o.fetcher.FetchAll(ctx, clinic, path, opts.params(), o.pageSize)
	if err != nil {
		detail, _ := json.Marshal(map[string]string{"message": err.Error()})
		if cerr := o.store.CompleteRun(ctx, run.ID, models.SyncFailed, models.SyncResult{}, detail); cerr != nil {
			logging.Err(cerr).Str("run_id", run.ID).Msg("Failed to close failed sync run")
		}
		metrics.SyncRuns.WithLabelValues(string(resource), "failed").Inc()
		return models.SyncResult{}, err
	}

	syncedAt := o.now().UTC()
	_, upserted, errored := land(ctx, items, syncedAt)

	result := models.SyncResult{
		Fetched:  len(items),
		Upserted: upserted,
		Errors:   errored,
	}
	status := o.policy.Status(result)

	if err := o.store.CompleteRun(ctx, run.ID, status, result, nil); err != nil {
		logging.Err(err).Str("run_id", run.ID).Msg("Failed to close sync run")
	}

	metrics.SyncRuns.WithLabelValues(string(resource), string(status)).Inc()
	metrics.SyncRecords.WithLabelValues(string(resource), "fetched").Add(float64(result.Fetched))
	metrics.SyncRecords.WithLabelValues(string(resource), "upserted").Add(float64(result.Upserted))
	metrics.SyncRecords.WithLabelValues(string(resource), "errored").Add(float64(result.Errors))
	metrics.SyncDuration.WithLabelValues(string(resource)).Observe(o.now().Sub(start).Seconds())

	logging.Info().
		Str("clinic", clinic.Label).
		Str("resource", string(resource)).
		Str("status", string(status)).
		Int("fetched", result.Fetched).
		Int("upserted", result.Upserted).
		Int("errors", result.Errors).
		Msg("Resource sync finished")
	return result, nil
}

// SyncStaff reconciles /v4/user into the staff table.
func (o *Orchestrator) SyncStaff(ctx context.Context, clinic *models.Clinic, opts Options) (models.SyncResult, error) {
	return o.syncResource(ctx, clinic, models.ResourceStaff, opts, provider.PathStaff,
		func(ctx context.Context, items []json.RawMessage, syncedAt time.Time) (int, int, int) {
			rows, decodeErrs := decodeStaff(clinic.ID, items, syncedAt)
			upserted, errored := upsertBatches(ctx, rows, o.batchSize, models.ResourceStaff, o.store.UpsertStaff)
			return len(rows), upserted, decodeErrs + errored
		})
}

// SyncAppointments reconciles /v2/appointment into the appointments table.
func (o *Orchestrator) SyncAppointments(ctx context.Context, clinic *models.Clinic, opts Options) (models.SyncResult, error) {
	return o.syncResource(ctx, clinic, models.ResourceAppointments, opts, provider.PathAppointments,
		func(ctx context.Context, items []json.RawMessage, syncedAt time.Time) (int, int, int) {
			rows, decodeErrs := decodeAppointments(clinic.ID, items, syncedAt)
			upserted, errored := upsertBatches(ctx, rows, o.batchSize, models.ResourceAppointments, o.store.UpsertAppointments)
			return len(rows), upserted, decodeErrs + errored
		})
}

// SyncConsults reconciles /v1/consult into the consults table.
func (o *Orchestrator) SyncConsults(ctx context.Context, clinic *models.Clinic, opts Options) (models.SyncResult, error) {
	return o.syncResource(ctx, clinic, models.ResourceConsults, opts, provider.PathConsults,
		func(ctx context.Context, items []json.RawMessage, syncedAt time.Time) (int, int, int) {
			rows, decodeErrs := decodeConsults(clinic.ID, items, syncedAt)
			upserted, errored := upsertBatches(ctx, rows, o.batchSize, models.ResourceConsults, o.store.UpsertConsults)
			return len(rows), upserted, decodeErrs + errored
		})
}

// SyncInvoiceLines reconciles /v1/invoiceline into the invoice_lines table.
func (o *Orchestrator) SyncInvoiceLines(ctx context.Context, clinic *models.Clinic, opts Options) (models.SyncResult, error) {
	return o.syncResource(ctx, clinic, models.ResourceInvoiceLines, opts, provider.PathInvoiceLines,
		func(ctx context.Context, items []json.RawMessage, syncedAt time.Time) (int, int, int) {
			rows, decodeErrs := decodeInvoiceLines(clinic.ID, items, syncedAt)
			upserted, errored := upsertBatches(ctx, rows, o.batchSize, models.ResourceInvoiceLines, o.store.UpsertInvoiceLines)
			return len(rows), upserted, decodeErrs + errored
		})
}

// SyncContacts reconciles /v1/contact into the contacts table.
func (o *Orchestrator) SyncContacts(ctx context.Context, clinic *models.Clinic, opts Options) (models.SyncResult, error) {
	return o.syncResource(ctx, clinic, models.ResourceContacts, opts, provider.PathContacts,
		func(ctx context.Context, items []json.RawMessage, syncedAt time.Time) (int, int, int) {
			rows, decodeErrs := decodeContacts(clinic.ID, items, syncedAt)
			upserted, errored := upsertBatches(ctx, rows, o.batchSize, models.ResourceContacts, o.store.UpsertContacts)
			return len(rows), upserted, decodeErrs + errored
		})
}

// SyncResource dispatches a single resource sync by type.
func (o *Orchestrator) SyncResource(ctx context.Context, clinic *models.Clinic, resource models.ResourceType, opts Options) (models.SyncResult, error) {
	switch resource {
	case models.ResourceStaff:
		return o.SyncStaff(ctx, clinic, opts)
	case models.ResourceAppointments:
		return o.SyncAppointments(ctx, clinic, opts)
	case models.ResourceConsults:
		return o.SyncConsults(ctx, clinic, opts)
	case models.ResourceInvoiceLines:
		return o.SyncInvoiceLines(ctx, clinic, opts)
	case models.ResourceContacts:
		return o.SyncContacts(ctx, clinic, opts)
	default:
		return models.SyncResult{}, fmt.Errorf("unknown resource type %q", resource)
	}
}

// FullResult is the outcome of a full sync across every tracked resource.
// ReferralsError distinguishes a failed rollup pass from one that matched
// no partners.
type FullResult struct {
	Results        map[models.ResourceType]models.SyncResult `json:"results"`
	Referrals      models.ReferralStats                      `json:"referrals"`
	ReferralsError string                                    `json:"referrals_error,omitempty"`
	Errors         map[models.ResourceType]string            `json:"errors,omitempty"`
}

// SyncAll runs every tracked resource concurrently, then updates referral
// partner rollups once contacts have landed. A failed resource does not
// stop the others; its error is reported alongside the rest.
func (o *Orchestrator) SyncAll(ctx context.Context, clinic *models.Clinic, opts Options) (*FullResult, error) {
	logging.Info().Str("clinic", clinic.Label).Msg("Starting full sync")

	type outcome struct {
		resource models.ResourceType
		result   models.SyncResult
		err      error
	}

	syncs := map[models.ResourceType]func(context.Context, *models.Clinic, Options) (models.SyncResult, error){
		models.ResourceStaff:        o.SyncStaff,
		models.ResourceAppointments: o.SyncAppointments,
		models.ResourceConsults:     o.SyncConsults,
		models.ResourceInvoiceLines: o.SyncInvoiceLines,
		models.ResourceContacts:     o.SyncContacts,
	}

	outcomes := make(chan outcome, len(syncs))
	var wg gosync.WaitGroup
	for resource, fn := range syncs {
		wg.Add(1)
		go func(resource models.ResourceType, fn func(context.Context, *models.Clinic, Options) (models.SyncResult, error)) {
			defer wg.Done()
			result, err := fn(ctx, clinic, opts)
			outcomes <- outcome{resource: resource, result: result, err: err}
		}(resource, fn)
	}
	wg.Wait()
	close(outcomes)

	full := &FullResult{Results: make(map[models.ResourceType]models.SyncResult)}
	contactsOK := false
	for oc := range outcomes {
		if oc.err != nil {
			if full.Errors == nil {
				full.Errors = make(map[models.ResourceType]string)
			}
			full.Errors[oc.resource] = oc.err.Error()
			continue
		}
		full.Results[oc.resource] = oc.result
		if oc.resource == models.ResourceContacts {
			contactsOK = true
		}
	}

	// Referral rollups read the contacts table, so they only run after a
	// successful contact sync.
	if contactsOK {
		stats, err := UpdateReferralStats(ctx, o.store)
		if err != nil {
			logging.Err(err).Str("clinic", clinic.Label).Msg("Referral stats update failed")
			full.ReferralsError = err.Error()
		} else {
			full.Referrals = stats
		}
	}

	logging.Info().
		Str("clinic", clinic.Label).
		Int("resources_ok", len(full.Results)).
		Int("resources_failed", len(full.Errors)).
		Int("partners_updated", full.Referrals.PartnersUpdated).
		Msg("Full sync complete")
	return full, nil
}
