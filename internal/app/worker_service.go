package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/example/propenrich/internal/address"
	"github.com/example/propenrich/internal/core/enrichment"
	coreowner "github.com/example/propenrich/internal/core/owner"
	"github.com/example/propenrich/internal/core/placeholder"
	"github.com/example/propenrich/internal/ctxutil"
	"github.com/example/propenrich/internal/logging"
	"github.com/example/propenrich/internal/metrics"
	"github.com/example/propenrich/internal/ports/primary"
	"github.com/example/propenrich/internal/ports/secondary"
)

// usageWindow is the trailing window the daily cap applies to.
const usageWindow = 24 * time.Hour

// reasonUnavailable is reported for rows returned to the queue untried.
const reasonUnavailable = "lookup unavailable, returned to queue"

// WorkerSettings gates the worker.
type WorkerSettings struct {
	Enabled   bool
	HasAPIKey bool
	DailyCap  int
}

// WorkerServiceImpl implements the WorkerService interface.
type WorkerServiceImpl struct {
	lookup    secondary.OwnerLookup
	stateRepo secondary.EnrichmentStateRepository
	ownerRepo secondary.OwnerRepository
	settings  WorkerSettings
	now       func() time.Time
}

// NewWorkerService creates a new WorkerService with injected dependencies.
// lookup may be nil when the worker is disabled.
func NewWorkerService(
	lookup secondary.OwnerLookup,
	stateRepo secondary.EnrichmentStateRepository,
	ownerRepo secondary.OwnerRepository,
	settings WorkerSettings,
) *WorkerServiceImpl {
	return &WorkerServiceImpl{
		lookup:    lookup,
		stateRepo: stateRepo,
		ownerRepo: ownerRepo,
		settings:  settings,
		now:       time.Now,
	}
}

// RunBatch performs one worker pass.
func (s *WorkerServiceImpl) RunBatch(ctx context.Context, n int) (*primary.BatchResult, error) {
	runID := ulid.Make().String()
	ctx = ctxutil.WithRunID(ctx, runID)
	log := logging.Ctx(ctx)

	result := &primary.BatchResult{RunID: runID, DailyCap: s.settings.DailyCap}
	skip := func(reason string) (*primary.BatchResult, error) {
		result.Skipped = true
		result.SkipReason = reason
		metrics.WorkerBatches.WithLabelValues("skipped").Inc()
		log.Info().Str("reason", reason).Msg("worker batch skipped")
		return result, nil
	}

	// 1. Gate on configuration
	if !s.settings.Enabled || s.lookup == nil {
		return skip(primary.SkipDisabled)
	}
	if !s.settings.HasAPIKey {
		return skip(primary.SkipMissingAPIKey)
	}

	// 2. Budget: an unknown usage count is treated as an exhausted one
	now := s.now()
	used, err := s.stateRepo.CountExternalCallsSince(ctx, now.Add(-usageWindow))
	if err != nil {
		log.Error().Err(err).Msg("failed to count lookup usage")
		return skip(primary.SkipUsageUnknown)
	}
	result.UsageBefore = used

	remaining := enrichment.RemainingBudget(used, s.settings.DailyCap)
	if remaining == 0 {
		return skip(primary.SkipDailyCap)
	}
	if n > remaining {
		n = remaining
	}

	// 3. Claim
	claimed, err := s.stateRepo.ClaimBatch(ctx, n, now)
	if err != nil {
		metrics.WorkerBatches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}
	result.Claimed = len(claimed)
	if len(claimed) == 0 {
		return skip(primary.SkipNothingQueued)
	}

	log.Info().
		Int("claimed", len(claimed)).
		Int("usage", used).
		Int("daily_cap", s.settings.DailyCap).
		Msg("worker batch started")

	// 4. Process each claimed row
	for i, rec := range claimed {
		outcome, err := s.process(ctx, rec, result)
		if errors.Is(err, secondary.ErrLookupUnavailable) {
			log.Warn().Err(err).Int("returned", len(claimed)-i).Msg("lookup unavailable, returning rows to queue")
			s.release(ctx, result, claimed[i:])
			break
		}
		if err != nil {
			// The row stays in checking; reset-stuck recovers it.
			log.Error().Err(err).Str("hash", rec.AddressHash).Msg("failed to record lookup outcome")
			result.Errors++
			result.Outcomes = append(result.Outcomes, primary.AddressOutcome{
				AddressHash: rec.AddressHash,
				Address:     rec.NormalizedAddress,
				Status:      string(enrichment.StatusChecking),
				Reason:      err.Error(),
			})
			continue
		}
		result.Outcomes = append(result.Outcomes, *outcome)
	}

	metrics.WorkerBatches.WithLabelValues("completed").Inc()
	log.Info().
		Int("enriched", result.Enriched).
		Int("no_match", result.NoMatch).
		Int("no_contact", result.NoContact).
		Int("errors", result.Errors).
		Msg("worker batch finished")

	return result, nil
}

// process looks one address up and records the outcome. It returns
// ErrLookupUnavailable untouched so the caller can stop the batch.
func (s *WorkerServiceImpl) process(ctx context.Context, rec *secondary.EnrichmentStateRecord, result *primary.BatchResult) (*primary.AddressOutcome, error) {
	log := logging.Ctx(ctx).With().Str("hash", rec.AddressHash).Logger()
	outcome := &primary.AddressOutcome{AddressHash: rec.AddressHash, Address: rec.NormalizedAddress}
	apiSource := string(coreowner.SourceExternalAPI)

	parts := address.Split(rec.NormalizedAddress)
	resp, err := s.lookup.Lookup(ctx, secondary.LookupRequest{
		Street: parts.Street,
		City:   parts.City,
		State:  parts.State,
		Zip:    parts.Zip,
	})
	if errors.Is(err, secondary.ErrLookupUnavailable) {
		return nil, err
	}
	if err != nil {
		reason := err.Error()
		var statusErr *secondary.LookupStatusError
		if errors.As(err, &statusErr) {
			reason = statusErr.Text
		}
		log.Warn().Err(err).Msg("lookup failed")
		s.countOutcome(enrichment.StatusNoOwnerData, "error")
		return s.fail(ctx, outcome, reason, &result.Errors)
	}

	// First candidate only
	if len(resp.Persons) == 0 || !resp.Persons[0].Matched {
		s.countOutcome(enrichment.StatusNoOwnerData, "no_match")
		return s.fail(ctx, outcome, enrichment.ReasonNoMatch, &result.NoMatch)
	}
	person := resp.Persons[0]

	name := person.OwnerName
	if name == "" {
		name = person.PersonName
	}
	contact := placeholder.Clean(name, firstOf(person.Emails), firstOf(person.Phones))
	if !contact.HasAny() {
		s.countOutcome(enrichment.StatusNoOwnerData, "no_contact")
		return s.fail(ctx, outcome, enrichment.ReasonNoValidContact, &result.NoContact)
	}

	// Owner data first, then the status; repair closes the gap if the second write fails
	if _, _, err := mergeOwner(ctx, s.ownerRepo, ownerWrite{
		hash:          rec.AddressHash,
		fields:        coreowner.Fields{Name: contact.Name, Email: contact.Email, Phone: contact.Phone},
		source:        coreowner.SourceExternalAPI,
		listingSource: rec.ListingSource,
		raw:           resp.Raw,
	}, s.now()); err != nil {
		return nil, err
	}

	missing := enrichment.MissingFrom(contact.Name, contact.Email, contact.Phone)
	if err := s.stateRepo.MarkEnriched(ctx, rec.AddressHash, apiSource, resp.RequestID, missing); err != nil {
		return nil, fmt.Errorf("failed to mark %s enriched: %w", rec.AddressHash, err)
	}

	s.countOutcome(enrichment.StatusEnriched, "")
	result.Enriched++
	log.Info().Str("request_id", resp.RequestID).Msg("address enriched")

	outcome.Status = string(enrichment.StatusEnriched)
	return outcome, nil
}

func (s *WorkerServiceImpl) fail(ctx context.Context, outcome *primary.AddressOutcome, reason string, counter *int) (*primary.AddressOutcome, error) {
	if err := s.stateRepo.MarkFailed(ctx, outcome.AddressHash, reason, string(coreowner.SourceExternalAPI)); err != nil {
		return nil, fmt.Errorf("failed to mark %s failed: %w", outcome.AddressHash, err)
	}
	*counter++
	outcome.Status = string(enrichment.StatusNoOwnerData)
	outcome.Reason = reason
	return outcome, nil
}

// release returns untried rows to the queue so no budget is spent on them.
func (s *WorkerServiceImpl) release(ctx context.Context, result *primary.BatchResult, rows []*secondary.EnrichmentStateRecord) {
	for _, rec := range rows {
		status := enrichment.StatusNeverChecked
		if err := s.stateRepo.Reset(ctx, rec.AddressHash); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("hash", rec.AddressHash).Msg("failed to return row to queue")
			status = enrichment.StatusChecking
		}
		result.Outcomes = append(result.Outcomes, primary.AddressOutcome{
			AddressHash: rec.AddressHash,
			Address:     rec.NormalizedAddress,
			Status:      string(status),
			Reason:      reasonUnavailable,
		})
	}
}

func (s *WorkerServiceImpl) countOutcome(status enrichment.Status, reason string) {
	metrics.EnrichmentOutcomes.WithLabelValues(string(status), reason).Inc()
}
