package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/propenrich/internal/address"
	"github.com/example/propenrich/internal/core/enrichment"
	coreowner "github.com/example/propenrich/internal/core/owner"
	"github.com/example/propenrich/internal/core/placeholder"
	"github.com/example/propenrich/internal/logging"
	"github.com/example/propenrich/internal/metrics"
	"github.com/example/propenrich/internal/ports/primary"
	"github.com/example/propenrich/internal/ports/secondary"
)

// IngestServiceImpl implements the IngestService interface.
type IngestServiceImpl struct {
	stateRepo secondary.EnrichmentStateRepository
	ownerRepo secondary.OwnerRepository
	now       func() time.Time
}

// NewIngestService creates a new IngestService with injected dependencies.
func NewIngestService(stateRepo secondary.EnrichmentStateRepository, ownerRepo secondary.OwnerRepository) *IngestServiceImpl {
	return &IngestServiceImpl{
		stateRepo: stateRepo,
		ownerRepo: ownerRepo,
		now:       time.Now,
	}
}

// ProcessListing normalizes and hashes the listing's address and brings both
// stores up to date for it.
func (s *IngestServiceImpl) ProcessListing(ctx context.Context, req primary.ListingInput) (*primary.IngestResult, error) {
	// 1. Canonicalize; an empty address gets no row anywhere
	normalized, hash, err := address.Key(req.Address)
	if err != nil {
		metrics.ListingsIngested.WithLabelValues("unprocessable").Inc()
		return nil, fmt.Errorf("failed to process listing %q: %w", req.Address, err)
	}

	now := s.now()
	listingSource := strings.TrimSpace(req.ListingSource)
	contact := placeholder.Clean(req.OwnerName, firstOf(req.OwnerEmails), firstOf(req.OwnerPhones))
	result := &primary.IngestResult{AddressHash: hash, NormalizedAddress: normalized}

	// 2. Genuine inline data goes to the owner cache as scraped
	var stored *secondary.OwnerRecord
	if contact.HasAny() {
		stored, result.OwnerSaved, err = mergeOwner(ctx, s.ownerRepo, ownerWrite{
			hash: hash,
			fields: coreowner.Fields{
				Name:           contact.Name,
				Email:          contact.Email,
				Phone:          contact.Phone,
				MailingAddress: req.MailingAddress,
			},
			source:        coreowner.SourceScraped,
			listingSource: listingSource,
		}, now)
		if err != nil {
			return nil, err
		}
	} else {
		stored, err = s.ownerRepo.Get(ctx, hash)
		if err != nil && !errors.Is(err, secondary.ErrNotFound) {
			return nil, fmt.Errorf("failed to get owner record: %w", err)
		}
	}

	// 3. Owner cache already answers a never-seen address: record it as done
	cached := !contact.HasAny() && stored != nil && recordFields(stored).Genuine()
	state, err := s.stateRepo.GetByHash(ctx, hash)
	if err != nil && !errors.Is(err, secondary.ErrNotFound) {
		return nil, fmt.Errorf("failed to get enrichment state: %w", err)
	}
	if state == nil && cached {
		checkedAt := ownerCheckedAt(stored, now)
		if err := s.stateRepo.ForceEnriched(ctx, &secondary.EnrichmentStateRecord{
			AddressHash:       hash,
			NormalizedAddress: normalized,
			ListingSource:     listingSource,
			SourceUsed:        stored.Source,
			MissingFields:     missingFor(recordFields(stored)),
			CheckedAt:         &checkedAt,
		}); err != nil {
			return nil, fmt.Errorf("failed to record cached owner: %w", err)
		}
		metrics.ListingsIngested.WithLabelValues("cached").Inc()
		result.Status = string(enrichment.StatusEnriched)
		return result, nil
	}

	// 4. Enqueue; an existing row only gets its listing source backfilled
	state, inserted, err := s.stateRepo.Enqueue(ctx, hash, normalized, listingSource)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue address: %w", err)
	}
	result.Status = string(state.Status)

	// 5. Scraped data or a cached owner short-circuits the paid lookup for
	// pending rows
	if contact.HasAny() || cached {
		sourceUsed := string(coreowner.SourceScraped)
		missing := enrichment.MissingFrom(contact.Name, contact.Email, contact.Phone)
		checkedAt := now
		if cached {
			sourceUsed = stored.Source
			missing = missingFor(recordFields(stored))
			checkedAt = ownerCheckedAt(stored, now)
		}
		guard := enrichment.CanPromoteScraped(enrichment.StateContext{
			AddressHash: hash,
			Exists:      true,
			Status:      state.Status,
			Locked:      state.Locked,
		})
		if guard.Allowed {
			err := s.stateRepo.MarkResolved(ctx, hash, sourceUsed, missing, checkedAt)
			switch {
			case errors.Is(err, secondary.ErrInvalidTransition):
				// A worker claimed the row in between; it will record its own result.
				logging.Ctx(ctx).Debug().Str("hash", hash).Err(err).Msg("promotion lost to worker claim")
			case err != nil:
				return nil, fmt.Errorf("failed to promote known owner: %w", err)
			default:
				result.Promoted = true
				result.Status = string(enrichment.StatusEnriched)
			}
		} else {
			logging.Ctx(ctx).Debug().Str("hash", hash).Str("reason", guard.Reason).Msg("promotion skipped")
		}
	}

	result.Queued = inserted && !result.Promoted

	switch {
	case result.Promoted:
		metrics.ListingsIngested.WithLabelValues("promoted").Inc()
	case result.Queued:
		metrics.ListingsIngested.WithLabelValues("queued").Inc()
	default:
		metrics.ListingsIngested.WithLabelValues("existing").Inc()
	}

	logging.Ctx(ctx).Debug().
		Str("hash", hash).
		Str("source", listingSource).
		Str("status", result.Status).
		Bool("owner_saved", result.OwnerSaved).
		Msg("listing processed")

	return result, nil
}

// ownerCheckedAt is when the owner record's data was last obtained. Rows
// resolved from the cache carry this time so they do not look like fresh
// lookups against the daily budget.
func ownerCheckedAt(o *secondary.OwnerRecord, fallback time.Time) time.Time {
	switch {
	case !o.UpdatedAt.IsZero():
		return o.UpdatedAt
	case !o.CreatedAt.IsZero():
		return o.CreatedAt
	default:
		return fallback
	}
}

// missingFor derives missing fields from stored owner data, ignoring
// placeholder values.
func missingFor(f coreowner.Fields) enrichment.MissingFields {
	c := placeholder.Clean(f.Name, f.Email, f.Phone)
	return enrichment.MissingFrom(c.Name, c.Email, c.Phone)
}
