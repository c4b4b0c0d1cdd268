package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	coreowner "github.com/example/propenrich/internal/core/owner"
	"github.com/example/propenrich/internal/ports/secondary"
)

// ownerWrite is incoming owner data from one source.
type ownerWrite struct {
	hash          string
	fields        coreowner.Fields
	source        coreowner.Source
	listingSource string
	raw           []byte
}

// mergeOwner reads the stored record, merges w into it and saves the result
// when anything changed. It returns the record as stored afterwards (nil when
// there is none) and whether a write happened.
func mergeOwner(ctx context.Context, repo secondary.OwnerRepository, w ownerWrite, now time.Time) (*secondary.OwnerRecord, bool, error) {
	existing, err := repo.Get(ctx, w.hash)
	if err != nil && !errors.Is(err, secondary.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to get owner record: %w", err)
	}

	var current coreowner.Fields
	var currentSource coreowner.Source
	if existing != nil {
		current = recordFields(existing)
		currentSource = coreowner.Source(existing.Source)
	}

	merged := coreowner.Merge(current, currentSource, existing != nil, w.fields, w.source)
	if !merged.Changed {
		return existing, false, nil
	}

	record := &secondary.OwnerRecord{
		AddressHash:    w.hash,
		OwnerName:      merged.Fields.Name,
		OwnerEmail:     merged.Fields.Email,
		OwnerPhone:     merged.Fields.Phone,
		MailingAddress: merged.Fields.MailingAddress,
		Source:         string(merged.Source),
		ListingSource:  w.listingSource,
		RawResponse:    w.raw,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing != nil {
		record.CreatedAt = existing.CreatedAt
		if existing.ListingSource != "" {
			record.ListingSource = existing.ListingSource
		}
		if record.RawResponse == nil {
			record.RawResponse = existing.RawResponse
		}
	}

	if err := repo.Save(ctx, record); err != nil {
		return nil, false, fmt.Errorf("failed to save owner record: %w", err)
	}
	return record, true, nil
}

func recordFields(r *secondary.OwnerRecord) coreowner.Fields {
	return coreowner.Fields{
		Name:           r.OwnerName,
		Email:          r.OwnerEmail,
		Phone:          r.OwnerPhone,
		MailingAddress: r.MailingAddress,
	}
}

func firstOf(values []string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
