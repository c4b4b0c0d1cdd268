package app

import (
	"time"

	"github.com/example/propenrich/internal/ports/primary"
	"github.com/example/propenrich/internal/ports/secondary"
)

func toState(r *secondary.EnrichmentStateRecord) primary.EnrichmentState {
	st := primary.EnrichmentState{
		AddressHash:       r.AddressHash,
		NormalizedAddress: r.NormalizedAddress,
		Status:            string(r.Status),
		Locked:            r.Locked,
		ListingSource:     r.ListingSource,
		SourceUsed:        r.SourceUsed,
		FailureReason:     r.FailureReason,
		ExternalRequestID: r.ExternalRequestID,
	}
	if r.CheckedAt != nil {
		st.CheckedAt = r.CheckedAt.UTC().Format(time.RFC3339)
	}
	return st
}

func toOwner(r *secondary.OwnerRecord) *primary.Owner {
	return &primary.Owner{
		AddressHash:    r.AddressHash,
		Name:           r.OwnerName,
		Email:          r.OwnerEmail,
		Phone:          r.OwnerPhone,
		MailingAddress: r.MailingAddress,
		Source:         r.Source,
		ListingSource:  r.ListingSource,
		Genuine:        recordFields(r).Genuine(),
	}
}
