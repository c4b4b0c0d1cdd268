// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"
	"errors"
	"time"

	"github.com/example/propenrich/internal/core/enrichment"
)

// ErrNotFound is returned by repositories when a keyed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a conditional state update matched no
// row because the row was not in an allowed source status.
var ErrInvalidTransition = errors.New("invalid state transition")

// EnrichmentStateRepository defines the secondary port for the enrichment
// queue and state machine. Every status change is a single conditional write.
type EnrichmentStateRepository interface {
	// Enqueue inserts a never_checked row if none exists. An existing row keeps
	// its status; only a missing listing source is filled in. Returns the row
	// as stored after the write and whether it was newly inserted.
	Enqueue(ctx context.Context, hash, normalized, listingSource string) (*EnrichmentStateRecord, bool, error)

	// GetByHash retrieves a row by address hash.
	GetByHash(ctx context.Context, hash string) (*EnrichmentStateRecord, error)

	// ClaimBatch atomically moves up to n never_checked, unlocked rows to
	// checking and returns them. Two concurrent callers never receive the
	// same row.
	ClaimBatch(ctx context.Context, n int, now time.Time) ([]*EnrichmentStateRecord, error)

	// MarkEnriched moves a checking row to enriched.
	MarkEnriched(ctx context.Context, hash, sourceUsed, requestID string, missing enrichment.MissingFields) error

	// MarkFailed moves a checking row to no_owner_data with a reason.
	MarkFailed(ctx context.Context, hash, reason, sourceUsed string) error

	// MarkResolved moves a never_checked row straight to enriched because its
	// owner is already known, from the listing or from the owner cache.
	// sourceUsed and checkedAt describe where and when that data came from.
	MarkResolved(ctx context.Context, hash, sourceUsed string, missing enrichment.MissingFields, checkedAt time.Time) error

	// Reset moves a checking row back to never_checked and unlocks it.
	Reset(ctx context.Context, hash string) error

	// ForceEnriched writes an enriched, locked row regardless of its current
	// status, inserting it if absent. Used by repair, and by ingestion when the
	// owner cache already answers an address that has no state row. An
	// existing checked_at is kept; a nil CheckedAt on insert stores NULL.
	ForceEnriched(ctx context.Context, record *EnrichmentStateRecord) error

	// CountExternalCallsSince counts rows checked by the external API at or
	// after since.
	CountExternalCallsSince(ctx context.Context, since time.Time) (int, error)

	// CountByStatus returns row counts keyed by status.
	CountByStatus(ctx context.Context) (map[enrichment.Status]int, error)

	// List retrieves rows matching the given filters, ordered by address hash.
	List(ctx context.Context, filters EnrichmentStateFilters) ([]*EnrichmentStateRecord, error)

	// SearchByAddress finds rows whose normalized address contains fragment,
	// case-insensitively.
	SearchByAddress(ctx context.Context, fragment string, limit int) ([]*EnrichmentStateRecord, error)

	// DeleteByHashes removes rows and returns how many were deleted.
	DeleteByHashes(ctx context.Context, hashes []string) (int, error)
}

// EnrichmentStateRecord represents an enrichment state row as stored in persistence.
type EnrichmentStateRecord struct {
	AddressHash       string
	NormalizedAddress string
	Status            enrichment.Status
	Locked            bool
	ListingSource     string
	CheckedAt         *time.Time
	SourceUsed        string
	FailureReason     string
	ExternalRequestID string
	MissingFields     enrichment.MissingFields
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EnrichmentStateFilters contains filter options for listing state rows.
// AfterHash enables keyset pagination.
type EnrichmentStateFilters struct {
	Status        enrichment.Status
	CheckedBefore *time.Time
	AfterHash     string
	Limit         int
}

// OwnerRepository defines the secondary port for the canonical owner cache.
type OwnerRepository interface {
	// Get retrieves an owner record by address hash. Returns ErrNotFound when absent.
	Get(ctx context.Context, hash string) (*OwnerRecord, error)

	// Save writes the record as given, inserting or replacing by address hash.
	// Callers merge before saving.
	Save(ctx context.Context, record *OwnerRecord) error

	// List retrieves a page of owner records ordered by address hash.
	List(ctx context.Context, afterHash string, limit int) ([]*OwnerRecord, error)

	// Count returns the number of owner records.
	Count(ctx context.Context) (int, error)
}

// OwnerRecord represents a canonical owner row as stored in persistence.
type OwnerRecord struct {
	AddressHash    string
	OwnerName      string
	OwnerEmail     string
	OwnerPhone     string
	MailingAddress string
	Source         string
	ListingSource  string
	RawResponse    []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
