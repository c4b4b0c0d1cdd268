// Package primary defines the primary ports (driving adapters) for the application.
// These are the interfaces through which scrapers and operators drive enrichment.
package primary

import (
	"context"
	"time"
)

// IngestService defines the primary port called by scrapers after they store
// a listing.
type IngestService interface {
	// ProcessListing normalizes and hashes the listing's address, stores any
	// genuine inline owner data, enqueues the address when needed, and returns
	// the hash for the caller to persist on its own listing row.
	ProcessListing(ctx context.Context, req ListingInput) (*IngestResult, error)
}

// ListingInput is a scraped listing as handed to ingestion. Scrapers that
// collect several emails or phones pass them all; only the first is used.
type ListingInput struct {
	Address        string
	ListingSource  string
	OwnerName      string
	OwnerEmails    []string
	OwnerPhones    []string
	MailingAddress string
}

// IngestResult reports what ingestion did.
type IngestResult struct {
	AddressHash       string
	NormalizedAddress string
	Status            string
	Queued            bool // a new never_checked row was created
	OwnerSaved        bool // genuine scraped data was written to the owner cache
	Promoted          bool // the row went straight to enriched from scraped data
}

// WorkerService defines the primary port for the external lookup worker.
type WorkerService interface {
	// RunBatch performs one pass: check the daily budget, claim up to n
	// pending addresses, look each up and record the outcome.
	RunBatch(ctx context.Context, n int) (*BatchResult, error)
}

// BatchResult summarizes one worker pass.
type BatchResult struct {
	RunID       string
	Skipped     bool
	SkipReason  string
	UsageBefore int
	DailyCap    int
	Claimed     int
	Enriched    int
	NoMatch     int
	NoContact   int
	Errors      int
	Outcomes    []AddressOutcome
}

// AddressOutcome is the result for one claimed address.
type AddressOutcome struct {
	AddressHash string
	Address     string
	Status      string
	Reason      string
}

// Worker skip reasons.
const (
	SkipDisabled      = "lookup disabled"
	SkipMissingAPIKey = "lookup API key missing"
	SkipDailyCap      = "daily cap reached"
	SkipUsageUnknown  = "daily usage unknown, assuming cap reached"
	SkipNothingQueued = "no pending addresses"
)

// ReconcileService defines the primary port for the batch jobs that keep the
// listing tables, the state table and the owner cache consistent.
type ReconcileService interface {
	// Backfill enqueues listings that have no owner data anywhere.
	Backfill(ctx context.Context, req BackfillRequest) (*BackfillReport, error)

	// Repair marks every state row enriched whose owner record holds genuine data.
	Repair(ctx context.Context, req RepairRequest) (*RepairReport, error)

	// CleanupOrphans removes state rows no listing references any more.
	CleanupOrphans(ctx context.Context, req CleanupRequest) (*CleanupReport, error)

	// ResetStuck returns abandoned checking rows to the queue.
	ResetStuck(ctx context.Context, req ResetRequest) (*ResetReport, error)
}

// BackfillRequest contains parameters for a backfill run.
type BackfillRequest struct {
	DryRun bool
}

// BackfillReport summarizes a backfill run.
type BackfillReport struct {
	DryRun      bool
	Tables      []BackfillTableReport
	TotalQueued int
}

// BackfillTableReport is the per-table breakdown of a backfill run.
type BackfillTableReport struct {
	Table            string
	Source           string
	Scanned          int
	Queued           int
	SkippedQueued    int
	SkippedLocalData int
	SkippedOwnerData int
	SkippedNoAddress int
	HashesSet        int // listing rows whose address_hash was written or corrected
	Error            string
}

// RepairRequest contains parameters for a repair run. Writes need Live.
type RepairRequest struct {
	Live bool
}

// RepairReport summarizes a repair run.
type RepairReport struct {
	Live     bool
	Updates  []RepairChange
	Inserts  []RepairChange
	Ghosts   []string // enriched rows with no genuine owner data; reported only
	Updated  int
	Inserted int
}

// RepairChange is one state row repair would write.
type RepairChange struct {
	AddressHash string
	OldStatus   string
	SourceUsed  string
}

// CleanupRequest contains parameters for orphan cleanup. Deletes need Live.
type CleanupRequest struct {
	Live bool
}

// CleanupReport summarizes an orphan cleanup run.
type CleanupReport struct {
	Live          bool
	StateHashes   int
	ListingHashes int
	Tables        []TableCount
	Orphans       []string
	Deleted       int
}

// ResetRequest contains parameters for a stuck reset. Hash narrows the reset
// to one row and ignores claim age.
type ResetRequest struct {
	Hash      string
	OlderThan time.Duration
	Live      bool
}

// ResetReport summarizes a stuck reset.
type ResetReport struct {
	Live       bool
	Candidates []EnrichmentState
	Reset      int
}

// EnrichmentState is a state row at the port boundary.
type EnrichmentState struct {
	AddressHash       string
	NormalizedAddress string
	Status            string
	Locked            bool
	ListingSource     string
	CheckedAt         string
	SourceUsed        string
	FailureReason     string
	ExternalRequestID string
}

// Owner is an owner record at the port boundary.
type Owner struct {
	AddressHash    string
	Name           string
	Email          string
	Phone          string
	MailingAddress string
	Source         string
	ListingSource  string
	Genuine        bool
}

// TableCount is a row count for one listing table.
type TableCount struct {
	Table  string
	Source string
	Count  int
	Error  string
}
