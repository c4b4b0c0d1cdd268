package primary

import "context"

// DiagnosticsService defines the primary port for read-mostly inspection
// tools.
type DiagnosticsService interface {
	// Diagnose prints the joined view of every store for addresses matching
	// fragment.
	Diagnose(ctx context.Context, fragment string) (*DiagnosisReport, error)

	// AuditHashes checks stored hashes against the shared hash function.
	AuditHashes(ctx context.Context) (*HashAuditReport, error)

	// Rehash recomputes listing address hashes. Writes need Live.
	Rehash(ctx context.Context, req RehashRequest) (*RehashReport, error)

	// Stats reports table sizes, queue depth and API usage.
	Stats(ctx context.Context) (*StatsReport, error)
}

// DiagnosisReport is the result of a diagnose call.
type DiagnosisReport struct {
	Fragment string
	Matches  []StateDiagnosis
	// TextMatches holds listings found by address text when no state row matched.
	TextMatches []ListingMatch
}

// StateDiagnosis is the joined view for one address hash.
type StateDiagnosis struct {
	State    EnrichmentState
	Owner    *Owner
	Listings []ListingMatch
	Findings []string
}

// ListingMatch is a listing row found during diagnosis.
type ListingMatch struct {
	Table        string
	ID           string
	Address      string
	AddressHash  string
	ByHash       bool
	HashMismatch bool
}

// Diagnosis findings.
const (
	FindingSplitBrain   = "enriched but no genuine owner data saved"
	FindingStaleStatus  = "owner data present but status is not enriched"
	FindingOrphan       = "no listing references this hash"
	FindingHashMismatch = "listing found by address text carries a different hash"
	FindingStuck        = "parked in checking"
)

// HashAuditReport is the result of a hash audit.
type HashAuditReport struct {
	StateRows      int
	StateMalformed int
	Tables         []HashAuditTable
}

// HashAuditTable is the per-table breakdown of a hash audit.
type HashAuditTable struct {
	Table     string
	Rows      int
	Missing   int // no hash stored
	Malformed int // wrong length or alphabet
	Stale     int // differs from the hash of the row's own address
	Error     string
}

// RehashRequest contains parameters for a rehash. An empty Table means all.
type RehashRequest struct {
	Table string
	Live  bool
}

// RehashReport summarizes a rehash.
type RehashReport struct {
	Live   bool
	Tables []RehashTable
}

// RehashTable is the per-table breakdown of a rehash.
type RehashTable struct {
	Table         string
	Scanned       int
	Changed       int
	Unprocessable int
	Error         string
}

// StatsReport is an overview of the system.
type StatsReport struct {
	Listings     []TableCount
	Queue        []StatusCount
	Owners       int
	UsageLast24h int
	DailyCap     int
}

// StatusCount is a state row count for one status.
type StatusCount struct {
	Status string
	Count  int
}
