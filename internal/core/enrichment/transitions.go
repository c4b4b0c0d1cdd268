// Package enrichment contains the pure business logic for the per-address
// enrichment state machine.
// This is part of the Functional Core - no I/O, only pure functions.
package enrichment

import "time"

// Status represents the possible states of an enrichment state row.
type Status string

const (
	StatusNeverChecked Status = "never_checked"
	StatusChecking     Status = "checking"
	StatusEnriched     Status = "enriched"
	StatusNoOwnerData  Status = "no_owner_data"
	StatusFailed       Status = "failed"
)

// Failure reasons recorded by the worker.
const (
	ReasonNoMatch        = "no match"
	ReasonNoValidContact = "no valid contact info"
)

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusNeverChecked, StatusChecking, StatusEnriched, StatusNoOwnerData, StatusFailed}
}

// InitialStatus returns the status of a freshly enqueued address.
func InitialStatus() Status {
	return StatusNeverChecked
}

// IsTerminal reports whether s is never left automatically.
func IsTerminal(s Status) bool {
	switch s {
	case StatusEnriched, StatusNoOwnerData, StatusFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func Valid(s Status) bool {
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// MissingFields records which owner fields are still unknown.
type MissingFields struct {
	OwnerName  bool `json:"owner_name"`
	OwnerEmail bool `json:"owner_email"`
	OwnerPhone bool `json:"owner_phone"`
}

// AllMissing is the missing-fields value for an address nothing is known about.
func AllMissing() MissingFields {
	return MissingFields{OwnerName: true, OwnerEmail: true, OwnerPhone: true}
}

// MissingFrom derives missing fields from the genuine values that are known.
func MissingFrom(name, email, phone string) MissingFields {
	return MissingFields{
		OwnerName:  name == "",
		OwnerEmail: email == "",
		OwnerPhone: phone == "",
	}
}

// Transition is the complete column change a status move implies. Adapters
// write it verbatim, conditioned on From.
type Transition struct {
	From      []Status
	To        Status
	Locked    bool
	CheckedAt *time.Time
}

// ClaimTransition moves a pending row into checking and stamps checked_at.
func ClaimTransition(now time.Time) Transition {
	return Transition{
		From:      []Status{StatusNeverChecked},
		To:        StatusChecking,
		Locked:    true,
		CheckedAt: &now,
	}
}

// EnrichedTransition completes a checking row with owner data.
func EnrichedTransition() Transition {
	return Transition{From: []Status{StatusChecking}, To: StatusEnriched, Locked: true}
}

// FailedTransition completes a checking row without owner data. Transport
// errors, no match and no surviving field all land here.
func FailedTransition() Transition {
	return Transition{From: []Status{StatusChecking}, To: StatusNoOwnerData, Locked: true}
}

// ResolvedTransition promotes a pending row whose owner is already known,
// from the listing itself or from the owner cache, bypassing the external
// lookup. checkedAt is when that owner data was obtained.
func ResolvedTransition(checkedAt time.Time) Transition {
	return Transition{
		From:      []Status{StatusNeverChecked},
		To:        StatusEnriched,
		Locked:    true,
		CheckedAt: &checkedAt,
	}
}

// ResetTransition returns a stuck checking row to the queue.
func ResetTransition() Transition {
	return Transition{From: []Status{StatusChecking}, To: StatusNeverChecked, Locked: false}
}
