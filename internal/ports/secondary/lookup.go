package secondary

import (
	"context"
	"errors"
	"fmt"
)

// ErrLookupUnavailable means the call was not attempted, for example because
// the circuit is open or the context ended while waiting for the rate limiter.
// Callers should leave the address pending rather than record a failure.
var ErrLookupUnavailable = errors.New("owner lookup unavailable")

// LookupStatusError is an answer the API refused. Text is the provider's own
// status text and becomes the failure reason.
type LookupStatusError struct {
	Code int
	Text string
}

func (e *LookupStatusError) Error() string {
	return fmt.Sprintf("lookup status %d: %s", e.Code, e.Text)
}

// OwnerLookup defines the secondary port for the paid external owner lookup
// (skip trace) API. Its answers are untrusted.
type OwnerLookup interface {
	// Lookup resolves one address. A transport, timeout or API-level failure
	// is returned as an error; a call that was never made wraps
	// ErrLookupUnavailable.
	Lookup(ctx context.Context, req LookupRequest) (*LookupResponse, error)

	// Name identifies the provider in logs.
	Name() string
}

// LookupRequest is the address the API is asked about.
type LookupRequest struct {
	Street string
	City   string
	State  string
	Zip    string
}

// LookupResponse carries zero or more candidate persons in API order.
type LookupResponse struct {
	RequestID string
	Persons   []LookupPerson
	Raw       []byte
}

// LookupPerson is one candidate. OwnerName is the property owner's name when
// the API reports one; PersonName is the candidate's own name.
type LookupPerson struct {
	Matched    bool
	OwnerName  string
	PersonName string
	Emails     []string
	Phones     []string
}
