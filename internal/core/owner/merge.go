// Package owner contains the pure merge policy for canonical owner records.
// This is part of the Functional Core - no I/O, only pure functions.
package owner

import (
	"strings"

	"github.com/example/propenrich/internal/core/placeholder"
)

// Source identifies where owner data came from.
type Source string

const (
	SourceScraped     Source = "scraped"
	SourceExternalAPI Source = "external_api"
)

// Rank orders sources by authority. Unknown sources rank lowest.
func Rank(s Source) int {
	switch s {
	case SourceExternalAPI:
		return 2
	case SourceScraped:
		return 1
	default:
		return 0
	}
}

// Fields are the mergeable columns of an owner record.
type Fields struct {
	Name           string
	Email          string
	Phone          string
	MailingAddress string
}

// Genuine reports whether any contact field survives placeholder filtering.
func (f Fields) Genuine() bool {
	return placeholder.Clean(f.Name, f.Email, f.Phone).HasAny()
}

// MergeResult is the outcome of merging incoming data into an existing record.
type MergeResult struct {
	Fields  Fields
	Source  Source
	Changed bool
}

// Merge applies incoming data field by field. An empty existing field is
// filled. A populated field is replaced only when the incoming source strictly
// outranks the existing one. Empty or placeholder incoming values never
// replace anything.
//
// exists is false when there is no stored record yet; the result then takes
// the incoming source.
func Merge(existing Fields, existingSource Source, exists bool, incoming Fields, incomingSource Source) MergeResult {
	incoming = filterIncoming(incoming)

	if !exists {
		return MergeResult{
			Fields:  incoming,
			Source:  incomingSource,
			Changed: incoming != (Fields{}),
		}
	}

	outranks := Rank(incomingSource) > Rank(existingSource)
	result := MergeResult{Fields: existing, Source: existingSource}

	apply := func(cur *string, next string) {
		if next == "" || *cur == next {
			return
		}
		if strings.TrimSpace(*cur) == "" || outranks {
			*cur = next
			result.Changed = true
		}
	}

	apply(&result.Fields.Name, incoming.Name)
	apply(&result.Fields.Email, incoming.Email)
	apply(&result.Fields.Phone, incoming.Phone)
	apply(&result.Fields.MailingAddress, incoming.MailingAddress)

	if result.Changed && outranks {
		result.Source = incomingSource
	}

	return result
}

func filterIncoming(f Fields) Fields {
	c := placeholder.Clean(f.Name, f.Email, f.Phone)
	return Fields{
		Name:           c.Name,
		Email:          c.Email,
		Phone:          c.Phone,
		MailingAddress: strings.TrimSpace(f.MailingAddress),
	}
}
