package listings

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/example/propenrich/internal/ports/secondary"
)

// emptyMarkers are strings scrapers write when a field has no value.
var emptyMarkers = map[string]bool{
	"":     true,
	"null": true,
	"none": true,
	"n/a":  true,
}

// HasValidValue reports whether a raw owner-column value carries data. Lists
// count when any element does; text holding a JSON array is decoded first.
func HasValidValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return validText(val)
	case []byte:
		return validText(string(val))
	case []any:
		for _, e := range val {
			if HasValidValue(e) {
				return true
			}
		}
		return false
	case []string:
		for _, e := range val {
			if validText(e) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func validText(s string) bool {
	trimmed := strings.TrimSpace(s)
	if emptyMarkers[strings.ToLower(trimmed)] {
		return false
	}
	if strings.HasPrefix(trimmed, "[") {
		var elems []any
		if err := json.Unmarshal([]byte(trimmed), &elems); err == nil {
			return HasValidValue(elems)
		}
	}
	return true
}

// HasOwnerData reports whether any of the row's owner columns carries data.
func HasOwnerData(row *secondary.ListingRow) bool {
	for _, v := range row.Owner {
		if HasValidValue(v) {
			return true
		}
	}
	return false
}
