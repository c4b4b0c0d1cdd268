package address

import "strings"

// Parts is a best-effort split of an address into the fields the owner lookup
// API expects.
type Parts struct {
	Street string
	City   string
	State  string
	Zip    string
}

// Split breaks "street, city, state zip" apart on commas. It is a heuristic,
// not an address parser. With three or more segments the third is read as
// "STATE ZIP"; with two, only street and city are set. A single segment
// (canonical addresses carry no commas) becomes the street.
func Split(addr string) Parts {
	segments := strings.Split(addr, ",")
	for i := range segments {
		segments[i] = strings.TrimSpace(segments[i])
	}

	var p Parts
	switch {
	case len(segments) >= 3:
		p.Street = segments[0]
		p.City = segments[1]
		stateZip := strings.Fields(segments[2])
		if len(stateZip) >= 1 {
			p.State = stateZip[0]
		}
		if len(stateZip) >= 2 {
			p.Zip = stateZip[1]
		}
	case len(segments) == 2:
		p.Street = segments[0]
		p.City = segments[1]
	default:
		p.Street = segments[0]
	}
	return p
}
