// Package address canonicalizes free-text US street addresses and derives the
// content-addressed hash that keys every enrichment store.
package address

import (
	"regexp"
	"strings"
)

var (
	punctuation = regexp.MustCompile(`[.,#\-]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// abbreviations maps whole words to their canonical form. Suffixes and unit
// words first, then compass directions. No replacement value is itself a key,
// which keeps Normalize idempotent.
var abbreviations = map[string]string{
	"STREET":    "ST",
	"AVENUE":    "AVE",
	"BOULEVARD": "BLVD",
	"DRIVE":     "DR",
	"LANE":      "LN",
	"COURT":     "CT",
	"ROAD":      "RD",
	"PLACE":     "PL",
	"SQUARE":    "SQ",
	"TERRACE":   "TER",
	"PARKWAY":   "PKWY",
	"CIRCLE":    "CIR",
	"TRAIL":     "TRL",

	"APARTMENT": "UNIT",
	"APT":       "UNIT",
	"STE":       "UNIT",
	"SUITE":     "UNIT",
	"FL":        "UNIT",
	"FLOOR":     "UNIT",

	"NORTH":     "N",
	"SOUTH":     "S",
	"EAST":      "E",
	"WEST":      "W",
	"NORTHEAST": "NE",
	"NORTHWEST": "NW",
	"SOUTHEAST": "SE",
	"SOUTHWEST": "SW",
}

var wordPattern = buildWordPattern()

func buildWordPattern() *regexp.Regexp {
	words := make([]string, 0, len(abbreviations))
	for w := range abbreviations {
		words = append(words, regexp.QuoteMeta(w))
	}
	return regexp.MustCompile(`\b(` + strings.Join(words, "|") + `)\b`)
}

// Normalize returns the canonical form of a raw address, or "" when the input
// is empty or whitespace. The result is purely lexical: uppercase, with
// periods, commas, hashes and dashes removed and street suffix, unit and
// direction words abbreviated.
func Normalize(raw string) string {
	addr := strings.ToUpper(strings.TrimSpace(raw))
	if addr == "" {
		return ""
	}

	addr = punctuation.ReplaceAllString(addr, " ")
	addr = collapse(addr)

	addr = wordPattern.ReplaceAllStringFunc(addr, func(w string) string {
		return abbreviations[w]
	})

	return collapse(addr)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
