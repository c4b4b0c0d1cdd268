// Package placeholder separates genuine owner contact details from the
// boilerplate that listing platforms inject in their place.
// Everything here is pure; scraper input and lookup API output go through the
// same rules.
package placeholder

import "strings"

// aggregatorDomains are mail domains owned by listing platforms. Any address
// at one of them belongs to the platform, not the owner.
var aggregatorDomains = []string{
	"hotpads.com",
	"zillow.com",
	"trulia.com",
	"apartments.com",
	"redfin.com",
	"streetlines.com",
}

var denyEmails = map[string]bool{
	"support@hotpads.com": true,
	"noreply@zillow.com":  true,
	"contact@trulia.com":  true,
	"help@apartments.com": true,
}

// fakePhones are compared after stripping non-digits.
var fakePhones = map[string]bool{
	"0000000000": true,
	"1111111111": true,
	"1234567890": true,
	"8000000000": true,
}

var roleNames = map[string]bool{
	"support":         true,
	"admin":           true,
	"hotpads support": true,
	"listing agent":   true,
}

// Contact is the genuine subset of a name/email/phone triple. A rejected
// field is empty.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// HasAny reports whether at least one field survived filtering.
func (c Contact) HasAny() bool {
	return c.Name != "" || c.Email != "" || c.Phone != ""
}

// Clean filters a raw triple.
func Clean(name, email, phone string) Contact {
	var c Contact
	if !IsPlaceholderName(name) {
		c.Name = strings.TrimSpace(name)
	}
	if !IsPlaceholderEmail(email) {
		c.Email = strings.TrimSpace(email)
	}
	if !IsPlaceholderPhone(phone) {
		c.Phone = strings.TrimSpace(phone)
	}
	return c
}

// IsPlaceholderEmail reports whether email is empty, a known platform
// address, or at a platform-owned domain.
func IsPlaceholderEmail(email string) bool {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return true
	}
	if denyEmails[e] {
		return true
	}
	for _, domain := range aggregatorDomains {
		if strings.HasSuffix(e, "@"+domain) {
			return true
		}
	}
	return false
}

// IsPlaceholderPhone reports whether phone has no digits, is a run of ten or
// more identical digits, or is a well-known fake number.
func IsPlaceholderPhone(phone string) bool {
	digits := Digits(phone)
	if digits == "" {
		return true
	}
	if len(digits) >= 10 && strings.Count(digits, digits[:1]) == len(digits) {
		return true
	}
	return fakePhones[digits]
}

// IsPlaceholderName reports whether name is empty or a role word.
func IsPlaceholderName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return n == "" || roleNames[n]
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
