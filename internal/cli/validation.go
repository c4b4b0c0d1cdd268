package cli

import (
	"fmt"
	"regexp"
	"strings"
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// validateAddressHash checks that a hash argument looks like an address hash.
// Returns an error with a helpful message for the common mistakes.
func validateAddressHash(hash string) error {
	if hashPattern.MatchString(hash) {
		return nil
	}

	// Uppercase copied from a spreadsheet
	if hashPattern.MatchString(strings.ToLower(hash)) {
		return fmt.Errorf("invalid address hash '%s'. Hashes are lowercase, use: %s", hash, strings.ToLower(hash))
	}

	// Truncated hash from a table listing
	if len(hash) < 32 && hashPattern.MatchString(hash+strings.Repeat("0", 32-len(hash))) {
		return fmt.Errorf("address hash '%s' is truncated. Use 'propenrich diagnose <address>' to find the full hash", hash)
	}

	return fmt.Errorf("invalid address hash '%s'. Expected 32 hex characters", hash)
}
