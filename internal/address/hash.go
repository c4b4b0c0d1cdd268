package address

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
)

// HashLength is the length of every address hash: a 128-bit digest in hex.
const HashLength = md5.Size * 2

// ErrUnprocessableAddress is returned when an address normalizes to nothing
// and therefore has no hash. No store row may be created for it.
var ErrUnprocessableAddress = errors.New("unprocessable address: empty after normalization")

// Hash returns the lowercase hex digest of a canonical address. The boolean
// is false for an empty input, which has no hash.
//
// Every component that keys a record by address must go through this
// function. Rows keyed by any other digest will never join.
func Hash(canonical string) (string, bool) {
	if canonical == "" {
		return "", false
	}
	sum := md5.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:]), true
}

// Key normalizes a raw address and hashes it.
func Key(raw string) (normalized, hash string, err error) {
	normalized = Normalize(raw)
	hash, ok := Hash(normalized)
	if !ok {
		return "", "", ErrUnprocessableAddress
	}
	return normalized, hash, nil
}

// ValidHash reports whether h has the shape produced by Hash. The hash audit
// uses it to find rows keyed by a foreign algorithm.
func ValidHash(h string) bool {
	if len(h) != HashLength {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
