package semcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint is the exact-tier key for query: the hex SHA-256 of the query
// with surrounding whitespace trimmed and inner runs collapsed to one space.
// Case is significant.
func Fingerprint(query string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(query), " ")))
	return hex.EncodeToString(sum[:])
}
