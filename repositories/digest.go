package repositories

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// TokenDigest returns the hex BLAKE2b-256 digest of a session credential.
// Stores index sessions by digest so a store-only read never yields a usable credential.
func TokenDigest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
