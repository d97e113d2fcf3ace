package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash returns a SHA-256 hex digest of the raw token. Only this digest is
// persisted, so a database compromise cannot yield usable refresh tokens.
func Hash(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// HashEqual compares the digest of raw against storedHash in constant time.
func HashEqual(raw, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(raw)), []byte(storedHash)) == 1
}
