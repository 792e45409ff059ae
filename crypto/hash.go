// Package crypto provides the kernel's hashing, signature, and key-storage
// primitives. Algorithm choices are fixed here as named capabilities; callers
// never reach for crypto/sha256 or crypto/ed25519 directly.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes returns the raw SHA-256 digest of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// Hash32 returns the SHA-256 digest of data as a fixed-size array, the form
// used throughout the state tree and canonical encodings.
func Hash32(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Hash returns the SHA-256 hash of data as a lowercase hex string, used for
// human-facing identifiers (tx hashes in RPC responses, log fields).
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
