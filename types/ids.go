// Package types defines the chain's core data model: blocks, transactions,
// accounts, validator sets, and the canonical keys under which service state
// is persisted. It has no dependency on storage, execution, or consensus —
// every other package imports types, never the reverse.
package types

import (
	"encoding/hex"
	"fmt"

	"github.com/ioi-foundation/kernel/crypto"
)

// AccountId is a 32-byte value derived deterministically from a
// domain-separated hash of (suite, canonical_public_key).
type AccountId [32]byte

// String returns the lowercase hex encoding of the account id.
func (a AccountId) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero account id.
func (a AccountId) IsZero() bool {
	return a == AccountId{}
}

// AccountIdFromHex parses a 64-char hex string into an AccountId.
func AccountIdFromHex(s string) (AccountId, error) {
	var id AccountId
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("account id: expected %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// SignatureSuite names a signature scheme supported by the kernel.
type SignatureSuite string

const (
	SuiteEd25519 SignatureSuite = "ed25519"
)

// DeriveAccountId computes the domain-separated account id for a public key
// under the given suite: sha256("ioi-account/v1|" || suite || "|" || pubkey).
func DeriveAccountId(suite SignatureSuite, pubKey []byte) AccountId {
	domain := append([]byte("ioi-account/v1|"), []byte(suite)...)
	domain = append(domain, '|')
	domain = append(domain, pubKey...)
	h := crypto.HashBytes(domain)
	var id AccountId
	copy(id[:], h)
	return id
}

// TxHash identifies a transaction by the hash of its canonical encoding.
type TxHash [32]byte

func (h TxHash) String() string { return hex.EncodeToString(h[:]) }

// ChainId identifies the network a transaction/block belongs to.
type ChainId string
