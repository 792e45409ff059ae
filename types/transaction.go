package types

import (
	"fmt"

	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/types/canon"
)

// TxKind tags which of the four transaction variants a Transaction carries.
// Only System and Settlement and Application txs carry an account identity;
// Semantic txs are account-less and flow through the mempool's FIFO "others"
// queue rather than a per-account queue.
type TxKind uint8

const (
	TxSystem TxKind = iota
	TxSettlement
	TxApplication
	TxSemantic
)

func (k TxKind) String() string {
	switch k {
	case TxSystem:
		return "system"
	case TxSettlement:
		return "settlement"
	case TxApplication:
		return "application"
	case TxSemantic:
		return "semantic"
	default:
		return "unknown"
	}
}

// SignHeader is the account-bound portion of a transaction's signing
// payload. SessionAuth, when present, names the agentic session this
// transaction was authorized under (see types.ApprovalToken).
type SignHeader struct {
	AccountID   AccountId `json:"account_id"`
	Nonce       uint64    `json:"nonce"`
	ChainID     ChainId   `json:"chain_id"`
	TxVersion   uint32    `json:"tx_version"`
	SessionAuth string    `json:"session_auth,omitempty"`
}

// SignatureProof attaches the signing suite, public key, and signature bytes
// needed to verify a transaction without a prior account lookup.
type SignatureProof struct {
	Suite     SignatureSuite `json:"suite"`
	PublicKey []byte         `json:"public_key"`
	Signature []byte         `json:"signature"`
}

// Transaction is the kernel's single wire/storage transaction envelope.
// Kind selects which of Header/ServiceID/Method/Payload are meaningful:
// Semantic transactions carry no SignHeader and no SignatureProof.
type Transaction struct {
	Kind      TxKind          `json:"kind"`
	Header    *SignHeader     `json:"header,omitempty"`
	ServiceID string          `json:"service_id"`
	Method    string          `json:"method"`
	Payload   []byte          `json:"payload"`
	Proof     *SignatureProof `json:"proof,omitempty"`
}

// SigningBytes returns the canonical preimage the account owner signs:
// everything except the signature itself.
func (t *Transaction) SigningBytes() []byte {
	b := canon.NewBuilder().Byte(byte(t.Kind))
	if t.Header != nil {
		b.Raw(t.Header.AccountID[:]).
			U64(t.Header.Nonce).
			Str(string(t.Header.ChainID)).
			U32(t.Header.TxVersion).
			Str(t.Header.SessionAuth)
	}
	b.Str(t.ServiceID).Str(t.Method).Bytes(t.Payload)
	return b.Build()
}

// Hash returns the canonical transaction hash, used as the mempool key,
// receipt key, and block transactions-root chain element. It includes the
// signature proof so that two transactions differing only in signature
// (impossible for a valid signer, but relevant for replay/dedup reasoning)
// hash distinctly.
func (t *Transaction) Hash() TxHash {
	b := t.SigningBytes()
	if t.Proof != nil {
		pb := canon.NewBuilder().Str(string(t.Proof.Suite)).Bytes(t.Proof.PublicKey).Bytes(t.Proof.Signature).Build()
		b = append(b, pb...)
	}
	return TxHash(crypto.Hash32(b))
}

// Validate performs structural checks independent of chain state: every
// signed variant must carry both a header and a proof, and Semantic
// transactions must carry neither.
func (t *Transaction) Validate() error {
	switch t.Kind {
	case TxSystem, TxSettlement, TxApplication:
		if t.Header == nil {
			return fmt.Errorf("transaction: %s requires a sign header", t.Kind)
		}
		if t.Proof == nil {
			return fmt.Errorf("transaction: %s requires a signature proof", t.Kind)
		}
	case TxSemantic:
		if t.Header != nil || t.Proof != nil {
			return fmt.Errorf("transaction: semantic tx must not carry a sign header or proof")
		}
	default:
		return fmt.Errorf("transaction: unknown kind %d", t.Kind)
	}
	if t.ServiceID == "" {
		return fmt.Errorf("transaction: missing service_id")
	}
	if t.Method == "" {
		return fmt.Errorf("transaction: missing method")
	}
	return nil
}

// VerifySignature checks Proof.Signature against SigningBytes for the
// declared suite. Only ed25519 is currently supported.
func (t *Transaction) VerifySignature() error {
	if t.Proof == nil {
		return fmt.Errorf("transaction: no signature proof to verify")
	}
	switch t.Proof.Suite {
	case SuiteEd25519:
		pub := crypto.PublicKey(t.Proof.PublicKey)
		if !pub.Verify(t.SigningBytes(), t.Proof.Signature) {
			return fmt.Errorf("transaction: signature verification failed")
		}
		return nil
	default:
		return fmt.Errorf("transaction: unsupported signature suite %q", t.Proof.Suite)
	}
}
