package types

import (
	"encoding/hex"

	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/types/canon"
)

// BlockHeader carries everything needed to verify a block without its body.
// Hash is over the header only; the body (transaction list) is bound in via
// TransactionsRoot.
type BlockHeader struct {
	Height           uint64   `json:"height"`
	ParentHash       [32]byte `json:"parent_hash"`
	StateRoot        [32]byte `json:"state_root"`
	TransactionsRoot [32]byte `json:"transactions_root"`
	ValidatorSetHash [32]byte `json:"validator_set_hash"`
	Timestamp        int64    `json:"timestamp"` // unix seconds, producer-supplied
	ProducerPKHash   [32]byte `json:"producer_pk_hash"`
	View             uint64   `json:"view"`
}

// Hash computes the canonical block-header hash, the value every other block
// references as ParentHash and every consensus vote signs over.
func (h *BlockHeader) Hash() [32]byte {
	b := canon.NewBuilder().
		U64(h.Height).
		Raw(h.ParentHash[:]).
		Raw(h.StateRoot[:]).
		Raw(h.TransactionsRoot[:]).
		Raw(h.ValidatorSetHash[:]).
		U64(uint64(h.Timestamp)).
		Raw(h.ProducerPKHash[:]).
		U64(h.View).
		Build()
	return crypto.Hash32(b)
}

func (h *BlockHeader) HashHex() string {
	hh := h.Hash()
	return hex.EncodeToString(hh[:])
}

// BlockSignature is one validator's signature over a block header hash.
// Blocks this kernel produces (consensus.Engine.ProduceBlock and the
// genesis block) carry only the producer's own signature.
type BlockSignature struct {
	ValidatorID AccountId `json:"validator_id"`
	Signature   []byte    `json:"signature"`
}

// Block is a header plus its ordered transaction list and the signatures
// attached to it.
type Block struct {
	Header       BlockHeader      `json:"header"`
	Transactions []Transaction    `json:"transactions"`
	Signatures   []BlockSignature `json:"signatures"`
}

// TransactionsRoot computes the root of the block's transaction list as a
// simple sequential hash chain: h_0 = 0, h_i = H(h_{i-1} || tx_hash_i). This
// is not a Merkle tree, so no individual-transaction inclusion proof can be
// built against this root.
func TransactionsRoot(txs []Transaction) [32]byte {
	var acc [32]byte
	for _, tx := range txs {
		h := tx.Hash()
		acc = crypto.Hash32(append(append([]byte{}, acc[:]...), h[:]...))
	}
	return acc
}
