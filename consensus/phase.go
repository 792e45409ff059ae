// Package consensus holds the kernel's block-production engine and the
// types of a BFT round (Propose -> PreVote -> PreCommit -> Commit, or
// ViewChange -> PreVote(new view) -> ... on a timeout), with deterministic
// round-robin leader selection and A-DMFT dual-mirror equivocation
// detection. This replaces the teacher's fixed round-robin Proof-of-Authority
// engine: the structural shape (an engine holding the chain/state/mempool/
// executor, a signing key, an Emit-on-commit event) carries over, and the
// Run ticker loop lives in package orchestrator. Vote and QuorumCert model
// weighted PreVote/PreCommit quorums, but Engine does not collect votes:
// ProduceBlock commits a block under the leader's single signature.
package consensus

import "github.com/ioi-foundation/kernel/types"

// Phase names one step of a consensus round.
type Phase string

const (
	PhasePropose    Phase = "propose"
	PhasePreVote    Phase = "prevote"
	PhasePreCommit  Phase = "precommit"
	PhaseCommit     Phase = "commit"
	PhaseViewChange Phase = "view_change"
)

// VoteKind distinguishes a PreVote from a PreCommit ballot; both carry the
// same shape, differing only in which quorum they contribute to.
type VoteKind string

const (
	VoteKindPreVote   VoteKind = "prevote"
	VoteKindPreCommit VoteKind = "precommit"
)

// Vote is one validator's signed ballot for a block at (height, view).
type Vote struct {
	Kind        VoteKind        `json:"kind"`
	Height      uint64          `json:"height"`
	View        uint64          `json:"view"`
	BlockHash   [32]byte        `json:"block_hash"`
	ValidatorID types.AccountId `json:"validator_id"`
	Signature   []byte          `json:"signature"`
}

// SigningBytes returns the bytes a vote's Signature is computed over.
func (v *Vote) SigningBytes() []byte {
	b := make([]byte, 0, 1+8+8+32)
	b = append(b, byte(voteKindTag(v.Kind)))
	b = appendU64(b, v.Height)
	b = appendU64(b, v.View)
	b = append(b, v.BlockHash[:]...)
	return b
}

func voteKindTag(k VoteKind) byte {
	if k == VoteKindPreCommit {
		return 1
	}
	return 0
}

func appendU64(b []byte, v uint64) []byte {
	for i := 7; i >= 0; i-- {
		b = append(b, byte(v>>(8*uint(i))))
	}
	return b
}

// ViewChangeMsg is cast by a validator that timed out waiting for progress
// at (Height, View); it requests the engine advance to NewView.
type ViewChangeMsg struct {
	Height      uint64          `json:"height"`
	NewView     uint64          `json:"new_view"`
	ValidatorID types.AccountId `json:"validator_id"`
	Signature   []byte          `json:"signature"`
}

// QuorumCert accumulates votes for a single (height, view, blockHash) key
// until their combined validator weight crosses the BFT threshold
// (>2/3 of total weight), at which point HasQuorum reports true.
type QuorumCert struct {
	Height    uint64
	View      uint64
	BlockHash [32]byte
	Kind      VoteKind
	votes     map[types.AccountId]Vote
}

func NewQuorumCert(height, view uint64, blockHash [32]byte, kind VoteKind) *QuorumCert {
	return &QuorumCert{Height: height, View: view, BlockHash: blockHash, Kind: kind, votes: make(map[types.AccountId]Vote)}
}

// Add records vote, ignoring a validator's second vote at the same key —
// equivocation within a single QC is a no-op here; cross-mirror
// equivocation is ADMFT's concern, not this one's.
func (q *QuorumCert) Add(v Vote) {
	if _, ok := q.votes[v.ValidatorID]; ok {
		return
	}
	q.votes[v.ValidatorID] = v
}

func (q *QuorumCert) Votes() []Vote {
	out := make([]Vote, 0, len(q.votes))
	for _, v := range q.votes {
		out = append(out, v)
	}
	return out
}

// HasQuorum reports whether the votes collected so far, weighted by
// weightOf, cross the Byzantine quorum threshold: strictly more than 2/3 of
// totalWeight.
func (q *QuorumCert) HasQuorum(weightOf func(types.AccountId) uint64, totalWeight uint64) bool {
	if totalWeight == 0 {
		return false
	}
	var sum uint64
	for id := range q.votes {
		sum += weightOf(id)
	}
	return sum*3 > totalWeight*2
}
