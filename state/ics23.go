package state

import (
	ics23 "github.com/bnb-chain/ics23/go"
)

// leafOpSpec is the single LeafOp configuration this kernel's proofs ever
// use when converted to the ICS-23 wire format: SHA-256 over the whole
// preimage, no key prehash, value prehashed with SHA-256 before its length
// and bytes go into the preimage, varint-encoded lengths, and the 0x00 leaf
// tag as a fixed prefix — matching leafPreimage exactly.
var leafOpSpec = &ics23.LeafOp{
	Hash:         ics23.HashOp_SHA256,
	PrehashKey:   ics23.HashOp_NO_HASH,
	PrehashValue: ics23.HashOp_SHA256,
	Length:       ics23.LengthOp_VAR_PROTO,
	Prefix:       []byte{leafTag},
}

// ToCommitmentProof converts an ExistenceProof into the ICS-23
// CommitmentProof wire message, so it can be verified by any ICS-23
// compliant client (IBC relayers, cross-chain light clients) without
// depending on this kernel's Go types.
func (p *ExistenceProof) ToCommitmentProof() *ics23.CommitmentProof {
	path := make([]*ics23.InnerOp, len(p.Path))
	for i, op := range p.Path {
		path[i] = &ics23.InnerOp{
			Hash:   ics23.HashOp_SHA256,
			Prefix: op.Prefix,
			Suffix: op.Suffix,
		}
	}
	return &ics23.CommitmentProof{
		Proof: &ics23.CommitmentProof_Exist{
			Exist: &ics23.ExistenceProof{
				Key:   p.Key,
				Value: p.Value,
				Leaf:  leafOpSpec,
				Path:  path,
			},
		},
	}
}

// ToCommitmentProof converts a NonExistenceProof into the ICS-23
// CommitmentProof wire message.
func (p *NonExistenceProof) ToCommitmentProof() *ics23.CommitmentProof {
	var left, right *ics23.ExistenceProof
	if p.Left != nil {
		left = p.Left.ToCommitmentProof().GetExist()
	}
	if p.Right != nil {
		right = p.Right.ToCommitmentProof().GetExist()
	}
	return &ics23.CommitmentProof{
		Proof: &ics23.CommitmentProof_Nonexist{
			Nonexist: &ics23.NonExistenceProof{
				Key:   p.Key,
				Left:  left,
				Right: right,
			},
		},
	}
}

// VerifyCommitmentProof verifies a converted proof using the ICS-23
// reference implementation directly, as a cross-check against this
// package's own Verify methods (used in tests, and available to external
// callers that only trust the ics23 spec, not this kernel's hashing code).
func VerifyCommitmentProof(proof *ics23.CommitmentProof, root []byte, key, value []byte) bool {
	spec := &ics23.ProofSpec{
		LeafSpec:  leafOpSpec,
		InnerSpec: &ics23.InnerSpec{Hash: ics23.HashOp_SHA256},
	}
	if value != nil {
		return ics23.VerifyMembership(spec, root, proof, key, value)
	}
	return ics23.VerifyNonMembership(spec, root, proof, key)
}
