package types

// StateRef pins a historical read to a specific committed version: the
// height it was produced at, the state-tree root committed at that height,
// and the block hash that committed it. Queries against an anchor other
// than "latest" resolve through a StateRef rather than a bare height, so a
// reorg (should one occur below finality) cannot silently redirect a proof
// to the wrong root.
type StateRef struct {
	Height    uint64   `json:"height"`
	StateRoot [32]byte `json:"state_root"`
	BlockHash [32]byte `json:"block_hash"`
}
