// Package state implements the versioned, Merkleized key-value state tree
// that backs every service's storage and the ICS-23-compatible proofs
// served over it. The tree shape and hashing rules follow an IAVL-style
// unbalanced binary Merkle tree: leaves carry (key, value), inner nodes
// carry (height, size, left hash, right hash), and every hash is computed
// over a tagged, length-prefixed preimage so no two distinct node shapes
// can ever collide.
package state

import (
	"encoding/binary"

	"github.com/ioi-foundation/kernel/crypto"
)

const (
	leafTag  = byte(0x00)
	innerTag = byte(0x01)
)

// Node is one node of the state tree, either a leaf or an inner fork. Nodes
// are never mutated after construction: Insert/Delete build new nodes along
// the path from root to the changed leaf and reuse every untouched sibling
// subtree by pointer, so a node's hash never needs to be invalidated once
// computed.
//
// Exactly one of (Key/Value) or (LeftNode/RightNode) is populated, selected
// by IsLeaf. Left/Right hold the persisted hash of each child and are
// filled in lazily from LeftNode/RightNode on first Hash() call, or loaded
// on demand from a NodeStore when a node has been read back from disk and
// its children haven't been materialized yet (LeftNode/RightNode nil but
// Left/Right non-zero).
type Node struct {
	IsLeaf bool

	// Leaf fields.
	Key   []byte
	Value []byte

	// Inner fields. SplitKey is the smallest key reachable in the right
	// subtree: a lookup routes left when key < SplitKey, right otherwise.
	// MinKey is the smallest key reachable anywhere in this node's subtree,
	// kept so an ancestor can compute its own SplitKey in O(1) without
	// descending. Both are derived, not arbitrary, but are persisted
	// alongside the node since recomputing them would require a full
	// subtree walk on every load.
	//
	// Version is the tree version this node was created (or re-created
	// along the path to a mutation) at; an untouched sibling subtree keeps
	// whatever version it was already stamped with. It feeds the inner
	// preimage directly so two structurally identical nodes minted at
	// different versions never collide.
	Version  uint64
	Height   int8
	Size     int64
	Left     [32]byte
	Right    [32]byte
	SplitKey []byte
	MinKey   []byte

	LeftNode  *Node
	RightNode *Node

	hash    [32]byte
	hashSet bool
}

func putUvarint(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

func putUint32LE(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

func putUint64LE(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// leafPreimage builds the tagged preimage for a leaf:
//
//	0x00 || varint(len(key)) || key || varint(len(sha256(value))) || sha256(value)
//
// The value is prehashed so a leaf's preimage size never depends on the
// size of the value it commits to — the same reason ICS-23's LeafOp in
// ics23.go pins PrehashValue to SHA-256.
func leafPreimage(key, value []byte) []byte {
	digest := crypto.HashBytes(value)
	buf := make([]byte, 0, 1+binary.MaxVarintLen64+len(key)+binary.MaxVarintLen64+len(digest))
	buf = append(buf, leafTag)
	buf = putUvarint(buf, uint64(len(key)))
	buf = append(buf, key...)
	buf = putUvarint(buf, uint64(len(digest)))
	buf = append(buf, digest...)
	return buf
}

// innerPreimage builds the tagged preimage for an inner node:
//
//	0x01 || version_le8 || height_le4 || size_le8 || len(split_key)_le4 ||
//	split_key || left_hash || right_hash
//
// Every numeric field is fixed-width little-endian, not varint: the
// preimage must be reproducible byte-for-byte from the node's persisted
// fields alone, with no ambiguity about field boundaries.
func innerPreimage(version uint64, height int8, size int64, splitKey []byte, left, right [32]byte) []byte {
	buf := make([]byte, 0, 1+8+4+8+4+len(splitKey)+64)
	buf = append(buf, innerTag)
	buf = putUint64LE(buf, version)
	buf = putUint32LE(buf, uint32(height))
	buf = putUint64LE(buf, uint64(size))
	buf = putUint32LE(buf, uint32(len(splitKey)))
	buf = append(buf, splitKey...)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return buf
}

// Hash returns the node's hash, computing and caching it on first call. For
// an inner node with in-memory children, it first resolves Left/Right from
// LeftNode/RightNode.
func (n *Node) Hash() [32]byte {
	if n.hashSet {
		return n.hash
	}
	var pre []byte
	if n.IsLeaf {
		pre = leafPreimage(n.Key, n.Value)
	} else {
		if n.LeftNode != nil {
			n.Left = n.LeftNode.Hash()
		}
		if n.RightNode != nil {
			n.Right = n.RightNode.Hash()
		}
		pre = innerPreimage(n.Version, n.Height, n.Size, n.SplitKey, n.Left, n.Right)
	}
	n.hash = crypto.Hash32(pre)
	n.hashSet = true
	return n.hash
}

func newLeaf(key, value []byte, version uint64) *Node {
	return &Node{IsLeaf: true, Key: append([]byte{}, key...), Value: append([]byte{}, value...), Size: 1, Version: version}
}

func newInner(left, right *Node, version uint64) *Node {
	height := int8(1)
	if lh, rh := left.Height, right.Height; !left.IsLeaf || !right.IsLeaf {
		h := lh
		if rh > h {
			h = rh
		}
		height = h + 1
	}
	splitKey := right.Key
	if !right.IsLeaf {
		splitKey = right.MinKey
	}
	minKey := left.Key
	if !left.IsLeaf {
		minKey = left.MinKey
	}
	return &Node{
		IsLeaf:    false,
		Version:   version,
		Height:    height,
		Size:      left.Size + right.Size,
		SplitKey:  splitKey,
		MinKey:    minKey,
		LeftNode:  left,
		RightNode: right,
	}
}
