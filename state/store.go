package state

import (
	"encoding/json"
	"fmt"
)

// NodeStore persists content-addressed tree nodes, keyed by their own hash.
// Because nodes are immutable once hashed, distinct versions of the tree
// share any subtree that did not change — the classic IAVL space saving.
type NodeStore interface {
	GetNode(hash [32]byte) (*Node, error)
	PutNode(n *Node) error
}

// KVBackend is the minimal persistence contract NodeStore needs; the
// storage package's leveldb-backed DB satisfies it directly.
type KVBackend interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Has(key []byte) (bool, error)
	Delete(key []byte) error
}

var errNodeNotFound = fmt.Errorf("state: node not found")

// IsNotFound reports whether err is the not-found sentinel NodeStore
// implementations return for a missing hash.
func IsNotFound(err error) bool { return err == errNodeNotFound }

type storedNode struct {
	IsLeaf   bool     `json:"leaf"`
	Key      []byte   `json:"key,omitempty"`
	Value    []byte   `json:"value,omitempty"`
	Version  uint64   `json:"version,omitempty"`
	Height   int8     `json:"height,omitempty"`
	Size     int64    `json:"size,omitempty"`
	Left     [32]byte `json:"left,omitempty"`
	Right    [32]byte `json:"right,omitempty"`
	SplitKey []byte   `json:"split_key,omitempty"`
	MinKey   []byte   `json:"min_key,omitempty"`
}

const nodeKeyPrefix = "state::node::"

func nodeStoreKey(hash [32]byte) []byte {
	return append([]byte(nodeKeyPrefix), hash[:]...)
}

// KVNodeStore adapts a KVBackend (e.g. the leveldb-backed storage.DB) into a
// NodeStore, namespacing every node under the state::node:: prefix.
type KVNodeStore struct {
	backend KVBackend
}

func NewKVNodeStore(backend KVBackend) *KVNodeStore {
	return &KVNodeStore{backend: backend}
}

func (s *KVNodeStore) GetNode(hash [32]byte) (*Node, error) {
	raw, err := s.backend.Get(nodeStoreKey(hash))
	if err != nil {
		return nil, fmt.Errorf("state: read node %x: %w", hash, err)
	}
	if raw == nil {
		return nil, errNodeNotFound
	}
	var sn storedNode
	if err := json.Unmarshal(raw, &sn); err != nil {
		return nil, fmt.Errorf("state: decode node %x: %w", hash, err)
	}
	n := &Node{
		IsLeaf:   sn.IsLeaf,
		Key:      sn.Key,
		Value:    sn.Value,
		Version:  sn.Version,
		Height:   sn.Height,
		Size:     sn.Size,
		Left:     sn.Left,
		Right:    sn.Right,
		SplitKey: sn.SplitKey,
		MinKey:   sn.MinKey,
	}
	n.hash = hash
	n.hashSet = true
	return n, nil
}

func (s *KVNodeStore) PutNode(n *Node) error {
	h := n.Hash() // must run first: populates n.Left/n.Right from in-memory children
	sn := storedNode{
		IsLeaf:   n.IsLeaf,
		Key:      n.Key,
		Value:    n.Value,
		Version:  n.Version,
		Height:   n.Height,
		Size:     n.Size,
		Left:     n.Left,
		Right:    n.Right,
		SplitKey: n.SplitKey,
		MinKey:   n.MinKey,
	}
	raw, err := json.Marshal(sn)
	if err != nil {
		return fmt.Errorf("state: encode node: %w", err)
	}
	if err := s.backend.Put(nodeStoreKey(h), raw); err != nil {
		return fmt.Errorf("state: write node %x: %w", h, err)
	}
	return nil
}
