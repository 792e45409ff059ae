package state

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedNodeStore wraps a NodeStore with an in-memory LRU of recently
// touched nodes, cutting repeated backend round-trips during a single
// block's worth of reads (the same inner nodes near the root are read on
// almost every Get/Insert).
type CachedNodeStore struct {
	inner NodeStore
	cache *lru.Cache[[32]byte, *Node]
}

// NewCachedNodeStore wraps inner with an LRU of the given size. size <= 0
// is treated as size 1, a one-entry cache.
func NewCachedNodeStore(inner NodeStore, size int) *CachedNodeStore {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[[32]byte, *Node](size)
	return &CachedNodeStore{inner: inner, cache: c}
}

func (s *CachedNodeStore) GetNode(hash [32]byte) (*Node, error) {
	if n, ok := s.cache.Get(hash); ok {
		return n, nil
	}
	n, err := s.inner.GetNode(hash)
	if err != nil {
		return nil, err
	}
	s.cache.Add(hash, n)
	return n, nil
}

func (s *CachedNodeStore) PutNode(n *Node) error {
	if err := s.inner.PutNode(n); err != nil {
		return err
	}
	s.cache.Add(n.Hash(), n)
	return nil
}
