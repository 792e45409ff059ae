package state

import (
	"fmt"
	"sync"
)

const pinShardCount = 16

// PinSet tracks, per version, how many callers currently hold a read
// reference to it. Pruning a version is refused while its refcount is
// nonzero. Counters are sharded by version modulo pinShardCount purely to
// reduce lock contention between unrelated versions under concurrent
// historical reads; it carries no other significance.
type PinSet struct {
	shards [pinShardCount]pinShard
}

type pinShard struct {
	mu     sync.Mutex
	counts map[uint64]int
}

func NewPinSet() *PinSet {
	ps := &PinSet{}
	for i := range ps.shards {
		ps.shards[i].counts = make(map[uint64]int)
	}
	return ps
}

func (ps *PinSet) shardFor(version uint64) *pinShard {
	return &ps.shards[version%pinShardCount]
}

// Pin increments version's refcount and returns a PinGuard. The guard's
// Release must run even on an error path or panic unwind — callers should
// `defer guard.Release()` immediately after Pin returns.
func (ps *PinSet) Pin(version uint64) *PinGuard {
	s := ps.shardFor(version)
	s.mu.Lock()
	s.counts[version]++
	s.mu.Unlock()
	return &PinGuard{ps: ps, version: version}
}

// IsPinned reports whether version currently has any outstanding pin.
func (ps *PinSet) IsPinned(version uint64) bool {
	s := ps.shardFor(version)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[version] > 0
}

func (ps *PinSet) release(version uint64) {
	s := ps.shardFor(version)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.counts[version]
	if n <= 1 {
		delete(s.counts, version)
		return
	}
	s.counts[version] = n - 1
}

// PinGuard holds one pin on a version. Release is idempotent: calling it
// more than once after the first call is a no-op, making `defer
// guard.Release()` safe even when a caller also releases early.
type PinGuard struct {
	ps       *PinSet
	version  uint64
	released bool
	mu       sync.Mutex
}

func (g *PinGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	g.released = true
	g.ps.release(g.version)
}

func (g *PinGuard) String() string {
	return fmt.Sprintf("pin(version=%d)", g.version)
}
