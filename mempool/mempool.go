// Package mempool implements the kernel's sharded pending-transaction pool.
// Account-bound transactions (System, Settlement, Application) are routed
// by a stable hash of their account id into one of shardCount shards, each
// owning an independent map of per-account AccountQueues; this bounds lock
// contention to whichever shards a given burst of traffic actually touches
// instead of serializing the whole pool behind one mutex. Semantic
// (account-less) transactions have no account to shard on and instead flow
// through a single FIFO queue.
package mempool

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/types"
)

const shardCount = 64

// NonceSource looks up an account's current on-chain nonce, used to seed a
// brand-new AccountQueue the first time that account is seen.
type NonceSource interface {
	AccountNonce(id types.AccountId) (uint64, error)
}

type shard struct {
	mu       sync.RWMutex
	accounts map[types.AccountId]*AccountQueue
}

// Mempool is the kernel's single pending-transaction pool.
type Mempool struct {
	shards     [shardCount]shard
	others     othersQueue
	nonces     NonceSource
	totalCount int64 // atomic
}

func New(nonces NonceSource) *Mempool {
	m := &Mempool{nonces: nonces}
	for i := range m.shards {
		m.shards[i].accounts = make(map[types.AccountId]*AccountQueue)
	}
	return m
}

// shardIndex hashes id into [0, shardCount) with sha256, not id's own
// bytes, so accounts that happen to share a byte prefix (sequential ids
// from one onboarding batch, say) don't pile onto the same shard.
func shardIndex(id types.AccountId) int {
	h := crypto.HashBytes(id[:])
	return int(h[0]) % shardCount
}

// Submit adds tx to the pool. Semantic transactions go to the FIFO others
// queue; every other kind is routed to its account's shard and queue.
func (m *Mempool) Submit(tx types.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("mempool: %w", err)
	}
	if tx.Kind == types.TxSemantic {
		m.others.push(tx)
		atomic.AddInt64(&m.totalCount, 1)
		return nil
	}

	id := tx.Header.AccountID
	s := &m.shards[shardIndex(id)]

	s.mu.Lock()
	q, ok := s.accounts[id]
	if !ok {
		nonce, err := m.nonces.AccountNonce(id)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("mempool: look up nonce for %s: %w", id, err)
		}
		q = newAccountQueue(nonce)
		s.accounts[id] = q
	}
	s.mu.Unlock()

	if !q.Add(tx.Header.Nonce, tx) {
		return fmt.Errorf("mempool: duplicate or stale nonce %d for account %s", tx.Header.Nonce, id)
	}
	atomic.AddInt64(&m.totalCount, 1)
	return nil
}

// ReadyTransactions returns every ready-to-execute transaction across all
// shards plus the others queue, in an order suitable for block proposal:
// others first (they carry no ordering dependency), then each account's
// ready run. Shard iteration order is fixed (0..shardCount), and accounts
// within a shard are visited in ascending account-id order, so two calls
// against the same pool state return the same order, which keeps block
// proposal deterministic for a given mempool snapshot.
func (m *Mempool) ReadyTransactions(limit int) []types.Transaction {
	var out []types.Transaction
	for _, tx := range m.others.drainSnapshot() {
		if limit > 0 && len(out) >= limit {
			return out
		}
		out = append(out, tx)
	}
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		ids := make([]types.AccountId, 0, len(s.accounts))
		for id := range s.accounts {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(a, b int) bool { return bytes.Compare(ids[a][:], ids[b][:]) < 0 })
		accts := make([]*AccountQueue, 0, len(ids))
		for _, id := range ids {
			accts = append(accts, s.accounts[id])
		}
		s.mu.RUnlock()
		for _, q := range accts {
			for _, tx := range q.ReadyTxs() {
				if limit > 0 && len(out) >= limit {
					return out
				}
				out = append(out, tx)
			}
		}
	}
	return out
}

// NonceUpdate is one account's new pending nonce after a block commits.
type NonceUpdate struct {
	AccountID types.AccountId
	NewNonce  uint64
}

// AdvanceNonces applies a batch of post-commit nonce updates, grouping them
// by shard so each touched shard's lock is taken twice per call (once to
// look up its queues, once to reap empty ones) rather than once per account.
func (m *Mempool) AdvanceNonces(updates []NonceUpdate) {
	byShard := make(map[int][]NonceUpdate, shardCount)
	for _, u := range updates {
		idx := shardIndex(u.AccountID)
		byShard[idx] = append(byShard[idx], u)
	}
	for idx, ups := range byShard {
		s := &m.shards[idx]
		s.mu.RLock()
		queues := make([]*AccountQueue, 0, len(ups))
		newNonces := make([]uint64, 0, len(ups))
		for _, u := range ups {
			if q, ok := s.accounts[u.AccountID]; ok {
				queues = append(queues, q)
				newNonces = append(newNonces, u.NewNonce)
			}
		}
		s.mu.RUnlock()
		for i, q := range queues {
			before := q.Len()
			q.AdvanceNonce(newNonces[i])
			atomic.AddInt64(&m.totalCount, int64(q.Len()-before))
		}
		m.reapEmpty(idx)
	}
}

// reapEmpty drops AccountQueues left with no pending or future transactions
// after an advance, so long-idle accounts don't accumulate empty map
// entries forever.
func (m *Mempool) reapEmpty(shardIdx int) {
	s := &m.shards[shardIdx]
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, q := range s.accounts {
		if q.Empty() {
			delete(s.accounts, id)
		}
	}
}

// Count returns the total number of pending transactions across the pool.
func (m *Mempool) Count() int {
	return int(atomic.LoadInt64(&m.totalCount))
}

// RemoveSemantic drops a Semantic transaction from the others queue by
// hash, called once the transaction is included in a committed block.
func (m *Mempool) RemoveSemantic(hash types.TxHash) bool {
	removed := m.others.remove(hash)
	if removed {
		atomic.AddInt64(&m.totalCount, -1)
	}
	return removed
}
