package mempool

import (
	"sort"
	"sync"

	"github.com/ioi-foundation/kernel/types"
)

// AccountQueue holds one account's pending transactions, split into a
// contiguous ready run (nonce == pendingNonce, pendingNonce+1, ...) and a
// future set (nonce strictly ahead of pendingNonce, waiting for the gap to
// close). PendingNonce is the next nonce this account's transactions will
// execute at — it starts at the account's on-chain nonce and only advances
// when AdvanceNonce is called after a block commits.
type AccountQueue struct {
	mu           sync.Mutex
	pendingNonce uint64
	ready        map[uint64]types.Transaction
	future       map[uint64]types.Transaction
}

func newAccountQueue(pendingNonce uint64) *AccountQueue {
	return &AccountQueue{
		pendingNonce: pendingNonce,
		ready:        make(map[uint64]types.Transaction),
		future:       make(map[uint64]types.Transaction),
	}
}

// Add inserts tx at its nonce, promoting it (and any now-contiguous future
// entries) into ready if it closes the gap, or parking it in future
// otherwise. Returns false if a transaction already occupies that nonce
// (the existing one is kept — replace-by-fee is not implemented).
func (q *AccountQueue) Add(nonce uint64, tx types.Transaction) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if nonce < q.pendingNonce {
		return false // stale, would never execute
	}
	if _, exists := q.ready[nonce]; exists {
		return false
	}
	if _, exists := q.future[nonce]; exists {
		return false
	}

	if nonce == q.pendingNonce || (nonce > q.pendingNonce && q.contiguousFrom(q.pendingNonce, nonce)) {
		q.ready[nonce] = tx
		q.promoteFuture()
		return true
	}
	q.future[nonce] = tx
	return true
}

// contiguousFrom reports whether ready already covers every nonce in
// [from, to) so that adding `to` would extend one unbroken ready run.
func (q *AccountQueue) contiguousFrom(from, to uint64) bool {
	for n := from; n < to; n++ {
		if _, ok := q.ready[n]; !ok {
			return false
		}
	}
	return true
}

// promoteFuture moves future entries into ready while they remain
// contiguous with the ready run's current end.
func (q *AccountQueue) promoteFuture() {
	next := q.readyEnd()
	for {
		tx, ok := q.future[next]
		if !ok {
			return
		}
		delete(q.future, next)
		q.ready[next] = tx
		next++
	}
}

// readyEnd returns one past the highest contiguous ready nonce starting at
// pendingNonce.
func (q *AccountQueue) readyEnd() uint64 {
	n := q.pendingNonce
	for {
		if _, ok := q.ready[n]; !ok {
			return n
		}
		n++
	}
}

// ReadyTxs returns ready transactions in ascending nonce order, the form
// the block proposer consumes them in.
func (q *AccountQueue) ReadyTxs() []types.Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()

	nonces := make([]uint64, 0, len(q.ready))
	for n := range q.ready {
		nonces = append(nonces, n)
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
	out := make([]types.Transaction, 0, len(nonces))
	for _, n := range nonces {
		out = append(out, q.ready[n])
	}
	return out
}

// AdvanceNonce is called after a block commits to drop every transaction at
// a nonce below newPendingNonce and resume ready/future promotion from
// there.
func (q *AccountQueue) AdvanceNonce(newPendingNonce uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if newPendingNonce <= q.pendingNonce {
		return
	}
	for n := q.pendingNonce; n < newPendingNonce; n++ {
		delete(q.ready, n)
		delete(q.future, n)
	}
	q.pendingNonce = newPendingNonce
	q.promoteFuture()
}

// Len returns the total number of transactions (ready + future) held.
func (q *AccountQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.future)
}

// Empty reports whether the queue holds no transactions at all.
func (q *AccountQueue) Empty() bool {
	return q.Len() == 0
}
