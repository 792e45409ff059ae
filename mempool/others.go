package mempool

import (
	"sync"

	"github.com/ioi-foundation/kernel/types"
)

// othersQueue is the FIFO pool for Semantic transactions, which carry no
// account id and therefore no nonce ordering to enforce.
type othersQueue struct {
	mu    sync.Mutex
	order []types.TxHash
	byTx  map[types.TxHash]types.Transaction
}

func (q *othersQueue) push(tx types.Transaction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.byTx == nil {
		q.byTx = make(map[types.TxHash]types.Transaction)
	}
	h := tx.Hash()
	if _, exists := q.byTx[h]; exists {
		return
	}
	q.byTx[h] = tx
	q.order = append(q.order, h)
}

func (q *othersQueue) remove(h types.TxHash) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byTx[h]; !ok {
		return false
	}
	delete(q.byTx, h)
	for i, oh := range q.order {
		if oh == h {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// drainSnapshot returns the current FIFO order without removing entries;
// entries are cleared explicitly via remove (Mempool.RemoveSemantic) once
// their transaction is included in a committed block.
func (q *othersQueue) drainSnapshot() []types.Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]types.Transaction, 0, len(q.order))
	for _, h := range q.order {
		out = append(out, q.byTx[h])
	}
	return out
}
