// Package indexer maintains secondary indexes over committed transactions
// so RPC clients can answer "what has this account done" without scanning
// every block — the teacher's owner/asset and player/session lookup tables,
// generalized from one game's asset ledger to the kernel's account-scoped
// transaction history.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ioi-foundation/kernel/core"
	"github.com/ioi-foundation/kernel/events"
	"github.com/ioi-foundation/kernel/storage"
)

const prefixAccountTxs = "idx:account:tx:"

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
	logger  *zap.Logger
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter, logger: zap.NewNop()}
	emitter.Subscribe(events.EventKernel, idx.onKernelEvent)
	return idx
}

// WithLogger swaps in a component-scoped logger.
func (idx *Indexer) WithLogger(logger *zap.Logger) *Indexer {
	idx.logger = logger.Named("indexer")
	return idx
}

// GetTransactionsByAccount returns every transaction hash an account has
// had included on-chain, oldest first.
func (idx *Indexer) GetTransactionsByAccount(accountID string) ([]string, error) {
	return idx.getList(prefixAccountTxs + accountID)
}

// ---- event handling ----

// onKernelEvent unwraps the events.EventKernel envelope events.Emitter.Publish
// produces and dispatches on the carried types.KernelEvent's Kind.
func (idx *Indexer) onKernelEvent(ev events.Event) {
	raw, ok := ev.Data["kernel"]
	if !ok {
		return
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return
	}
	var envelope struct {
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return
	}
	if envelope.Kind != "TransactionExecuted" {
		return
	}
	var payload struct {
		TxHash    string `json:"tx_hash"`
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return
	}
	if payload.AccountID == "" || payload.TxHash == "" {
		return // semantic transactions carry no account to index by
	}
	if err := idx.addToList(prefixAccountTxs+payload.AccountID, payload.TxHash); err != nil {
		idx.logger.Error("tx index write failed",
			zap.String("account_id", payload.AccountID), zap.String("tx_hash", payload.TxHash), zap.Error(err))
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil // already present
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
