package execution

import (
	"fmt"

	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/types"
)

// TxDecorator runs around every signed transaction, independent of which
// service it targets: a read-only ValidateAnte pass that can reject the
// transaction before any state is touched, followed by a WriteAnte pass
// that commits the decorator's bookkeeping (nonce increment). Machine runs
// WriteAnte only after the transaction's dispatch succeeded, so a failed
// transaction leaves its nonce unchanged. Splitting the two means a decorator can
// refuse a batch of transactions up front without partially mutating state
// for the ones that would have failed later.
type TxDecorator interface {
	ValidateAnte(tree *state.Tree, tx *types.Transaction) error
	WriteAnte(tree *state.Tree, tx *types.Transaction) error
}

// NonceDecorator enforces and advances the account nonce sequence. It is
// always first in the decorator chain: nothing else should run against an
// account whose nonce doesn't match expectations.
type NonceDecorator struct{}

func (NonceDecorator) ValidateAnte(tree *state.Tree, tx *types.Transaction) error {
	if tx.Kind == types.TxSemantic {
		return nil
	}
	raw, ok, err := tree.Get([]byte(types.AccountNonceKey(tx.Header.AccountID)))
	if err != nil {
		return fmt.Errorf("execution: read nonce: %w", err)
	}
	current := uint64(0)
	if ok {
		current = decodeUint64(raw)
	}
	if tx.Header.Nonce != current {
		return fmt.Errorf("execution: nonce mismatch: tx has %d, account is at %d", tx.Header.Nonce, current)
	}
	return nil
}

func (NonceDecorator) WriteAnte(tree *state.Tree, tx *types.Transaction) error {
	if tx.Kind == types.TxSemantic {
		return nil
	}
	next := tx.Header.Nonce + 1
	return tree.Insert([]byte(types.AccountNonceKey(tx.Header.AccountID)), encodeUint64(next))
}

// ReadAccountNonce returns an account's current on-chain nonce (0 if the
// account has never transacted) and whether any nonce entry exists at all —
// the same read NonceDecorator.ValidateAnte performs, exported so the
// mempool and firewall packages can answer the same question without
// reaching into state.Tree's raw key encoding themselves.
func ReadAccountNonce(tree *state.Tree, id types.AccountId) (nonce uint64, known bool, err error) {
	raw, ok, err := tree.Get([]byte(types.AccountNonceKey(id)))
	if err != nil {
		return 0, false, fmt.Errorf("execution: read nonce: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	return decodeUint64(raw), true, nil
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

func decodeUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
