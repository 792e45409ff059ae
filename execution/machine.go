package execution

import (
	"fmt"

	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/types"
)

// Receipt records one transaction's execution outcome within a block.
type Receipt struct {
	TxHash  types.TxHash
	Success bool
	Error   string
	Result  []byte
	GasUsed uint64
}

// flatGasCost is the per-transaction gas charge. The kernel doesn't meter
// instruction-level cost (no service here runs untrusted bytecode that
// would need it); a flat cost is enough to drive the block-timing EMA with
// a meaningful "how busy was this block" signal.
const flatGasCost = 1000

// TotalGasUsed sums GasUsed across a block's receipts, the value fed into
// the block-timing service's EndBlock hook.
func TotalGasUsed(receipts []Receipt) uint64 {
	var total uint64
	for _, r := range receipts {
		total += r.GasUsed
	}
	return total
}

// Machine applies a block's transactions against a state.Tree: each
// transaction runs ValidateAnte, dispatches into its target service, then
// WriteAnte, with a failure at any stage producing a failed Receipt rather
// than aborting the block (one bad transaction should not block every
// other transaction in the same block from executing).
type Machine struct {
	registry   *Registry
	decorators []TxDecorator
}

func NewMachine(registry *Registry, decorators ...TxDecorator) *Machine {
	if len(decorators) == 0 {
		decorators = []TxDecorator{NonceDecorator{}}
	}
	return &Machine{registry: registry, decorators: decorators}
}

// PrepareBlock applies every transaction in txs against tree in order,
// returning one Receipt per transaction. It never returns an error itself;
// per-transaction failures are reported in their Receipt.
func (m *Machine) PrepareBlock(tree *state.Tree, txs []types.Transaction) []Receipt {
	receipts := make([]Receipt, 0, len(txs))
	for i := range txs {
		tx := &txs[i]
		receipts = append(receipts, m.applyOne(tree, tx))
	}
	return receipts
}

func (m *Machine) applyOne(tree *state.Tree, tx *types.Transaction) Receipt {
	hash := tx.Hash()
	for _, d := range m.decorators {
		if err := d.ValidateAnte(tree, tx); err != nil {
			return Receipt{TxHash: hash, Success: false, Error: err.Error()}
		}
	}

	result, err := m.registry.Dispatch(tree, tx.ServiceID, tx.Method, tx.Payload, true)
	if err != nil {
		return Receipt{TxHash: hash, Success: false, Error: err.Error()}
	}

	for _, d := range m.decorators {
		if err := d.WriteAnte(tree, tx); err != nil {
			return Receipt{TxHash: hash, Success: false, Error: fmt.Sprintf("write-ante failed after successful execution: %v", err)}
		}
	}
	return Receipt{TxHash: hash, Success: true, Result: result, GasUsed: flatGasCost}
}

// EndBlock runs every registered service's EndBlock hook, in service-id
// order. Per spec this is where validator-set promotion and block-timing
// retarget live, implemented as services/identity and services/timing
// rather than built into Machine itself, so new end-of-block behaviors
// don't require touching this package.
func (m *Machine) EndBlock(tree *state.Tree, height, gasUsed uint64) error {
	for _, h := range m.registry.All() {
		eb, ok := h.(EndBlockHandler)
		if !ok {
			continue
		}
		manifest := h.Manifest()
		store := NewNamespacedStore(tree, manifest)
		if err := eb.EndBlock(store, height, gasUsed); err != nil {
			return fmt.Errorf("execution: end-block hook for %s: %w", manifest.ID, err)
		}
	}
	return nil
}

// CommitBlock commits the tree to a new persisted version and returns its
// root hash, the value that becomes the next block header's StateRoot.
func (m *Machine) CommitBlock(tree *state.Tree) ([32]byte, uint64, error) {
	root, version, err := tree.CommitVersion()
	if err != nil {
		return [32]byte{}, 0, fmt.Errorf("execution: commit version: %w", err)
	}
	return root, version, nil
}
