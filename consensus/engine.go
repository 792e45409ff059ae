package consensus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/events"
	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/mempool"
	"github.com/ioi-foundation/kernel/services/identity"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/types"
)

// ErrNotLeader is returned by ProduceBlock when the local validator is not
// the leader for the next (height, view).
var ErrNotLeader = errors.New("consensus: not the leader for this round")

// Round tracks the live (height, view) the engine is working on — reset to
// view 0 on every new height, advanced on a view-change timeout.
type Round struct {
	Height uint64
	View   uint64
}

// Engine drives block production: the leader of the current (height, view)
// executes, commits and signs a block in ProduceBlock, and AdvanceView moves
// to View+1 with an exponential backoff, mirroring the teacher's single
// ticker-driven ProduceBlock loop. It does not collect PreVotes or
// PreCommits into quorum certificates before committing; preVotes and
// preCommits are only reset on view and height changes.
type Engine struct {
	tree     *state.Tree
	machine  *execution.Machine
	pool     *mempool.Mempool
	emitter  *events.Emitter
	detector *Detector
	privKey  crypto.PrivateKey
	selfID   types.AccountId

	maxBlockTxs int
	chainID     types.ChainId

	round       Round
	preVotes    *QuorumCert
	preCommits  *QuorumCert
	viewTimeout backoff.BackOff

	logger *zap.Logger
}

func New(
	tree *state.Tree,
	machine *execution.Machine,
	pool *mempool.Mempool,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
	chainID types.ChainId,
	maxBlockTxs int,
) *Engine {
	if maxBlockTxs <= 0 {
		maxBlockTxs = 500
	}
	return &Engine{
		tree:        tree,
		machine:     machine,
		pool:        pool,
		emitter:     emitter,
		detector:    NewDetector(),
		privKey:     privKey,
		selfID:      types.DeriveAccountId(types.SuiteEd25519, privKey.Public()),
		maxBlockTxs: maxBlockTxs,
		chainID:     chainID,
		viewTimeout: newViewChangeBackoff(),
		logger:      zap.NewNop(),
	}
}

// WithLogger swaps in a component-scoped logger; the engine defaults to a
// no-op logger so callers that don't care about consensus logs (unit tests)
// never need to wire one up.
func (e *Engine) WithLogger(logger *zap.Logger) *Engine {
	e.logger = logger.Named("consensus")
	return e
}

func newViewChangeBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 8 * time.Second
	b.MaxElapsedTime = 0 // never stop trying to make progress
	return b
}

// currentValidators reads the validator set committed in tree, via the
// identity service's own manifest so the read crosses NamespacedStore's
// permission check, the same access path execution gives any service.
func (e *Engine) currentValidators() (*types.ValidatorSetsV1, error) {
	store := execution.NewNamespacedStore(e.tree, identity.New().Manifest())
	return identity.CurrentValidators(store)
}

// IsLeader reports whether the local validator is the leader for (height, view).
func (e *Engine) IsLeader(height, view uint64) (bool, error) {
	sets, err := e.currentValidators()
	if err != nil {
		return false, err
	}
	leader, ok := sets.LeaderForView(height, view)
	if !ok {
		return false, nil
	}
	return leader.AccountID == e.selfID, nil
}

// ProduceBlock builds, executes, and signs a proposal for the engine's
// current round, if and only if the local validator leads that round.
func (e *Engine) ProduceBlock(parentHash [32]byte, parentStateRoot [32]byte) (*types.Block, error) {
	isLeader, err := e.IsLeader(e.round.Height, e.round.View)
	if err != nil {
		return nil, fmt.Errorf("consensus: leader check: %w", err)
	}
	if !isLeader {
		return nil, ErrNotLeader
	}

	sets, err := e.currentValidators()
	if err != nil {
		return nil, err
	}

	txs := e.pool.ReadyTransactions(e.maxBlockTxs)
	receipts := e.machine.PrepareBlock(e.tree, txs)

	if err := e.machine.EndBlock(e.tree, e.round.Height, execution.TotalGasUsed(receipts)); err != nil {
		return nil, fmt.Errorf("consensus: end block: %w", err)
	}
	stateRoot, _, err := e.machine.CommitBlock(e.tree)
	if err != nil {
		return nil, fmt.Errorf("consensus: commit block: %w", err)
	}

	header := types.BlockHeader{
		Height:           e.round.Height,
		ParentHash:       parentHash,
		StateRoot:        stateRoot,
		TransactionsRoot: types.TransactionsRoot(txs),
		ValidatorSetHash: validatorSetHash(sets),
		Timestamp:        time.Now().Unix(),
		ProducerPKHash:   crypto.Hash32(e.privKey.Public()),
		View:             e.round.View,
	}
	blockHash := header.Hash()
	sig := e.privKey.Sign(blockHash[:])

	block := &types.Block{
		Header:       header,
		Transactions: txs,
		Signatures:   []types.BlockSignature{{ValidatorID: e.selfID, Signature: sig}},
	}

	e.emitter.Publish(types.KernelEvent{
		Kind:   types.EventBlockCommitted,
		Height: header.Height,
		Data:   map[string]any{"hash": header.HashHex(), "tx_count": len(txs)},
	})

	txHashes := make([]types.TxHash, len(txs))
	for i, tx := range txs {
		txHashes[i] = tx.Hash()
		accountID := ""
		if tx.Kind != types.TxSemantic {
			accountID = tx.Header.AccountID.String()
		} else {
			e.pool.RemoveSemantic(txHashes[i])
		}
		e.emitter.Publish(types.KernelEvent{
			Kind:   types.EventTransactionExecuted,
			Height: header.Height,
			Data: map[string]any{
				"tx_hash":    tx.Hash().String(),
				"account_id": accountID,
				"service_id": tx.ServiceID,
				"method":     tx.Method,
			},
		})
	}
	e.pool.AdvanceNonces(nonceUpdatesFor(txs))
	e.detector.Forget(header.Height)
	return block, nil
}

func nonceUpdatesFor(txs []types.Transaction) []mempool.NonceUpdate {
	latest := make(map[types.AccountId]uint64)
	for _, tx := range txs {
		if tx.Kind == types.TxSemantic {
			continue
		}
		latest[tx.Header.AccountID] = tx.Header.Nonce + 1
	}
	updates := make([]mempool.NonceUpdate, 0, len(latest))
	for id, n := range latest {
		updates = append(updates, mempool.NonceUpdate{AccountID: id, NewNonce: n})
	}
	return updates
}

func validatorSetHash(sets *types.ValidatorSetsV1) [32]byte {
	raw, _ := json.Marshal(sets)
	return crypto.Hash32(raw)
}

// ObserveProposal feeds an incoming proposal's (producer, block hash) into
// the A-DMFT detector and returns any equivocation it catches.
func (e *Engine) ObserveProposal(mirror string, header *types.BlockHeader, producer [32]byte) *Equivocation {
	return e.detector.Observe(header.Height, header.View, producer, mirror, header.Hash())
}

// AdvanceView moves the engine to View+1 after the current view timed out
// without reaching commit, and returns how long to back off before trying
// again — the "exponential backoff view-change timer" generalization of the
// teacher's fixed ticker. It does not build or send a ViewChangeMsg.
func (e *Engine) AdvanceView() time.Duration {
	e.round.View++
	e.preVotes = nil
	e.preCommits = nil
	wait := e.viewTimeout.NextBackOff()
	if wait == backoff.Stop {
		wait = 8 * time.Second
	}
	e.logger.Info("view change",
		zap.Uint64("height", e.round.Height),
		zap.Uint64("new_view", e.round.View),
		zap.Duration("backoff", wait),
	)
	return wait
}

// AdvanceHeight resets the round to a new height at view 0, called after a
// successful Commit, and resets the view-change backoff clock since the
// chain just made progress.
func (e *Engine) AdvanceHeight(height uint64) {
	e.round = Round{Height: height, View: 0}
	e.preVotes = nil
	e.preCommits = nil
	e.viewTimeout = newViewChangeBackoff()
}

func (e *Engine) Round() Round { return e.round }
