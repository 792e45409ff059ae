// Package orchestrator wires the validating half of the process topology
// together: state, execution, the firewall ingress gate, the mempool,
// consensus, P2P networking, and public RPC. This is the process spec §2
// calls the Orchestrator — it owns everything except the sandboxed agentic
// workload, which in a two-process deployment lives behind ipc/control
// instead. Consensus here still drives the state tree and execution
// machine directly (mirroring the teacher's single-process poa.go loop);
// see DESIGN.md for why that boundary, not the gRPC one, is where this
// kernel actually splits trust domains.
package orchestrator

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ioi-foundation/kernel/config"
	"github.com/ioi-foundation/kernel/consensus"
	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/events"
	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/firewall"
	"github.com/ioi-foundation/kernel/indexer"
	"github.com/ioi-foundation/kernel/mempool"
	"github.com/ioi-foundation/kernel/network"
	"github.com/ioi-foundation/kernel/rpc"
	"github.com/ioi-foundation/kernel/services/agentic"
	"github.com/ioi-foundation/kernel/services/governance"
	"github.com/ioi-foundation/kernel/services/identity"
	"github.com/ioi-foundation/kernel/services/nonce"
	"github.com/ioi-foundation/kernel/services/settlement"
	"github.com/ioi-foundation/kernel/services/timing"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/telemetry"
	"github.com/ioi-foundation/kernel/types"
)

// treeAccountLookup adapts *state.Tree to firewall.AccountLookup.
type treeAccountLookup struct {
	tree *state.Tree
}

func (l treeAccountLookup) AccountNonce(id types.AccountId) (uint64, bool, error) {
	return execution.ReadAccountNonce(l.tree, id)
}

// mempoolNonceSource adapts the same read to mempool.NonceSource's
// narrower (nonce, error) shape — "unknown account" and "nonce zero" are
// the same answer from the mempool's point of view, since a brand-new
// AccountQueue seeded at nonce 0 is exactly what an unseen account needs.
type mempoolNonceSource struct {
	tree *state.Tree
}

func (s mempoolNonceSource) AccountNonce(id types.AccountId) (uint64, error) {
	nonce, _, err := execution.ReadAccountNonce(s.tree, id)
	return nonce, err
}

// machineBlockExecutor adapts an Orchestrator to network.BlockExecutor so
// the Syncer can replay fetched blocks through the exact same
// PrepareBlock/EndBlock/CommitBlock path ProduceBlock uses.
type machineBlockExecutor struct {
	o *Orchestrator
}

func (e machineBlockExecutor) ExecuteBlock(block *types.Block) error {
	receipts := e.o.machine.PrepareBlock(e.o.tree, block.Transactions)
	if err := e.o.machine.EndBlock(e.o.tree, block.Header.Height, execution.TotalGasUsed(receipts)); err != nil {
		return fmt.Errorf("orchestrator: sync end block: %w", err)
	}
	root, version, err := e.o.machine.CommitBlock(e.o.tree)
	if err != nil {
		return fmt.Errorf("orchestrator: sync commit block: %w", err)
	}
	if root != block.Header.StateRoot {
		return fmt.Errorf("orchestrator: sync state root mismatch at height %d", block.Header.Height)
	}
	if err := e.o.versions.Record(version, root); err != nil {
		return fmt.Errorf("orchestrator: record synced version: %w", err)
	}
	e.o.pool.AdvanceNonces(nonceUpdatesFromBlock(block))
	for _, tx := range block.Transactions {
		if tx.Kind == types.TxSemantic {
			e.o.pool.RemoveSemantic(tx.Hash())
		}
	}
	e.o.engine.AdvanceHeight(block.Header.Height + 1)
	return nil
}

func nonceUpdatesFromBlock(block *types.Block) []mempool.NonceUpdate {
	latest := make(map[types.AccountId]uint64)
	for _, tx := range block.Transactions {
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

// signatureValidator adapts transaction signature verification into
// network.BlockValidator: a synced block is accepted structurally only if
// every signed transaction it carries verifies against its own proof.
type signatureValidator struct{}

func (signatureValidator) ValidateBlock(block *types.Block) error {
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if tx.Kind == types.TxSemantic {
			continue
		}
		if err := tx.VerifySignature(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}
	return nil
}

// Config bundles everything Orchestrator needs to assemble itself, kept as
// one struct so cmd/orchestrator can build it straight from a parsed
// config.Config without threading a dozen positional arguments through New.
type Config struct {
	ChainID       types.ChainId
	NodeID        string
	P2PAddr       string
	RPCAddr       string
	RPCAuthToken  string
	TelemetryAddr string
	MaxBlockTxs   int
	Policy        firewall.Policy
	ScrubPatterns []string
	NodeCacheSize int // decoded-node LRU capacity; 0 defaults to 4096
}

// Orchestrator owns consensus, networking, the mempool, the firewall, and
// public RPC against a local state tree and execution machine — the
// embedded-mode half of the Workload/Orchestrator split, suitable for
// tests and single-binary deployments; cmd/orchestrator additionally shows
// how to point the same pieces at a remote Workload over ipc/control for
// the agentic execution path specifically.
type Orchestrator struct {
	tree      *state.Tree
	nodeStore state.NodeStore
	versions  *state.VersionIndex
	machine   *execution.Machine
	pool      *mempool.Mempool
	emitter   *events.Emitter
	engine    *consensus.Engine
	fw        *firewall.Firewall
	blocks    *storage.BlockStore

	node   *network.Node
	syncer *network.Syncer
	rpc    *rpc.Server

	metrics      *telemetry.Metrics
	metricsStop  context.CancelFunc
	logger       *zap.Logger

	privKey crypto.PrivateKey
	selfID  types.AccountId
	cfg     Config
}

// New assembles an Orchestrator over db: state tree, every compiled-in
// service, the firewall, mempool, consensus engine, P2P node, syncer, and
// RPC server, mirroring cmd/node's old construction order but generalized
// from the teacher's flat core.Blockchain/core.Mempool pair to the
// kernel's tree/services/firewall stack.
func New(cfg Config, db storage.DB, privKey crypto.PrivateKey, tlsCfg *tls.Config, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBlockTxs <= 0 {
		cfg.MaxBlockTxs = 500
	}
	if cfg.NodeCacheSize <= 0 {
		cfg.NodeCacheSize = 4096
	}

	blocks := storage.NewBlockStore(db)
	backend := storage.NewKVAdapter(db)
	nodeStore := state.NewCachedNodeStore(state.NewKVNodeStore(backend), cfg.NodeCacheSize)
	versions := state.NewVersionIndex(backend)
	tree, err := loadTipTree(nodeStore, blocks)
	if err != nil {
		return nil, err
	}

	registry := execution.NewRegistry()
	registry.Register(settlement.New())
	registry.Register(identity.New())
	registry.Register(timing.New())
	registry.Register(nonce.New())
	registry.Register(governance.New(tree.Version))
	registry.Register(agentic.New())
	machine := execution.NewMachine(registry)

	emitter := events.NewEmitter()
	pool := mempool.New(mempoolNonceSource{tree: tree})

	policy := firewall.NewPolicyEngine(cfg.Policy)
	scrubber := firewall.NewScrubber(cfg.ScrubPatterns)
	fw := firewall.New(treeAccountLookup{tree: tree}, policy, scrubber, emitter, func() int64 { return time.Now().Unix() }, agentic.ServiceID)

	engine := consensus.New(tree, machine, pool, emitter, privKey, cfg.ChainID, cfg.MaxBlockTxs).WithLogger(logger)

	idx := indexer.New(db, emitter).WithLogger(logger)

	node := network.NewNode(cfg.NodeID, cfg.P2PAddr, pool, tlsCfg).WithLogger(logger)

	o := &Orchestrator{
		tree: tree, nodeStore: nodeStore, versions: versions,
		machine: machine, pool: pool, emitter: emitter, engine: engine,
		fw: fw, blocks: blocks, node: node, privKey: privKey,
		selfID: types.DeriveAccountId(types.SuiteEd25519, privKey.Public()),
		cfg:    cfg, logger: logger.Named("orchestrator"),
	}
	node.Handle(network.MsgTx, o.handleGossipedTx)
	o.syncer = network.NewSyncer(node, blocks, signatureValidator{}, machineBlockExecutor{o: o}).WithLogger(logger)

	handler := rpc.NewHandler(blocks, tree, nodeStore, versions, pool, fw, idx, cfg.ChainID)
	o.rpc = rpc.NewServer(cfg.RPCAddr, handler, cfg.RPCAuthToken).WithLogger(logger)

	if cfg.TelemetryAddr != "" {
		o.metrics = telemetry.NewMetrics("kernel_orchestrator")
	}

	engine.AdvanceHeight(tree.Version() + 1)

	return o, nil
}

// loadTipTree reconstructs the state tree at the chain's current tip, or
// returns a fresh empty tree if blocks holds no committed chain yet —
// without this, restarting an existing node would silently discard every
// committed block's state and resume from genesis.
func loadTipTree(nodeStore state.NodeStore, blocks *storage.BlockStore) (*state.Tree, error) {
	tip, err := blocks.GetTip()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: read chain tip: %w", err)
	}
	if tip == "" {
		return state.NewTree(nodeStore), nil
	}
	block, err := blocks.GetBlock(tip)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load tip block %s: %w", tip, err)
	}
	tree, err := state.LoadAt(nodeStore, block.Header.StateRoot, block.Header.Height)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load tip state: %w", err)
	}
	return tree, nil
}

// SeedGenesis builds and persists block #0 against this Orchestrator's own
// tree, for a fresh database with no committed chain. Callers must check
// that this is in fact the first run (an empty chain tip) before calling.
func (o *Orchestrator) SeedGenesis(cfg *config.Config) error {
	genesisBlock, err := config.CreateGenesisBlock(cfg, o.tree, o.privKey)
	if err != nil {
		return fmt.Errorf("orchestrator: create genesis: %w", err)
	}
	if err := o.blocks.PutBlock(genesisBlock); err != nil {
		return fmt.Errorf("orchestrator: persist genesis: %w", err)
	}
	if err := o.blocks.SetTip(genesisBlock.Header.HashHex()); err != nil {
		return fmt.Errorf("orchestrator: set genesis tip: %w", err)
	}
	if err := o.versions.Record(o.tree.Version(), genesisBlock.Header.StateRoot); err != nil {
		return fmt.Errorf("orchestrator: record genesis version: %w", err)
	}
	o.engine.AdvanceHeight(1)
	return nil
}

// handleGossipedTx runs an incoming peer transaction through the same
// firewall gate RPC's sendTx uses before admitting it to the mempool, so a
// transaction can never reach execution by way of gossip alone — overriding
// network.Node's default handleTx, which submits straight to the mempool.
func (o *Orchestrator) handleGossipedTx(_ *network.Peer, msg network.Message) {
	var tx types.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		o.logger.Warn("unmarshal gossiped tx", zap.Error(err))
		return
	}
	decision, err := o.fw.Evaluate(&tx)
	if err != nil {
		o.logger.Debug("firewall rejected gossiped tx", zap.Error(err))
		return
	}
	if decision.Verdict != types.VerdictAllow {
		o.logger.Debug("firewall verdict on gossiped tx", zap.String("verdict", string(decision.Verdict)))
		return
	}
	if decision.ScrubbedPayload != nil {
		tx.Payload = decision.ScrubbedPayload
	}
	if err := o.pool.Submit(tx); err != nil {
		o.logger.Debug("mempool rejected gossiped tx", zap.Error(err))
	}
}

// Start binds the P2P listener, the RPC server, and (if configured) the
// telemetry endpoint.
func (o *Orchestrator) Start() error {
	if err := o.node.Start(); err != nil {
		return fmt.Errorf("orchestrator: start p2p: %w", err)
	}
	if err := o.rpc.Start(); err != nil {
		return fmt.Errorf("orchestrator: start rpc: %w", err)
	}
	if o.metrics != nil {
		ctx, cancel := context.WithCancel(context.Background())
		o.metricsStop = cancel
		go func() {
			if err := telemetry.ServeHealthAndMetrics(ctx, o.cfg.TelemetryAddr, "orchestrator", o.metrics); err != nil {
				o.logger.Error("telemetry server", zap.Error(err))
			}
		}()
	}
	return nil
}

// Stop shuts down RPC, P2P, and telemetry. Consensus production must be
// stopped separately by closing the channel passed to Run.
func (o *Orchestrator) Stop() error {
	if o.metricsStop != nil {
		o.metricsStop()
	}
	if err := o.rpc.Stop(); err != nil {
		o.logger.Warn("rpc stop", zap.Error(err))
	}
	o.node.Stop()
	return nil
}

// ConnectSeedPeer dials a seed peer and kicks off an initial block sync
// against it.
func (o *Orchestrator) ConnectSeedPeer(id, addr string) error {
	if err := o.node.AddPeer(id, addr); err != nil {
		return err
	}
	peer := o.node.Peer(id)
	if peer == nil {
		return fmt.Errorf("orchestrator: peer %s not registered after connect", id)
	}
	tip, err := o.blocks.GetTip()
	if err != nil {
		return fmt.Errorf("orchestrator: read tip: %w", err)
	}
	from := uint64(0)
	if tip != "" {
		if b, err := o.blocks.GetBlock(tip); err == nil {
			from = b.Header.Height + 1
		}
	}
	return o.syncer.RequestBlocks(peer, from)
}

// Run drives the consensus ticker: on every tick, produce a block if this
// validator leads the current round, otherwise advance the engine to the
// next view (the backoff AdvanceView returns is not applied; the next tick
// comes after tickInterval regardless) — the generalized form of the
// teacher's fixed single-ticker poa.Run loop.
func (o *Orchestrator) Run(tickInterval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			o.tick()
		}
	}
}

func (o *Orchestrator) tick() {
	round := o.engine.Round()
	isLeader, err := o.engine.IsLeader(round.Height, round.View)
	if err != nil {
		o.logger.Error("leader check failed", zap.Error(err))
		return
	}
	if !isLeader {
		o.engine.AdvanceView()
		return
	}

	parentHash := [32]byte{}
	parentRoot := o.tree.RootHash()
	if tip, err := o.blocks.GetTip(); err == nil && tip != "" {
		if parent, err := o.blocks.GetBlock(tip); err == nil {
			parentHash = parent.Header.Hash()
		}
	}

	block, err := o.engine.ProduceBlock(parentHash, parentRoot)
	if err != nil {
		if err != consensus.ErrNotLeader {
			o.logger.Error("produce block failed", zap.Error(err))
		}
		return
	}
	if err := o.blocks.PutBlock(block); err != nil {
		o.logger.Error("persist produced block", zap.Error(err))
		return
	}
	if err := o.blocks.SetTip(block.Header.HashHex()); err != nil {
		o.logger.Error("set tip after produce", zap.Error(err))
		return
	}
	if err := o.versions.Record(o.tree.Version(), block.Header.StateRoot); err != nil {
		o.logger.Error("record produced version", zap.Error(err))
		return
	}
	o.node.BroadcastBlock(block)
	o.engine.AdvanceHeight(block.Header.Height + 1)
	if o.metrics != nil {
		o.metrics.BlocksProduced.Inc()
	}
}
