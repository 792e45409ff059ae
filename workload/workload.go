// Package workload wires the isolated Workload process together: the
// versioned state tree, the execution machine with every compiled-in
// service registered, and an ipc/control.Server implementation over them.
// This is the half of the process topology spec §2 calls the Workload:
// Storage + State Tree + Execution + IPC servers, with no consensus,
// mempool, or networking code. No binary in this repository serves it;
// cmd/orchestrator executes blocks in process through package orchestrator.
package workload

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/ipc/control"
	"github.com/ioi-foundation/kernel/services/agentic"
	"github.com/ioi-foundation/kernel/services/governance"
	"github.com/ioi-foundation/kernel/services/identity"
	"github.com/ioi-foundation/kernel/services/nonce"
	"github.com/ioi-foundation/kernel/services/settlement"
	"github.com/ioi-foundation/kernel/services/timing"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/types"
)

// Workload owns the state tree and dispatches every control-plane RPC
// against it. It implements control.Server directly.
type Workload struct {
	tree      *state.Tree
	nodeStore state.NodeStore
	versions  *state.VersionIndex
	machine   *execution.Machine
	registry  *execution.Registry
	blocks    *storage.BlockStore
	logger    *zap.Logger

	heightFn func() uint64 // supplies governance's current height at construction time
}

// New builds a Workload over db, registering every compiled-in service
// (settlement, identity, timing, nonce, governance, agentic) against a
// fresh Registry — the static equivalent of the teacher's vm.Registry
// init()-time self-registration, generalized to the spec's ABI-versioned
// manifest model.
func New(db storage.DB, logger *zap.Logger) *Workload {
	backend := storage.NewKVAdapter(db)
	nodeStore := state.NewCachedNodeStore(state.NewKVNodeStore(backend), 4096)
	tree := state.NewTree(nodeStore)
	registry := execution.NewRegistry()

	w := &Workload{
		tree:      tree,
		nodeStore: nodeStore,
		versions:  state.NewVersionIndex(backend),
		blocks:    storage.NewBlockStore(db),
		logger:    logger,
	}
	w.heightFn = func() uint64 { return w.tree.Version() }

	registry.Register(settlement.New())
	registry.Register(identity.New())
	registry.Register(timing.New())
	registry.Register(nonce.New())
	registry.Register(governance.New(w.heightFn))
	registry.Register(agentic.New())

	w.registry = registry
	w.machine = execution.NewMachine(registry)
	return w
}

// Tree exposes the underlying state tree for components (ExecuteJob's
// LeakageController charge, CLI inspection tools) that need direct reads
// outside the control-plane RPC surface.
func (w *Workload) Tree() *state.Tree { return w.tree }

// --- ChainControl ---------------------------------------------------------

func (w *Workload) SubmitBlock(ctx context.Context, req *control.SubmitBlockRequest) (*control.SubmitBlockResponse, error) {
	if req.Block == nil {
		return &control.SubmitBlockResponse{Error: "missing block"}, nil
	}
	receipts := w.machine.PrepareBlock(w.tree, req.Block.Transactions)
	if err := w.machine.EndBlock(w.tree, req.Block.Header.Height, execution.TotalGasUsed(receipts)); err != nil {
		return &control.SubmitBlockResponse{Error: err.Error()}, nil
	}
	stateRoot, version, err := w.machine.CommitBlock(w.tree)
	if err != nil {
		return &control.SubmitBlockResponse{Error: err.Error()}, nil
	}
	if stateRoot != req.Block.Header.StateRoot {
		return &control.SubmitBlockResponse{Error: "state root mismatch after execution"}, nil
	}
	if err := w.versions.Record(version, stateRoot); err != nil {
		return nil, fmt.Errorf("workload: record version: %w", err)
	}
	if err := w.blocks.PutBlock(req.Block); err != nil {
		return nil, fmt.Errorf("workload: persist block: %w", err)
	}
	if err := w.blocks.SetTip(req.Block.Header.HashHex()); err != nil {
		return nil, fmt.Errorf("workload: set tip: %w", err)
	}
	w.logger.Info("block applied", zap.Uint64("height", req.Block.Header.Height), zap.Int("txs", len(req.Block.Transactions)))
	return &control.SubmitBlockResponse{Accepted: true, StateRoot: stateRoot}, nil
}

func (w *Workload) ChainHeight(ctx context.Context, req *control.ChainHeightRequest) (*control.ChainHeightResponse, error) {
	return &control.ChainHeightResponse{Height: w.tree.Version()}, nil
}

// --- StateQuery ------------------------------------------------------------

func (w *Workload) QueryRawState(ctx context.Context, req *control.QueryRawStateRequest) (*control.QueryRawStateResponse, error) {
	tree := w.tree
	if req.Anchor != nil {
		anchored, err := w.treeAt(req.Anchor)
		if err != nil {
			return nil, fmt.Errorf("workload: query state %q at height %d: %w", req.Key, req.Anchor.Height, err)
		}
		tree = anchored
	}
	value, exists, existence, nonExistence, err := tree.GetWithProof([]byte(req.Key))
	if err != nil {
		return nil, fmt.Errorf("workload: query state %q: %w", req.Key, err)
	}
	resp := &control.QueryRawStateResponse{Found: exists, Value: value}
	if exists && existence != nil {
		proofBytes, mErr := existence.ToCommitmentProof().Marshal()
		if mErr == nil {
			resp.Proof = proofBytes
		}
	} else if nonExistence != nil {
		proofBytes, mErr := nonExistence.ToCommitmentProof().Marshal()
		if mErr == nil {
			resp.Proof = proofBytes
		}
	}
	return resp, nil
}

// treeAt resolves a historical read against anchor by looking up the root
// VersionIndex recorded for anchor.Height and loading a Tree at that root —
// the height_for_root(root) traversal spec.md §4.1 describes for queries
// that aren't against the live tip. The recorded root must match the
// caller-supplied one exactly, so a stale or forged anchor fails closed
// instead of silently answering against the wrong version.
func (w *Workload) treeAt(anchor *types.StateRef) (*state.Tree, error) {
	root, err := w.versions.RootAt(anchor.Height)
	if err != nil {
		return nil, fmt.Errorf("resolve version %d: %w", anchor.Height, err)
	}
	if root != anchor.StateRoot {
		return nil, fmt.Errorf("anchor state root does not match recorded root at height %d", anchor.Height)
	}
	tree, err := state.LoadAt(w.nodeStore, root, anchor.Height)
	if err != nil {
		return nil, fmt.Errorf("load tree at height %d: %w", anchor.Height, err)
	}
	return tree, nil
}

// --- ContractControl ---------------------------------------------------

// DeployService is unsupported: services are compiled into the Workload
// binary and registered at startup (see New), not uploaded at runtime, so
// every call here is rejected rather than silently accepted.
func (w *Workload) DeployService(ctx context.Context, req *control.DeployServiceRequest) (*control.DeployServiceResponse, error) {
	return &control.DeployServiceResponse{Accepted: false, Error: "dynamic service deployment is not supported; services are compiled in"}, nil
}

// --- StakingControl ------------------------------------------------------

func (w *Workload) ScheduleValidators(ctx context.Context, req *control.ScheduleValidatorsRequest) (*control.ScheduleValidatorsResponse, error) {
	idSvc := identity.New()
	store := execution.NewNamespacedStore(w.tree, idSvc.Manifest())
	payload, err := marshalScheduleRequest(req)
	if err != nil {
		return &control.ScheduleValidatorsResponse{Error: err.Error()}, nil
	}
	if _, err := idSvc.Execute(store, "schedule_validator_set", payload); err != nil {
		return &control.ScheduleValidatorsResponse{Error: err.Error()}, nil
	}
	return &control.ScheduleValidatorsResponse{Accepted: true}, nil
}

// --- SystemControl -----------------------------------------------------

func (w *Workload) Health(ctx context.Context, req *control.HealthRequest) (*control.HealthResponse, error) {
	return &control.HealthResponse{Healthy: true, TipHeight: w.tree.Version(), Version: "1"}, nil
}

func (w *Workload) Shutdown(ctx context.Context, req *control.ShutdownRequest) (*control.ShutdownResponse, error) {
	w.logger.Warn("shutdown requested", zap.String("reason", req.Reason))
	return &control.ShutdownResponse{Acknowledged: true}, nil
}

// --- WorkloadControl -----------------------------------------------------

// ExecuteJob charges the requesting session's agentic budget MaxTokens —
// the LeakageController gate from spec §4.6 — and rejects the job if the
// charge fails. It does not decrypt or reassemble the slices, run
// inference, or touch the data-plane ring: an accepted job returns an
// InferenceOutput with no Output and TokensSpent set to MaxTokens.
func (w *Workload) ExecuteJob(ctx context.Context, req *control.ExecuteJobRequest) (*control.ExecuteJobResponse, error) {
	agentSvc := agentic.New()
	store := execution.NewNamespacedStore(w.tree, agentSvc.Manifest())

	chargePayload, err := marshalCharge(req.SessionID, req.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("workload: encode charge: %w", err)
	}
	if _, err := agentSvc.Execute(store, "charge", chargePayload); err != nil {
		return &control.ExecuteJobResponse{Accepted: false, Error: fmt.Sprintf("permission_denied: %v", err)}, nil
	}

	total := 0
	for _, s := range req.Slices {
		total += len(s.Ciphertext)
	}
	w.logger.Debug("executed job", zap.String("session_id", req.SessionID), zap.Int("slice_bytes", total))

	return &control.ExecuteJobResponse{
		Accepted: true,
		Result: &control.InferenceOutput{
			SessionID:   req.SessionID,
			TokensSpent: req.MaxTokens,
		},
	}, nil
}

var _ control.Server = (*Workload)(nil)
