package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/ioi-foundation/kernel/firewall"
	"github.com/ioi-foundation/kernel/indexer"
	"github.com/ioi-foundation/kernel/mempool"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/types"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	blocks    *storage.BlockStore
	tree      *state.Tree
	nodeStore state.NodeStore      // backs historical queryState reads via state.LoadAt
	versions  *state.VersionIndex  // resolves a query_state_at height to the root committed there
	mempool   *mempool.Mempool
	firewall  *firewall.Firewall
	indexer   *indexer.Indexer
	chainID   types.ChainId // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler. nodeStore and versions may be nil, in
// which case queryState serves only current-tip reads and rejects any
// request naming a historical height.
func NewHandler(blocks *storage.BlockStore, tree *state.Tree, nodeStore state.NodeStore, versions *state.VersionIndex, pool *mempool.Mempool, fw *firewall.Firewall, idx *indexer.Indexer, chainID types.ChainId) *Handler {
	return &Handler{blocks: blocks, tree: tree, nodeStore: nodeStore, versions: versions, mempool: pool, firewall: fw, indexer: idx, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getChainHeight":
		return okResponse(req.ID, h.tree.Version())

	case "getBlock":
		return h.getBlock(req)

	case "queryState":
		return h.queryState(req)

	case "getTransactionsByAccount":
		return h.getTransactionsByAccount(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Count())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string  `json:"hash"`
		Height *uint64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *types.Block
	var err error
	switch {
	case params.Hash != "":
		block, err = h.blocks.GetBlock(params.Hash)
	case params.Height != nil:
		block, err = h.blocks.GetBlockByHeight(*params.Height)
	default:
		tip, tipErr := h.blocks.GetTip()
		if tipErr != nil {
			return errResponse(req.ID, CodeInternalError, tipErr.Error())
		}
		if tip == "" {
			return errResponse(req.ID, CodeInternalError, "chain has no blocks yet")
		}
		block, err = h.blocks.GetBlock(tip)
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, block)
}

// queryState reads a raw state key and its ICS-23 (non-)membership proof —
// the same read workload.Workload.QueryRawState serves over the control
// plane, exposed here for clients that only have public RPC access. A
// request naming Height resolves against the root the VersionIndex recorded
// for that height (query_state_at); one that doesn't reads the live tip
// (query_raw_state).
func (h *Handler) queryState(req Request) Response {
	var params struct {
		Key    string  `json:"key"`
		Height *uint64 `json:"height,omitempty"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Key == "" {
		return errResponse(req.ID, CodeInvalidParams, "key is required")
	}

	tree := h.tree
	if params.Height != nil {
		anchored, err := h.treeAtHeight(*params.Height)
		if err != nil {
			return errResponse(req.ID, CodeInvalidParams, err.Error())
		}
		tree = anchored
	}

	value, exists, existence, nonExistence, err := tree.GetWithProof([]byte(params.Key))
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}

	result := map[string]any{"found": exists, "value": value, "height": tree.Version()}
	switch {
	case exists && existence != nil:
		proof, mErr := existence.ToCommitmentProof().Marshal()
		if mErr != nil {
			return errResponse(req.ID, CodeInternalError, mErr.Error())
		}
		result["proof"] = proof
	case nonExistence != nil:
		proof, mErr := nonExistence.ToCommitmentProof().Marshal()
		if mErr != nil {
			return errResponse(req.ID, CodeInternalError, mErr.Error())
		}
		result["proof"] = proof
	}
	return okResponse(req.ID, result)
}

// treeAtHeight resolves a historical read the same way
// workload.Workload.treeAt does: look up the root the VersionIndex recorded
// for height and load a Tree rooted there, so a query against a pruned or
// never-committed height fails rather than silently answering against the
// live tip.
func (h *Handler) treeAtHeight(height uint64) (*state.Tree, error) {
	if h.versions == nil || h.nodeStore == nil {
		return nil, fmt.Errorf("historical queries are not available on this node")
	}
	root, err := h.versions.RootAt(height)
	if err != nil {
		return nil, fmt.Errorf("resolve version %d: %w", height, err)
	}
	tree, err := state.LoadAt(h.nodeStore, root, height)
	if err != nil {
		return nil, fmt.Errorf("load tree at height %d: %w", height, err)
	}
	return tree, nil
}

func (h *Handler) getTransactionsByAccount(req Request) Response {
	var params struct {
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.AccountID == "" {
		return errResponse(req.ID, CodeInvalidParams, "account_id is required")
	}
	hashes, err := h.indexer.GetTransactionsByAccount(params.AccountID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, hashes)
}

// sendTx runs tx through the firewall before handing it to the mempool —
// the same gate a gossiped transaction crosses in
// Orchestrator.handleGossipedTx, so a transaction can never reach
// execution without being evaluated once.
func (h *Handler) sendTx(req Request) Response {
	var tx types.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if tx.Header != nil && tx.Header.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.Header.ChainID, h.chainID))
	}

	decision, err := h.firewall.Evaluate(&tx)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if decision.Verdict != types.VerdictAllow {
		return errResponse(req.ID, CodeFirewallRejected, fmt.Sprintf("firewall: %s: %s", decision.Verdict, decision.Reason))
	}
	if decision.ScrubbedPayload != nil {
		tx.Payload = decision.ScrubbedPayload
	}

	if err := h.mempool.Submit(tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	hash := tx.Hash()
	return okResponse(req.ID, map[string]string{"tx_hash": hash.String()})
}
