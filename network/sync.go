package network

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/types"
)

// GetBlocksRequest asks a peer for blocks starting at FromHeight.
type GetBlocksRequest struct {
	FromHeight uint64 `json:"from_height"`
	Limit      int    `json:"limit"`
}

// BlocksResponse carries a batch of blocks.
type BlocksResponse struct {
	Blocks []*types.Block `json:"blocks"`
}

// BlockValidator validates a block before it is accepted into the chain —
// signature and structural checks, not execution.
type BlockValidator interface {
	ValidateBlock(block *types.Block) error
}

// BlockExecutor applies all transactions in a block against state and
// commits it, returning an error if the claimed state root doesn't match
// what execution produced. This is the network-facing twin of
// workload.Workload.SubmitBlock, reused here so a syncing Orchestrator
// replays history through the exact same execution path a live proposal
// would have gone through.
type BlockExecutor interface {
	ExecuteBlock(block *types.Block) error
}

// Syncer pulls missing blocks from peers and replays them in order,
// generalizing the teacher's blockchain/state snapshot-and-revert sync loop
// from a single flat ledger to the kernel's header/body block with its own
// executor abstraction.
type Syncer struct {
	node      *Node
	blocks    *storage.BlockStore
	validator BlockValidator
	exec      BlockExecutor
	logger    *zap.Logger
}

// NewSyncer creates a Syncer that requests missing blocks from peers and
// replays them against exec. validator may be nil to skip the pre-execution
// structural check (tests, trusted-peer deployments).
func NewSyncer(node *Node, blocks *storage.BlockStore, validator BlockValidator, exec BlockExecutor) *Syncer {
	s := &Syncer{node: node, blocks: blocks, validator: validator, exec: exec, logger: zap.NewNop()}
	node.Handle(MsgGetBlocks, s.handleGetBlocks)
	node.Handle(MsgBlocks, s.handleBlocks)
	return s
}

// WithLogger swaps in a component-scoped logger; defaults to a no-op logger.
func (s *Syncer) WithLogger(logger *zap.Logger) *Syncer {
	s.logger = logger.Named("sync")
	return s
}

// RequestBlocks asks peer for blocks starting at fromHeight.
func (s *Syncer) RequestBlocks(peer *Peer, fromHeight uint64) error {
	req, err := json.Marshal(GetBlocksRequest{FromHeight: fromHeight, Limit: 50})
	if err != nil {
		return err
	}
	return peer.Send(Message{Type: MsgGetBlocks, Payload: req})
}

func (s *Syncer) handleGetBlocks(peer *Peer, msg Message) {
	var req GetBlocksRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	blocks := make([]*types.Block, 0, req.Limit)
	for h := req.FromHeight; h < req.FromHeight+uint64(req.Limit); h++ {
		b, err := s.blocks.GetBlockByHeight(h)
		if err != nil {
			break
		}
		blocks = append(blocks, b)
	}
	data, err := json.Marshal(BlocksResponse{Blocks: blocks})
	if err != nil {
		return
	}
	_ = peer.Send(Message{Type: MsgBlocks, Payload: data})
}

func (s *Syncer) handleBlocks(_ *Peer, msg Message) {
	var resp BlocksResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return
	}
	for _, b := range resp.Blocks {
		if s.validator != nil {
			if err := s.validator.ValidateBlock(b); err != nil {
				s.logger.Warn("block validation failed", zap.Uint64("height", b.Header.Height), zap.Error(err))
				continue
			}
		}
		if err := s.exec.ExecuteBlock(b); err != nil {
			s.logger.Warn("block execution failed", zap.Uint64("height", b.Header.Height), zap.Error(err))
			continue
		}
		if err := s.blocks.PutBlock(b); err != nil {
			s.logger.Error("block persist failed", zap.Uint64("height", b.Header.Height), zap.Error(err))
			continue
		}
		if err := s.blocks.SetTip(b.Header.HashHex()); err != nil {
			s.logger.Error("set tip failed", zap.Uint64("height", b.Header.Height), zap.Error(err))
		}
	}
}
