package consensus

import "fmt"

// SyncStatus is the node's block-sync state relative to its peers.
type SyncStatus string

const (
	StatusSyncing SyncStatus = "syncing"
	StatusSynced  SyncStatus = "synced"
)

// maxBlocksPerBatch and maxBytesPerBatch cap a single sync response so one
// lagging peer can't force an unbounded read off disk or an unbounded
// write onto the wire.
const (
	maxBlocksPerBatch = 256
	maxBytesPerBatch  = 8 << 20 // 8 MiB
)

// BatchRequest asks a peer for blocks starting at Since (exclusive),
// bounded by both MaxBlocks and MaxBytes — whichever limit is hit first
// ends the batch.
type BatchRequest struct {
	Since     uint64
	MaxBlocks int
	MaxBytes  int
}

// ClampedBatchRequest returns req with MaxBlocks/MaxBytes clamped to this
// node's serving limits, so a malicious or buggy peer can't request an
// unbounded batch.
func ClampedBatchRequest(req BatchRequest) BatchRequest {
	if req.MaxBlocks <= 0 || req.MaxBlocks > maxBlocksPerBatch {
		req.MaxBlocks = maxBlocksPerBatch
	}
	if req.MaxBytes <= 0 || req.MaxBytes > maxBytesPerBatch {
		req.MaxBytes = maxBytesPerBatch
	}
	return req
}

// BlockSized is anything a SyncMachine can measure the encoded size of,
// satisfied by whatever wire encoding the network package uses for a block.
type BlockSized interface {
	EncodedSize() int
}

// SyncMachine tracks this node's Syncing/Synced state and builds batch
// requests against both caps. It holds no network connection itself — its
// caller feeds it observed peer heights and applied tips. The network
// package's Syncer does not use it.
type SyncMachine struct {
	status     SyncStatus
	localTip   uint64
	peakPeer   uint64
	peerDrops  int
}

func NewSyncMachine(localTip uint64) *SyncMachine {
	return &SyncMachine{status: StatusSynced, localTip: localTip}
}

func (s *SyncMachine) Status() SyncStatus { return s.status }

// ObservePeerHeight updates the known network tip. If a peer claims a
// height ahead of ours, we enter Syncing.
func (s *SyncMachine) ObservePeerHeight(height uint64) {
	if height > s.peakPeer {
		s.peakPeer = height
	}
	if s.peakPeer > s.localTip {
		s.status = StatusSyncing
	}
}

// NextBatch builds the request for the next chunk of history to fetch.
func (s *SyncMachine) NextBatch() BatchRequest {
	return ClampedBatchRequest(BatchRequest{Since: s.localTip})
}

// AdvanceTip records that height has been applied locally, and flips back
// to Synced once the local tip has caught the last known peer height.
func (s *SyncMachine) AdvanceTip(height uint64) {
	if height > s.localTip {
		s.localTip = height
	}
	if s.localTip >= s.peakPeer {
		s.status = StatusSynced
	}
}

// PeerDropped counts a sync peer disconnecting mid-batch; the caller is
// expected to pick another peer and retry rather than stall.
func (s *SyncMachine) PeerDropped() {
	s.peerDrops++
}

func (s *SyncMachine) PeerDropCount() int { return s.peerDrops }

func (s *SyncMachine) String() string {
	return fmt.Sprintf("sync(status=%s local_tip=%d peak_peer=%d drops=%d)", s.status, s.localTip, s.peakPeer, s.peerDrops)
}
