package control

import "github.com/ioi-foundation/kernel/types"

// --- ChainControl ---------------------------------------------------------

// SubmitBlockRequest hands a produced block to the Workload for execution.
type SubmitBlockRequest struct {
	Block *types.Block `json:"block"`
}

type SubmitBlockResponse struct {
	Accepted  bool     `json:"accepted"`
	StateRoot [32]byte `json:"state_root"`
	Error     string   `json:"error,omitempty"`
}

type ChainHeightRequest struct{}

type ChainHeightResponse struct {
	Height uint64 `json:"height"`
}

// --- StateQuery ------------------------------------------------------------

type QueryRawStateRequest struct {
	Key    string          `json:"key"`
	Anchor *types.StateRef `json:"anchor,omitempty"`
}

type QueryRawStateResponse struct {
	Value []byte `json:"value,omitempty"`
	Found bool   `json:"found"`
	Proof []byte `json:"proof,omitempty"` // ICS-23 CommitmentProof, protobuf-marshaled
}

// --- ContractControl ---------------------------------------------------

type DeployServiceRequest struct {
	Manifest *types.ServiceManifest `json:"manifest"`
}

type DeployServiceResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// --- StakingControl ------------------------------------------------------

type ScheduleValidatorsRequest struct {
	EffectiveFromHeight uint64            `json:"effective_from_height"`
	Validators          []types.Validator `json:"validators"`
}

type ScheduleValidatorsResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// --- SystemControl -----------------------------------------------------

type HealthRequest struct{}

type HealthResponse struct {
	Healthy    bool   `json:"healthy"`
	Syncing    bool   `json:"syncing"`
	TipHeight  uint64 `json:"tip_height"`
	Version    string `json:"version"`
}

type ShutdownRequest struct {
	Reason string `json:"reason"`
}

type ShutdownResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// --- WorkloadControl -----------------------------------------------------

// EncryptedSlice is one chunk of an inference job's context, encrypted
// client-side with a session key derived over the data plane before the job
// ever crosses into the Workload process.
type EncryptedSlice struct {
	SessionID  string `json:"session_id"`
	SeqNo      uint32 `json:"seq_no"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// ExecuteJobRequest carries the slices of one inference job for SessionID.
// Workload.ExecuteJob charges MaxTokens but does not decrypt or reassemble
// the slices.
type ExecuteJobRequest struct {
	SessionID    string           `json:"session_id"`
	Owner        types.AccountId  `json:"owner"`
	Slices       []EncryptedSlice `json:"slices"`
	MaxTokens    uint64           `json:"max_tokens"`
	ShmemHandle  *ShmemHandleRef  `json:"shmem_handle,omitempty"`
}

// ShmemHandleRef mirrors ipc/dataplane.ShmemHandle without importing that
// package from control (the data-plane ring itself is addressed by region
// id, never by an in-process pointer, since the two planes may live in
// different OS processes).
type ShmemHandleRef struct {
	RegionID string `json:"region_id"`
	Offset   uint64 `json:"offset"`
	Length   uint64 `json:"length"`
}

// InferenceOutput is returned in ExecuteJobResponse.Result; Workload.ExecuteJob
// does not write it to the data-plane slot the request's ShmemHandle names.
type InferenceOutput struct {
	SessionID   string `json:"session_id"`
	TokensSpent uint64 `json:"tokens_spent"`
	Output      []byte `json:"output"`
}

type ExecuteJobResponse struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"` // "permission_denied: <charge error>" on LeakageController overrun
	Result   *InferenceOutput `json:"result,omitempty"`
}
