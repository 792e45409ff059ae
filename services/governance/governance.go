// Package governance implements the on-chain proposal/vote lifecycle: submit
// a proposal, collect weighted votes from the current validator set, and
// tally at the proposal's voting-end height from an EndBlock hook. Adapted
// from the "governance" contract's submit_proposal/vote/on_end_block trio —
// same key layout and tally rule, reimplemented as a native registered
// service instead of a WASM guest.
package governance

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/types"
)

const ServiceID = "governance"

// quorumDivisor and passDivisor encode the same "1/3 quorum, >50% of
// non-abstain votes" rule as the tallying pass this is grounded on.
const (
	quorumDivisor = 3
	passDivisor   = 2
)

// votingPeriodBlocks is the fixed delay between a proposal's submission and
// its tally height.
const votingPeriodBlocks = 20000

type ProposalStatus string

const (
	StatusVotingPeriod ProposalStatus = "voting_period"
	StatusPassed       ProposalStatus = "passed"
	StatusRejected     ProposalStatus = "rejected"
)

type VoteOption string

const (
	VoteYes        VoteOption = "yes"
	VoteNo         VoteOption = "no"
	VoteNoWithVeto VoteOption = "no_with_veto"
	VoteAbstain    VoteOption = "abstain"
)

type TallyResult struct {
	Yes        uint64 `json:"yes"`
	No         uint64 `json:"no"`
	NoWithVeto uint64 `json:"no_with_veto"`
	Abstain    uint64 `json:"abstain"`
}

type Proposal struct {
	ID              uint64         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Status          ProposalStatus `json:"status"`
	Submitter       types.AccountId `json:"submitter"`
	SubmitHeight    uint64         `json:"submit_height"`
	VotingEndHeight uint64         `json:"voting_end_height"`
	FinalTally      *TallyResult   `json:"final_tally,omitempty"`
}

type SubmitProposalRequest struct {
	Submitter   types.AccountId `json:"submitter"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
}

type VoteRequest struct {
	Voter      types.AccountId `json:"voter"`
	ProposalID uint64          `json:"proposal_id"`
	Option     VoteOption      `json:"option"`
}

// StagedModule records a module governance has accepted via store_module,
// pending a later swap_module call naming an activation height. Adapted
// from the Rust kernel's StoreModuleParams{manifest, artifact}: since
// services here are compiled-in Go code rather than uploaded WASM
// artifacts, "storing" a module means recording the hashes swap_module must
// match, not the bytes themselves.
type StagedModule struct {
	ServiceID    string   `json:"service_id"`
	ABIVersion   uint32   `json:"abi_version"`
	ManifestHash [32]byte `json:"manifest_hash"`
	ArtifactHash [32]byte `json:"artifact_hash"`
}

// StoreModuleParams stages a module for a later swap_module call.
type StoreModuleParams struct {
	ServiceID    string   `json:"service_id"`
	ABIVersion   uint32   `json:"abi_version"`
	ManifestHash [32]byte `json:"manifest_hash"`
	ArtifactHash [32]byte `json:"artifact_hash"`
}

// SwapModuleParams schedules a previously staged module to become the
// active one for ServiceID once the chain reaches ActivationHeight.
type SwapModuleParams struct {
	ServiceID        string   `json:"service_id"`
	ManifestHash     [32]byte `json:"manifest_hash"`
	ArtifactHash     [32]byte `json:"artifact_hash"`
	ActivationHeight uint64   `json:"activation_height"`
}

type Service struct {
	manifest *types.ServiceManifest
	height   func() uint64
}

// New constructs the governance service. heightFn supplies the current
// block height during transaction execution, where no other source of truth
// for "now" exists.
func New(heightFn func() uint64) *Service {
	return &Service{
		manifest: &types.ServiceManifest{
			ID:          ServiceID,
			ABIVersion:  1,
			StateSchema: "governance.v1",
			Runtime:     "native",
			Methods: map[string]types.MethodVisibility{
				"submit_proposal": types.MethodUser,
				"vote":            types.MethodUser,
				"store_module":    types.MethodUser,
				"swap_module":     types.MethodUser,
			},
			AllowedSystemPrefixes: []string{types.KeyValidatorsCurrent, types.ActiveServiceKeyPrefix},
		},
		height: heightFn,
	}
}

func (s *Service) Manifest() *types.ServiceManifest { return s.manifest }

func (s *Service) Execute(store *execution.NamespacedStore, method string, payload []byte) ([]byte, error) {
	switch method {
	case "submit_proposal":
		return s.submitProposal(store, payload)
	case "vote":
		return s.vote(store, payload)
	case "store_module":
		return s.storeModule(store, payload)
	case "swap_module":
		return s.swapModule(store, payload)
	default:
		return nil, fmt.Errorf("governance: unknown method %q", method)
	}
}

func (s *Service) submitProposal(store *execution.NamespacedStore, payload []byte) ([]byte, error) {
	var req SubmitProposalRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("governance: decode submit_proposal request: %w", err)
	}

	id, err := s.nextID(store)
	if err != nil {
		return nil, err
	}
	height := s.height()
	votingEnd := height + votingPeriodBlocks

	proposal := Proposal{
		ID:              id,
		Title:           req.Title,
		Description:     req.Description,
		Status:          StatusVotingPeriod,
		Submitter:       req.Submitter,
		SubmitHeight:    height,
		VotingEndHeight: votingEnd,
	}
	if err := s.saveProposal(store, &proposal); err != nil {
		return nil, err
	}
	if err := s.addToTallyIndex(store, votingEnd, id); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]uint64{"proposal_id": id})
}

func (s *Service) vote(store *execution.NamespacedStore, payload []byte) ([]byte, error) {
	var req VoteRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("governance: decode vote request: %w", err)
	}
	proposal, ok, err := s.loadProposal(store, req.ProposalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("governance: proposal %d not found", req.ProposalID)
	}
	if proposal.Status != StatusVotingPeriod {
		return nil, fmt.Errorf("governance: proposal %d is not in its voting period", req.ProposalID)
	}
	raw, err := json.Marshal(req.Option)
	if err != nil {
		return nil, fmt.Errorf("governance: encode vote option: %w", err)
	}
	return nil, store.Set(store.Own(s.voteKey(req.ProposalID, req.Voter)), raw)
}

func (s *Service) storeModule(store *execution.NamespacedStore, payload []byte) ([]byte, error) {
	var req StoreModuleParams
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("governance: decode store_module request: %w", err)
	}
	if req.ServiceID == "" {
		return nil, fmt.Errorf("governance: store_module requires a service_id")
	}
	staged := StagedModule{
		ServiceID:    req.ServiceID,
		ABIVersion:   req.ABIVersion,
		ManifestHash: req.ManifestHash,
		ArtifactHash: req.ArtifactHash,
	}
	raw, err := json.Marshal(staged)
	if err != nil {
		return nil, fmt.Errorf("governance: encode staged module %s: %w", req.ServiceID, err)
	}
	return nil, store.Set(store.Own(s.stagedModuleKey(req.ServiceID)), raw)
}

func (s *Service) swapModule(store *execution.NamespacedStore, payload []byte) ([]byte, error) {
	var req SwapModuleParams
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("governance: decode swap_module request: %w", err)
	}
	staged, ok, err := s.loadStagedModule(store, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("governance: no module staged for service %q; call store_module first", req.ServiceID)
	}
	if staged.ManifestHash != req.ManifestHash || staged.ArtifactHash != req.ArtifactHash {
		return nil, fmt.Errorf("governance: swap_module hashes do not match the module staged for %q", req.ServiceID)
	}
	if req.ActivationHeight <= s.height() {
		return nil, fmt.Errorf("governance: activation_height %d must be in the future (current height %d)", req.ActivationHeight, s.height())
	}
	if err := s.addToActivationIndex(store, req.ActivationHeight, req.ServiceID); err != nil {
		return nil, err
	}
	meta := types.ActiveServiceMeta{
		ID:               staged.ServiceID,
		ABIVersion:       staged.ABIVersion,
		ManifestHash:     staged.ManifestHash,
		ArtifactHash:     staged.ArtifactHash,
		ActivationHeight: req.ActivationHeight,
	}
	return json.Marshal(meta)
}

// activateModules writes types.ActiveServiceMeta for every service whose
// swap_module activation height has just arrived, so execution.Registry's
// dispatch gate starts requiring the new ABI version from that height on —
// the forkless module upgrade this is grounded on
// (module_upgrade_e2e.rs's store_module/swap_module pair), generalized from
// a WASM artifact swap to an ABI-version gate over compiled-in services.
func (s *Service) activateModules(store *execution.NamespacedStore, height uint64) error {
	serviceIDs, err := s.activationIndexAt(store, height)
	if err != nil {
		return err
	}
	for _, id := range serviceIDs {
		staged, ok, err := s.loadStagedModule(store, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		meta := types.ActiveServiceMeta{
			ID:               staged.ServiceID,
			ABIVersion:       staged.ABIVersion,
			ManifestHash:     staged.ManifestHash,
			ArtifactHash:     staged.ArtifactHash,
			ActivationHeight: height,
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("governance: encode active service meta for %s: %w", id, err)
		}
		if err := store.Set(types.ActiveServiceKey(id), raw); err != nil {
			return fmt.Errorf("governance: write active service meta for %s: %w", id, err)
		}
	}
	if len(serviceIDs) == 0 {
		return nil
	}
	return store.Delete(store.Own(s.activationIndexKey(height)))
}

// EndBlock tallies every proposal whose voting period ends at height,
// weighting each cast vote by the voter's stake in the current validator
// set, and marks the proposal Passed or Rejected.
func (s *Service) EndBlock(store *execution.NamespacedStore, height, gasUsed uint64) error {
	if err := s.activateModules(store, height); err != nil {
		return err
	}

	ids, err := s.tallyIndexAt(store, height)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	weights, totalStake, err := s.validatorWeights(store)
	if err != nil {
		return err
	}
	for _, id := range ids {
		proposal, ok, err := s.loadProposal(store, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		votes, err := store.PrefixScan(fmt.Sprintf("vote::%d::", id))
		if err != nil {
			return fmt.Errorf("governance: scan votes for proposal %d: %w", id, err)
		}
		tally := TallyResult{}
		var votedPower uint64
		for _, kv := range votes {
			voterKey := kv[0]
			if len(voterKey) < 32 {
				continue
			}
			var voter types.AccountId
			copy(voter[:], voterKey[len(voterKey)-32:])
			weight := weights[voter]

			var option VoteOption
			if err := json.Unmarshal(kv[1], &option); err != nil {
				continue
			}
			switch option {
			case VoteYes:
				tally.Yes += weight
			case VoteNo:
				tally.No += weight
			case VoteNoWithVeto:
				tally.NoWithVeto += weight
			case VoteAbstain:
				tally.Abstain += weight
			}
			votedPower += weight
		}
		proposal.FinalTally = &tally

		if totalStake > 0 && votedPower >= totalStake/quorumDivisor {
			nonAbstain := tally.Yes + tally.No + tally.NoWithVeto
			if nonAbstain > 0 && tally.Yes > nonAbstain/passDivisor {
				proposal.Status = StatusPassed
			} else {
				proposal.Status = StatusRejected
			}
		} else {
			proposal.Status = StatusRejected
		}
		if err := s.saveProposal(store, proposal); err != nil {
			return err
		}
	}
	return store.Delete(store.Own(s.tallyIndexKey(height)))
}

func (s *Service) validatorWeights(store *execution.NamespacedStore) (map[types.AccountId]uint64, uint64, error) {
	raw, ok, err := store.Get(types.KeyValidatorsCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("governance: read validator set: %w", err)
	}
	weights := make(map[types.AccountId]uint64)
	var total uint64
	if !ok {
		return weights, total, nil
	}
	var sets types.ValidatorSetsV1
	if err := json.Unmarshal(raw, &sets); err != nil {
		return nil, 0, fmt.Errorf("governance: decode validator set: %w", err)
	}
	for _, v := range sets.Current {
		weights[v.AccountID] = v.Weight
		total += v.Weight
	}
	return weights, total, nil
}

func (s *Service) nextID(store *execution.NamespacedStore) (uint64, error) {
	raw, ok, err := store.Get(store.Own("next_id"))
	if err != nil {
		return 0, fmt.Errorf("governance: read next proposal id: %w", err)
	}
	var id uint64
	if ok && len(raw) == 8 {
		id = binary.BigEndian.Uint64(raw)
	}
	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, id+1)
	if err := store.Set(store.Own("next_id"), next); err != nil {
		return 0, fmt.Errorf("governance: write next proposal id: %w", err)
	}
	return id, nil
}

func (s *Service) proposalKey(id uint64) string {
	return fmt.Sprintf("proposal::%d", id)
}

func (s *Service) voteKey(proposalID uint64, voter types.AccountId) string {
	return fmt.Sprintf("vote::%d::%s", proposalID, string(voter[:]))
}

func (s *Service) tallyIndexKey(height uint64) string {
	return fmt.Sprintf("index::tally::%d", height)
}

func (s *Service) loadProposal(store *execution.NamespacedStore, id uint64) (*Proposal, bool, error) {
	raw, ok, err := store.Get(store.Own(s.proposalKey(id)))
	if err != nil {
		return nil, false, fmt.Errorf("governance: read proposal %d: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}
	p := &Proposal{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, false, fmt.Errorf("governance: decode proposal %d: %w", id, err)
	}
	return p, true, nil
}

func (s *Service) saveProposal(store *execution.NamespacedStore, p *Proposal) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("governance: encode proposal %d: %w", p.ID, err)
	}
	return store.Set(store.Own(s.proposalKey(p.ID)), raw)
}

func (s *Service) addToTallyIndex(store *execution.NamespacedStore, height, id uint64) error {
	ids, err := s.tallyIndexAt(store, height)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("governance: encode tally index: %w", err)
	}
	return store.Set(store.Own(s.tallyIndexKey(height)), raw)
}

func (s *Service) tallyIndexAt(store *execution.NamespacedStore, height uint64) ([]uint64, error) {
	raw, ok, err := store.Get(store.Own(s.tallyIndexKey(height)))
	if err != nil {
		return nil, fmt.Errorf("governance: read tally index: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("governance: decode tally index: %w", err)
	}
	return ids, nil
}

func (s *Service) stagedModuleKey(serviceID string) string {
	return fmt.Sprintf("module::staged::%s", serviceID)
}

func (s *Service) activationIndexKey(height uint64) string {
	return fmt.Sprintf("index::module_activation::%d", height)
}

func (s *Service) loadStagedModule(store *execution.NamespacedStore, serviceID string) (*StagedModule, bool, error) {
	raw, ok, err := store.Get(store.Own(s.stagedModuleKey(serviceID)))
	if err != nil {
		return nil, false, fmt.Errorf("governance: read staged module %s: %w", serviceID, err)
	}
	if !ok {
		return nil, false, nil
	}
	staged := &StagedModule{}
	if err := json.Unmarshal(raw, staged); err != nil {
		return nil, false, fmt.Errorf("governance: decode staged module %s: %w", serviceID, err)
	}
	return staged, true, nil
}

func (s *Service) addToActivationIndex(store *execution.NamespacedStore, height uint64, serviceID string) error {
	ids, err := s.activationIndexAt(store, height)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == serviceID {
			return nil
		}
	}
	ids = append(ids, serviceID)
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("governance: encode module activation index: %w", err)
	}
	return store.Set(store.Own(s.activationIndexKey(height)), raw)
}

func (s *Service) activationIndexAt(store *execution.NamespacedStore, height uint64) ([]string, error) {
	raw, ok, err := store.Get(store.Own(s.activationIndexKey(height)))
	if err != nil {
		return nil, fmt.Errorf("governance: read module activation index: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("governance: decode module activation index: %w", err)
	}
	return ids, nil
}
