package governance_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/internal/testutil"
	"github.com/ioi-foundation/kernel/services/governance"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/types"
)

func newStore(t *testing.T, height uint64) (*state.Tree, *execution.NamespacedStore, *governance.Service) {
	t.Helper()
	tree := state.NewTree(state.NewKVNodeStore(storage.NewKVAdapter(testutil.NewMemDB())))
	svc := governance.New(func() uint64 { return height })
	return tree, execution.NewNamespacedStore(tree, svc.Manifest()), svc
}

func setValidators(t *testing.T, tree *state.Tree, vals ...types.Validator) {
	t.Helper()
	sets := types.ValidatorSetsV1{Current: vals}
	raw, err := json.Marshal(sets)
	require.NoError(t, err)
	require.NoError(t, tree.Insert([]byte(types.KeyValidatorsCurrent), raw))
}

func TestProposalPassesWithMajorityYes(t *testing.T) {
	tree, store, svc := newStore(t, 100)
	v1 := types.AccountId{0x01}
	v2 := types.AccountId{0x02}
	setValidators(t, tree, types.Validator{AccountID: v1, Weight: 60}, types.Validator{AccountID: v2, Weight: 40})

	submitter := types.AccountId{0xaa}
	req, err := json.Marshal(governance.SubmitProposalRequest{Submitter: submitter, Title: "t", Description: "d"})
	require.NoError(t, err)
	raw, err := svc.Execute(store, "submit_proposal", req)
	require.NoError(t, err)
	var submitResp map[string]uint64
	require.NoError(t, json.Unmarshal(raw, &submitResp))
	propID := submitResp["proposal_id"]

	vote1, err := json.Marshal(governance.VoteRequest{Voter: v1, ProposalID: propID, Option: governance.VoteYes})
	require.NoError(t, err)
	_, err = svc.Execute(store, "vote", vote1)
	require.NoError(t, err)

	vote2, err := json.Marshal(governance.VoteRequest{Voter: v2, ProposalID: propID, Option: governance.VoteNo})
	require.NoError(t, err)
	_, err = svc.Execute(store, "vote", vote2)
	require.NoError(t, err)

	endHeight := uint64(100 + 20000)
	require.NoError(t, svc.EndBlock(store, endHeight, 0))

	proposal, ok, err := store.Get(store.Own("proposal::0"))
	require.NoError(t, err)
	require.True(t, ok)
	var p governance.Proposal
	require.NoError(t, json.Unmarshal(proposal, &p))
	require.Equal(t, governance.StatusPassed, p.Status)
	require.Equal(t, uint64(60), p.FinalTally.Yes)
	require.Equal(t, uint64(40), p.FinalTally.No)
}

func TestSwapModuleRejectsWithoutStagedModule(t *testing.T) {
	_, store, svc := newStore(t, 10)
	req, err := json.Marshal(governance.SwapModuleParams{ServiceID: "desktop_agent", ActivationHeight: 20})
	require.NoError(t, err)
	_, err = svc.Execute(store, "swap_module", req)
	require.Error(t, err)
}

func TestSwapModuleRejectsMismatchedHashes(t *testing.T) {
	_, store, svc := newStore(t, 10)
	storeReq, err := json.Marshal(governance.StoreModuleParams{
		ServiceID:    "desktop_agent",
		ABIVersion:   2,
		ManifestHash: [32]byte{0x01},
		ArtifactHash: [32]byte{0x02},
	})
	require.NoError(t, err)
	_, err = svc.Execute(store, "store_module", storeReq)
	require.NoError(t, err)

	swapReq, err := json.Marshal(governance.SwapModuleParams{
		ServiceID:        "desktop_agent",
		ManifestHash:     [32]byte{0x01},
		ArtifactHash:     [32]byte{0xff},
		ActivationHeight: 20,
	})
	require.NoError(t, err)
	_, err = svc.Execute(store, "swap_module", swapReq)
	require.Error(t, err)
}

func TestSwapModuleRejectsPastActivationHeight(t *testing.T) {
	_, store, svc := newStore(t, 10)
	storeReq, err := json.Marshal(governance.StoreModuleParams{ServiceID: "desktop_agent", ABIVersion: 2})
	require.NoError(t, err)
	_, err = svc.Execute(store, "store_module", storeReq)
	require.NoError(t, err)

	swapReq, err := json.Marshal(governance.SwapModuleParams{ServiceID: "desktop_agent", ActivationHeight: 5})
	require.NoError(t, err)
	_, err = svc.Execute(store, "swap_module", swapReq)
	require.Error(t, err)
}

func TestModuleUpgradeActivatesAtScheduledHeight(t *testing.T) {
	height := uint64(10)
	tree := state.NewTree(state.NewKVNodeStore(storage.NewKVAdapter(testutil.NewMemDB())))
	svc := governance.New(func() uint64 { return height })
	store := execution.NewNamespacedStore(tree, svc.Manifest())

	storeReq, err := json.Marshal(governance.StoreModuleParams{
		ServiceID:    "desktop_agent",
		ABIVersion:   2,
		ManifestHash: [32]byte{0x01},
		ArtifactHash: [32]byte{0x02},
	})
	require.NoError(t, err)
	_, err = svc.Execute(store, "store_module", storeReq)
	require.NoError(t, err)

	swapReq, err := json.Marshal(governance.SwapModuleParams{
		ServiceID:        "desktop_agent",
		ManifestHash:     [32]byte{0x01},
		ArtifactHash:     [32]byte{0x02},
		ActivationHeight: 20,
	})
	require.NoError(t, err)
	raw, err := svc.Execute(store, "swap_module", swapReq)
	require.NoError(t, err)
	var scheduled types.ActiveServiceMeta
	require.NoError(t, json.Unmarshal(raw, &scheduled))
	require.Equal(t, uint32(2), scheduled.ABIVersion)

	// Before the activation height, EndBlock leaves no ActiveServiceMeta.
	height = 15
	require.NoError(t, svc.EndBlock(store, height, 0))
	_, ok, err := tree.Get([]byte(types.ActiveServiceKey("desktop_agent")))
	require.NoError(t, err)
	require.False(t, ok)

	// At the activation height, EndBlock writes the ActiveServiceMeta record.
	height = 20
	require.NoError(t, svc.EndBlock(store, height, 0))
	raw2, ok, err := tree.Get([]byte(types.ActiveServiceKey("desktop_agent")))
	require.NoError(t, err)
	require.True(t, ok)
	var meta types.ActiveServiceMeta
	require.NoError(t, json.Unmarshal(raw2, &meta))
	require.Equal(t, uint32(2), meta.ABIVersion)
	require.Equal(t, [32]byte{0x01}, meta.ManifestHash)
	require.Equal(t, uint64(20), meta.ActivationHeight)
}

func TestProposalRejectedBelowQuorum(t *testing.T) {
	tree, store, svc := newStore(t, 0)
	v1 := types.AccountId{0x01}
	v2 := types.AccountId{0x02}
	setValidators(t, tree, types.Validator{AccountID: v1, Weight: 90}, types.Validator{AccountID: v2, Weight: 10})

	req, err := json.Marshal(governance.SubmitProposalRequest{Submitter: v1, Title: "t", Description: "d"})
	require.NoError(t, err)
	raw, err := svc.Execute(store, "submit_proposal", req)
	require.NoError(t, err)
	var submitResp map[string]uint64
	require.NoError(t, json.Unmarshal(raw, &submitResp))
	propID := submitResp["proposal_id"]

	vote, err := json.Marshal(governance.VoteRequest{Voter: v2, ProposalID: propID, Option: governance.VoteYes})
	require.NoError(t, err)
	_, err = svc.Execute(store, "vote", vote)
	require.NoError(t, err)

	require.NoError(t, svc.EndBlock(store, 20000, 0))

	raw2, ok, err := store.Get(store.Own("proposal::0"))
	require.NoError(t, err)
	require.True(t, ok)
	var p governance.Proposal
	require.NoError(t, json.Unmarshal(raw2, &p))
	require.Equal(t, governance.StatusRejected, p.Status)
}
