package consensus_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/consensus"
	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/events"
	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/internal/testutil"
	"github.com/ioi-foundation/kernel/mempool"
	"github.com/ioi-foundation/kernel/services/identity"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/types"
)

type zeroNonces struct{}

func (zeroNonces) AccountNonce(types.AccountId) (uint64, error) { return 0, nil }

func TestEngineProducesBlockWhenLeader(t *testing.T) {
	tree := state.NewTree(state.NewKVNodeStore(storage.NewKVAdapter(testutil.NewMemDB())))
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	self := types.DeriveAccountId(types.SuiteEd25519, pub)

	idSvc := identity.New()
	idStore := execution.NewNamespacedStore(tree, idSvc.Manifest())
	req, err := json.Marshal(identity.ScheduleValidatorSetRequest{
		EffectiveFromHeight: 0,
		Validators:          []types.Validator{{AccountID: self, Weight: 100}},
	})
	require.NoError(t, err)
	_, err = idSvc.Execute(idStore, "schedule_validator_set", req)
	require.NoError(t, err)
	require.NoError(t, idSvc.EndBlock(idStore, 0, 0))

	registry := execution.NewRegistry()
	registry.Register(idSvc)
	machine := execution.NewMachine(registry)
	pool := mempool.New(zeroNonces{})
	emitter := events.NewEmitter()

	engine := consensus.New(tree, machine, pool, emitter, priv, "test-chain", 10)
	engine.AdvanceHeight(1)

	isLeader, err := engine.IsLeader(1, 0)
	require.NoError(t, err)
	require.True(t, isLeader)

	block, err := engine.ProduceBlock([32]byte{}, [32]byte{})
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.Header.Height)
	require.Len(t, block.Signatures, 1)
}

func TestEngineRejectsProduceWhenNotLeader(t *testing.T) {
	tree := state.NewTree(state.NewKVNodeStore(storage.NewKVAdapter(testutil.NewMemDB())))
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, otherPub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	other := types.DeriveAccountId(types.SuiteEd25519, otherPub)

	idSvc := identity.New()
	idStore := execution.NewNamespacedStore(tree, idSvc.Manifest())
	req, err := json.Marshal(identity.ScheduleValidatorSetRequest{
		EffectiveFromHeight: 0,
		Validators:          []types.Validator{{AccountID: other, Weight: 100}},
	})
	require.NoError(t, err)
	_, err = idSvc.Execute(idStore, "schedule_validator_set", req)
	require.NoError(t, err)
	require.NoError(t, idSvc.EndBlock(idStore, 0, 0))

	registry := execution.NewRegistry()
	registry.Register(idSvc)
	machine := execution.NewMachine(registry)
	pool := mempool.New(zeroNonces{})
	emitter := events.NewEmitter()

	engine := consensus.New(tree, machine, pool, emitter, priv, "test-chain", 10)
	engine.AdvanceHeight(1)

	_, err = engine.ProduceBlock([32]byte{}, [32]byte{})
	require.ErrorIs(t, err, consensus.ErrNotLeader)
}

func TestDetectorCatchesCrossMirrorEquivocation(t *testing.T) {
	d := consensus.NewDetector()
	producer := [32]byte{0x01}
	require.Nil(t, d.Observe(10, 0, producer, "mirror-a", [32]byte{0xaa}))
	eq := d.Observe(10, 0, producer, "mirror-b", [32]byte{0xbb})
	require.NotNil(t, eq)
	require.Equal(t, [32]byte{0xaa}, eq.HashA)
	require.Equal(t, [32]byte{0xbb}, eq.HashB)
}
