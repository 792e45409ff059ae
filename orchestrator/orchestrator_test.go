package orchestrator_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/config"
	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/firewall"
	"github.com/ioi-foundation/kernel/internal/testutil"
	"github.com/ioi-foundation/kernel/orchestrator"
	"github.com/ioi-foundation/kernel/types"
)

func testConfig(t *testing.T, chainID types.ChainId) orchestrator.Config {
	t.Helper()
	return orchestrator.Config{
		ChainID:     chainID,
		NodeID:      "node-under-test",
		P2PAddr:     "127.0.0.1:0",
		RPCAddr:     "127.0.0.1:0",
		MaxBlockTxs: 50,
		Policy:      firewall.Policy{Defaults: firewall.AllowAll},
	}
}

func TestNewAssemblesOrchestratorOverFreshDatabase(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	db := testutil.NewMemDB()
	orch, err := orchestrator.New(testConfig(t, "test-chain"), db, priv, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, orch)
}

func TestSeedGenesisSucceedsOnFreshDatabase(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	cfg := &config.Config{
		NodeID:  "node-under-test",
		DataDir: t.TempDir(),
		RPCPort: 1,
		P2PPort: 2,
		Validators: []string{
			hex.EncodeToString(pub),
		},
		Genesis: config.GenesisConfig{
			ChainID: "test-chain",
			Alloc: map[string]uint64{
				hex.EncodeToString(pub): 1_000_000,
			},
		},
	}

	db := testutil.NewMemDB()
	orch, err := orchestrator.New(testConfig(t, "test-chain"), db, priv, nil, nil)
	require.NoError(t, err)

	require.NoError(t, orch.SeedGenesis(cfg))
}
