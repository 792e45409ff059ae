package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/services/identity"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/types"
)

// CreateGenesisBlock builds and signs block #0: it credits every account in
// the config's Alloc map directly into settlement's balance namespace,
// schedules the configured validator set effective from height 0, and
// commits the resulting state root — the same "seed state, commit, sign
// block 0" shape as the teacher's CreateGenesisBlock, generalized from one
// flat account map to the kernel's per-service namespaced state.
func CreateGenesisBlock(cfg *Config, tree *state.Tree, proposerPriv crypto.PrivateKey) (*types.Block, error) {
	settlementManifest := (&types.ServiceManifest{AllowedSystemPrefixes: []string{"balance::"}})
	balances := execution.NewNamespacedStore(tree, settlementManifest)

	for pubkeyHex, balance := range cfg.Genesis.Alloc {
		pub, err := hex.DecodeString(pubkeyHex)
		if err != nil {
			return nil, fmt.Errorf("genesis: decode alloc pubkey %q: %w", pubkeyHex, err)
		}
		id := types.DeriveAccountId(types.SuiteEd25519, pub)
		acct := types.Account{ID: id}
		acct.SetBalanceUint64(balance)
		raw, err := json.Marshal(acct)
		if err != nil {
			return nil, fmt.Errorf("genesis: encode balance for %q: %w", pubkeyHex, err)
		}
		if err := balances.Set(types.BalanceKey(id), raw); err != nil {
			return nil, fmt.Errorf("genesis: credit %q: %w", pubkeyHex, err)
		}
	}

	validators := make([]types.Validator, 0, len(cfg.Validators))
	for _, v := range cfg.Validators {
		pub, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("genesis: decode validator pubkey %q: %w", v, err)
		}
		validators = append(validators, types.Validator{
			AccountID: types.DeriveAccountId(types.SuiteEd25519, pub),
			PubKeyHex: v,
			Weight:    1,
		})
	}
	idSvc := identity.New()
	idStore := execution.NewNamespacedStore(tree, idSvc.Manifest())
	schedulePayload, err := json.Marshal(identity.ScheduleValidatorSetRequest{
		EffectiveFromHeight: 0,
		Validators:          validators,
	})
	if err != nil {
		return nil, fmt.Errorf("genesis: encode schedule_validator_set: %w", err)
	}
	if _, err := idSvc.Execute(idStore, "schedule_validator_set", schedulePayload); err != nil {
		return nil, fmt.Errorf("genesis: schedule validator set: %w", err)
	}

	stateRoot, _, err := tree.CommitVersion()
	if err != nil {
		return nil, fmt.Errorf("genesis: commit state: %w", err)
	}

	header := types.BlockHeader{
		Height:         0,
		StateRoot:      stateRoot,
		ProducerPKHash: crypto.Hash32(proposerPriv.Public()),
	}
	blockHash := header.Hash()
	sig := proposerPriv.Sign(blockHash[:])
	selfID := types.DeriveAccountId(types.SuiteEd25519, proposerPriv.Public())

	return &types.Block{
		Header:     header,
		Signatures: []types.BlockSignature{{ValidatorID: selfID, Signature: sig}},
	}, nil
}
