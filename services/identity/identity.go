// Package identity manages the chain's validator set: registering a
// pending set change and promoting it at the scheduled height via its
// EndBlock hook.
package identity

import (
	"encoding/json"
	"fmt"

	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/types"
)

const ServiceID = "identity"

// ScheduleValidatorSetRequest proposes the validator set that becomes
// current at EffectiveFromHeight. Only reachable as an Internal method,
// never from a raw user transaction.
type ScheduleValidatorSetRequest struct {
	EffectiveFromHeight uint64            `json:"effective_from_height"`
	Validators          []types.Validator `json:"validators"`
}

type Service struct {
	manifest *types.ServiceManifest
}

func New() *Service {
	return &Service{
		manifest: &types.ServiceManifest{
			ID:          ServiceID,
			ABIVersion:  1,
			StateSchema: "identity.v1",
			Runtime:     "native",
			Methods: map[string]types.MethodVisibility{
				"schedule_validator_set": types.MethodInternal,
			},
			AllowedSystemPrefixes: []string{types.KeyValidatorsCurrent},
		},
	}
}

func (s *Service) Manifest() *types.ServiceManifest { return s.manifest }

func (s *Service) Execute(store *execution.NamespacedStore, method string, payload []byte) ([]byte, error) {
	switch method {
	case "schedule_validator_set":
		return s.scheduleValidatorSet(store, payload)
	default:
		return nil, fmt.Errorf("identity: unknown method %q", method)
	}
}

func (s *Service) scheduleValidatorSet(store *execution.NamespacedStore, payload []byte) ([]byte, error) {
	var req ScheduleValidatorSetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("identity: decode request: %w", err)
	}
	sets, err := s.load(store)
	if err != nil {
		return nil, err
	}
	var total uint64
	for _, v := range req.Validators {
		total += v.Weight
	}
	sets.Next = &types.PendingValidatorSet{
		EffectiveFromHeight: req.EffectiveFromHeight,
		Validators:          req.Validators,
		TotalWeight:         total,
	}
	return nil, s.save(store, sets)
}

// EndBlock promotes the pending validator set once its effective height is
// reached, via types.ValidatorSetsV1.PromoteIfDue.
func (s *Service) EndBlock(store *execution.NamespacedStore, height, gasUsed uint64) error {
	sets, err := s.load(store)
	if err != nil {
		return err
	}
	if sets.PromoteIfDue(height) {
		return s.save(store, sets)
	}
	return nil
}

func (s *Service) load(store *execution.NamespacedStore) (*types.ValidatorSetsV1, error) {
	raw, ok, err := store.Get(types.KeyValidatorsCurrent)
	if err != nil {
		return nil, fmt.Errorf("identity: read validator set: %w", err)
	}
	sets := &types.ValidatorSetsV1{}
	if ok {
		if err := json.Unmarshal(raw, sets); err != nil {
			return nil, fmt.Errorf("identity: decode validator set: %w", err)
		}
	}
	return sets, nil
}

func (s *Service) save(store *execution.NamespacedStore, sets *types.ValidatorSetsV1) error {
	raw, err := json.Marshal(sets)
	if err != nil {
		return fmt.Errorf("identity: encode validator set: %w", err)
	}
	return store.Set(types.KeyValidatorsCurrent, raw)
}

// CurrentValidators is a read helper for the consensus engine, which needs
// the validator set outside of any transaction's execution context.
func CurrentValidators(store *execution.NamespacedStore) (*types.ValidatorSetsV1, error) {
	s := &Service{}
	return s.load(store)
}
