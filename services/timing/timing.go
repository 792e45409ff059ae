// Package timing implements the adaptive block-interval retarget loop: an
// EMA of gas used per block, nudging the effective block interval toward
// whatever keeps gas usage near the governance-set target, bounded by a
// per-retarget step cap.
package timing

import (
	"encoding/json"
	"fmt"

	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/types"
)

const ServiceID = "block_timing"

// SetParamsRequest updates the governance-controlled retarget parameters.
type SetParamsRequest struct {
	Params types.BlockTimingParams `json:"params"`
}

type Service struct {
	manifest *types.ServiceManifest
}

func New() *Service {
	return &Service{
		manifest: &types.ServiceManifest{
			ID:          ServiceID,
			ABIVersion:  1,
			StateSchema: "block_timing.v1",
			Runtime:     "native",
			Methods: map[string]types.MethodVisibility{
				"set_params": types.MethodInternal,
			},
			AllowedSystemPrefixes: []string{types.KeyBlockTimingParams, types.KeyBlockTimingRuntime},
		},
	}
}

func (s *Service) Manifest() *types.ServiceManifest { return s.manifest }

func (s *Service) Execute(store *execution.NamespacedStore, method string, payload []byte) ([]byte, error) {
	switch method {
	case "set_params":
		var req SetParamsRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("block_timing: decode request: %w", err)
		}
		raw, err := json.Marshal(req.Params)
		if err != nil {
			return nil, fmt.Errorf("block_timing: encode params: %w", err)
		}
		return nil, store.Set(types.KeyBlockTimingParams, raw)
	default:
		return nil, fmt.Errorf("block_timing: unknown method %q", method)
	}
}

// EndBlock folds gasUsed into the EMA and applies at most one bounded
// retarget every RetargetEveryN blocks.
func (s *Service) EndBlock(store *execution.NamespacedStore, height, gasUsed uint64) error {
	params, err := s.loadParams(store)
	if err != nil {
		return err
	}
	if params.TargetGasPerBlock == 0 {
		return nil // timing retarget not configured; nothing to do
	}
	runtime, err := s.loadRuntime(store)
	if err != nil {
		return err
	}
	runtime.Observe(gasUsed, params)
	runtime.MaybeRetarget(height, params)
	return s.saveRuntime(store, runtime)
}

func (s *Service) loadParams(store *execution.NamespacedStore) (*types.BlockTimingParams, error) {
	raw, ok, err := store.Get(types.KeyBlockTimingParams)
	if err != nil {
		return nil, fmt.Errorf("block_timing: read params: %w", err)
	}
	p := &types.BlockTimingParams{}
	if ok {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("block_timing: decode params: %w", err)
		}
	}
	return p, nil
}

func (s *Service) loadRuntime(store *execution.NamespacedStore) (*types.BlockTimingRuntime, error) {
	raw, ok, err := store.Get(types.KeyBlockTimingRuntime)
	if err != nil {
		return nil, fmt.Errorf("block_timing: read runtime: %w", err)
	}
	r := &types.BlockTimingRuntime{}
	if ok {
		if err := json.Unmarshal(raw, r); err != nil {
			return nil, fmt.Errorf("block_timing: decode runtime: %w", err)
		}
	}
	return r, nil
}

func (s *Service) saveRuntime(store *execution.NamespacedStore, r *types.BlockTimingRuntime) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("block_timing: encode runtime: %w", err)
	}
	return store.Set(types.KeyBlockTimingRuntime, raw)
}
