// Package settlement implements the kernel's native-token transfer service,
// the "basic transfer" scenario from the testable-properties scenarios:
// moving balance between two accounts inside a single transaction, with
// insufficient-balance rejected atomically.
package settlement

import (
	"encoding/json"
	"fmt"

	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/types"
)

const ServiceID = "settlement"

// TransferRequest is the JSON payload for the "transfer" method.
type TransferRequest struct {
	From   types.AccountId `json:"from"`
	To     types.AccountId `json:"to"`
	Amount uint64           `json:"amount"`
}

// Service implements execution.Handler for native balance transfers.
type Service struct {
	manifest *types.ServiceManifest
}

func New() *Service {
	return &Service{
		manifest: &types.ServiceManifest{
			ID:          ServiceID,
			ABIVersion:  1,
			StateSchema: "settlement.v1",
			Runtime:     "native",
			Methods: map[string]types.MethodVisibility{
				"transfer": types.MethodUser,
			},
			AllowedSystemPrefixes: []string{"balance::"},
		},
	}
}

func (s *Service) Manifest() *types.ServiceManifest { return s.manifest }

func (s *Service) Execute(store *execution.NamespacedStore, method string, payload []byte) ([]byte, error) {
	switch method {
	case "transfer":
		return s.transfer(store, payload)
	default:
		return nil, fmt.Errorf("settlement: unknown method %q", method)
	}
}

func (s *Service) transfer(store *execution.NamespacedStore, payload []byte) ([]byte, error) {
	var req TransferRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("settlement: decode transfer request: %w", err)
	}
	if req.Amount == 0 {
		return nil, fmt.Errorf("settlement: transfer amount must be nonzero")
	}
	if req.From == req.To {
		return nil, fmt.Errorf("settlement: from and to must differ")
	}

	fromBal, err := s.readBalance(store, req.From)
	if err != nil {
		return nil, err
	}
	if fromBal < req.Amount {
		return nil, fmt.Errorf("settlement: insufficient balance: have %d, need %d", fromBal, req.Amount)
	}
	toBal, err := s.readBalance(store, req.To)
	if err != nil {
		return nil, err
	}

	if err := s.writeBalance(store, req.From, fromBal-req.Amount); err != nil {
		return nil, err
	}
	if err := s.writeBalance(store, req.To, toBal+req.Amount); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]uint64{"from_balance": fromBal - req.Amount, "to_balance": toBal + req.Amount})
}

func (s *Service) readBalance(store *execution.NamespacedStore, id types.AccountId) (uint64, error) {
	raw, ok, err := store.Get(types.BalanceKey(id))
	if err != nil {
		return 0, fmt.Errorf("settlement: read balance: %w", err)
	}
	if !ok {
		return 0, nil
	}
	var acct types.Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return 0, fmt.Errorf("settlement: decode balance: %w", err)
	}
	return acct.BalanceUint64(), nil
}

func (s *Service) writeBalance(store *execution.NamespacedStore, id types.AccountId, balance uint64) error {
	acct := types.Account{ID: id}
	acct.SetBalanceUint64(balance)
	raw, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("settlement: encode balance: %w", err)
	}
	return store.Set(types.BalanceKey(id), raw)
}
