// Package nonce exposes a read-only query surface over account nonces.
// Nonce enforcement itself lives in execution.NonceDecorator, which runs at
// the Machine level before any service dispatch — this service exists only
// so a client can ask "what nonce should my next transaction use" without
// reaching into raw state keys.
package nonce

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/types"
)

const ServiceID = "nonce"

type QueryRequest struct {
	AccountID types.AccountId `json:"account_id"`
}

type QueryResponse struct {
	AccountID types.AccountId `json:"account_id"`
	Nonce     uint64          `json:"nonce"`
}

type Service struct {
	manifest *types.ServiceManifest
}

func New() *Service {
	return &Service{
		manifest: &types.ServiceManifest{
			ID:          ServiceID,
			ABIVersion:  1,
			StateSchema: "nonce.v1",
			Runtime:     "native",
			Methods: map[string]types.MethodVisibility{
				"query": types.MethodUser,
			},
			AllowedSystemPrefixes: []string{"account_nonce::"},
		},
	}
}

func (s *Service) Manifest() *types.ServiceManifest { return s.manifest }

func (s *Service) Execute(store *execution.NamespacedStore, method string, payload []byte) ([]byte, error) {
	switch method {
	case "query":
		var req QueryRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("nonce: decode request: %w", err)
		}
		raw, ok, err := store.Get(types.AccountNonceKey(req.AccountID))
		if err != nil {
			return nil, fmt.Errorf("nonce: read nonce: %w", err)
		}
		var n uint64
		if ok && len(raw) == 8 {
			n = binary.BigEndian.Uint64(raw)
		}
		resp, err := json.Marshal(QueryResponse{AccountID: req.AccountID, Nonce: n})
		if err != nil {
			return nil, fmt.Errorf("nonce: encode response: %w", err)
		}
		return resp, nil
	default:
		return nil, fmt.Errorf("nonce: unknown method %q", method)
	}
}
