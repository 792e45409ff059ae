package workload

import (
	"encoding/json"
	"fmt"

	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/ipc/control"
	"github.com/ioi-foundation/kernel/services/agentic"
	"github.com/ioi-foundation/kernel/services/identity"
)

// sessionIDToBytes maps a control-plane string session id to the fixed
// [32]byte identifier agentic.Session keys off of, deterministically, so
// the same session string always lands on the same on-chain session.
func sessionIDToBytes(sessionID string) [32]byte {
	return crypto.Hash32([]byte(sessionID))
}

func marshalScheduleRequest(req *control.ScheduleValidatorsRequest) ([]byte, error) {
	payload, err := json.Marshal(identity.ScheduleValidatorSetRequest{
		EffectiveFromHeight: req.EffectiveFromHeight,
		Validators:          req.Validators,
	})
	if err != nil {
		return nil, fmt.Errorf("workload: encode schedule_validator_set: %w", err)
	}
	return payload, nil
}

func marshalCharge(sessionID string, tokens uint64) ([]byte, error) {
	payload, err := json.Marshal(agentic.ChargeRequest{
		SessionID: sessionIDToBytes(sessionID),
		Tokens:    tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("workload: encode charge: %w", err)
	}
	return payload, nil
}
