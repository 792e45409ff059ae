package agentic_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/internal/testutil"
	"github.com/ioi-foundation/kernel/services/agentic"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/types"
)

func newStore(t *testing.T) (*execution.NamespacedStore, *agentic.Service) {
	t.Helper()
	tree := state.NewTree(state.NewKVNodeStore(storage.NewKVAdapter(testutil.NewMemDB())))
	svc := agentic.New()
	return execution.NewNamespacedStore(tree, svc.Manifest()), svc
}

func TestStartAgentThenChargeTracksSpend(t *testing.T) {
	store, svc := newStore(t)
	sessionID := [32]byte{0x01}

	start, err := json.Marshal(agentic.StartAgentRequest{
		SessionID: sessionID, Owner: types.AccountId{0xaa}, Goal: "test", MaxSteps: 5, InitialBudget: 100,
	})
	require.NoError(t, err)
	_, err = svc.Execute(store, "start_agent", start)
	require.NoError(t, err)

	charge, err := json.Marshal(agentic.ChargeRequest{SessionID: sessionID, Tokens: 40})
	require.NoError(t, err)
	raw, err := svc.Execute(store, "charge", charge)
	require.NoError(t, err)

	var session agentic.Session
	require.NoError(t, json.Unmarshal(raw, &session))
	require.Equal(t, uint64(40), session.SpentTokens)
	require.Equal(t, uint64(60), session.RemainingBudget())
	require.Equal(t, agentic.SessionActive, session.State)
}

func TestChargeRejectsOverBudget(t *testing.T) {
	store, svc := newStore(t)
	sessionID := [32]byte{0x02}
	start, err := json.Marshal(agentic.StartAgentRequest{SessionID: sessionID, MaxSteps: 5, InitialBudget: 10})
	require.NoError(t, err)
	_, err = svc.Execute(store, "start_agent", start)
	require.NoError(t, err)

	charge, err := json.Marshal(agentic.ChargeRequest{SessionID: sessionID, Tokens: 20})
	require.NoError(t, err)
	_, err = svc.Execute(store, "charge", charge)
	require.ErrorIs(t, err, agentic.ErrBudgetExceeded)
}

func TestSessionClosesWhenMaxStepsReached(t *testing.T) {
	store, svc := newStore(t)
	sessionID := [32]byte{0x03}
	start, err := json.Marshal(agentic.StartAgentRequest{SessionID: sessionID, MaxSteps: 1, InitialBudget: 1000})
	require.NoError(t, err)
	_, err = svc.Execute(store, "start_agent", start)
	require.NoError(t, err)

	charge, err := json.Marshal(agentic.ChargeRequest{SessionID: sessionID, Tokens: 1})
	require.NoError(t, err)
	raw, err := svc.Execute(store, "charge", charge)
	require.NoError(t, err)

	var session agentic.Session
	require.NoError(t, json.Unmarshal(raw, &session))
	require.Equal(t, agentic.SessionClosed, session.State)
}
