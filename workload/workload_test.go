package workload_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ioi-foundation/kernel/internal/testutil"
	"github.com/ioi-foundation/kernel/ipc/control"
	"github.com/ioi-foundation/kernel/types"
	"github.com/ioi-foundation/kernel/workload"
)

func TestHealthReportsTipHeight(t *testing.T) {
	w := workload.New(testutil.NewMemDB(), zap.NewNop())
	resp, err := w.Health(context.Background(), &control.HealthRequest{})
	require.NoError(t, err)
	require.True(t, resp.Healthy)
	require.Equal(t, uint64(0), resp.TipHeight)
}

func TestQueryRawStateNotFound(t *testing.T) {
	w := workload.New(testutil.NewMemDB(), zap.NewNop())
	resp, err := w.QueryRawState(context.Background(), &control.QueryRawStateRequest{Key: "does-not-exist"})
	require.NoError(t, err)
	require.False(t, resp.Found)
}

func TestScheduleValidatorsThenSubmitBlockRejectsBogusStateRoot(t *testing.T) {
	w := workload.New(testutil.NewMemDB(), zap.NewNop())

	self := types.AccountId{0x01}
	scheduleResp, err := w.ScheduleValidators(context.Background(), &control.ScheduleValidatorsRequest{
		EffectiveFromHeight: 0,
		Validators:          []types.Validator{{AccountID: self, Weight: 100}},
	})
	require.NoError(t, err)
	require.True(t, scheduleResp.Accepted)

	// A block asserting a bogus (zero) state root is rejected: SubmitBlock
	// always recomputes the root from actual execution and compares it
	// against what the proposer claimed.
	block := &types.Block{Header: types.BlockHeader{Height: 1}}
	resp, err := w.SubmitBlock(context.Background(), &control.SubmitBlockRequest{Block: block})
	require.NoError(t, err)
	require.False(t, resp.Accepted)
	require.Contains(t, resp.Error, "state root mismatch")
}

func TestDeployServiceIsUnsupported(t *testing.T) {
	w := workload.New(testutil.NewMemDB(), zap.NewNop())
	resp, err := w.DeployService(context.Background(), &control.DeployServiceRequest{})
	require.NoError(t, err)
	require.False(t, resp.Accepted)
}
