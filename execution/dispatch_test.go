package execution_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/execution"
	"github.com/ioi-foundation/kernel/internal/testutil"
	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/types"
)

type stubHandler struct {
	manifest *types.ServiceManifest
}

func (h *stubHandler) Manifest() *types.ServiceManifest { return h.manifest }

func (h *stubHandler) Execute(store *execution.NamespacedStore, method string, payload []byte) ([]byte, error) {
	return []byte("ok"), nil
}

func newTree(t *testing.T) *state.Tree {
	t.Helper()
	return state.NewTree(state.NewKVNodeStore(storage.NewKVAdapter(testutil.NewMemDB())))
}

func newStub(id string, abiVersion uint32) *stubHandler {
	return &stubHandler{manifest: &types.ServiceManifest{
		ID:         id,
		ABIVersion: abiVersion,
		Runtime:    "native",
		Methods:    map[string]types.MethodVisibility{"do": types.MethodUser},
	}}
}

func TestDispatchServesWithNoActiveServiceMeta(t *testing.T) {
	tree := newTree(t)
	reg := execution.NewRegistry()
	reg.Register(newStub("desktop_agent", 1))

	out, err := reg.Dispatch(tree, "desktop_agent", "do", nil, true)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), out)
}

func TestDispatchServesWhenActiveMetaMatchesABIVersion(t *testing.T) {
	tree := newTree(t)
	reg := execution.NewRegistry()
	reg.Register(newStub("desktop_agent", 2))

	meta := types.ActiveServiceMeta{ID: "desktop_agent", ABIVersion: 2, ActivationHeight: 1}
	raw, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, tree.Insert([]byte(types.ActiveServiceKey("desktop_agent")), raw))

	out, err := reg.Dispatch(tree, "desktop_agent", "do", nil, true)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), out)
}

func TestDispatchRejectsWhenActiveMetaHasDifferentABIVersion(t *testing.T) {
	tree := newTree(t)
	reg := execution.NewRegistry()
	reg.Register(newStub("desktop_agent", 1))

	meta := types.ActiveServiceMeta{ID: "desktop_agent", ABIVersion: 2, ActivationHeight: 1}
	raw, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, tree.Insert([]byte(types.ActiveServiceKey("desktop_agent")), raw))

	_, err = reg.Dispatch(tree, "desktop_agent", "do", nil, true)
	require.Error(t, err)
}
