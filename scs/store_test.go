package scs_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/scs"
)

func TestCreateAppendReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.scs")
	store, err := scs.Create(path, 7, [32]byte{0x01})
	require.NoError(t, err)
	defer store.Close()

	id, err := store.AppendFrame(scs.FrameObservation, []byte("screenshot-bytes"), 100, [32]byte{0xaa})
	require.NoError(t, err)
	require.Equal(t, scs.FrameID(0), id)

	payload, err := store.ReadFramePayload(id)
	require.NoError(t, err)
	require.Equal(t, "screenshot-bytes", string(payload))
	require.Equal(t, 1, store.FrameCount())
}

func TestOpenReloadsAppendedFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.scs")
	store, err := scs.Create(path, 1, [32]byte{})
	require.NoError(t, err)
	_, err = store.AppendFrame(scs.FrameAction, []byte("click(10,20)"), 1, [32]byte{})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := scs.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, 1, reopened.FrameCount())
	payload, err := reopened.ReadFramePayload(0)
	require.NoError(t, err)
	require.Equal(t, "click(10,20)", string(payload))
}

func TestReadFrameUnknownID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.scs")
	store, err := scs.Create(path, 1, [32]byte{})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.ReadFramePayload(5)
	require.ErrorIs(t, err, scs.ErrFrameNotFound)
}

func TestCommitVectorIndexUpdatesManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.scs")
	store, err := scs.Create(path, 1, [32]byte{})
	require.NoError(t, err)
	defer store.Close()

	require.Nil(t, store.VectorIndexManifest())
	require.NoError(t, store.CommitVectorIndex([]byte("graph-bytes"), 3, 384, [32]byte{0xbb}))

	manifest := store.VectorIndexManifest()
	require.NotNil(t, manifest)
	require.Equal(t, uint64(3), manifest.Count)
	require.Equal(t, uint32(384), manifest.Dimension)
}
