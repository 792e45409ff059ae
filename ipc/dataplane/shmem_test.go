package dataplane_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/ipc/dataplane"
)

func TestRingReserveReadRelease(t *testing.T) {
	r := dataplane.NewRing("region-a", 4, 64)

	h, err := r.Reserve([]byte("hello context slice"))
	require.NoError(t, err)

	got, err := r.Read(h)
	require.NoError(t, err)
	require.Equal(t, "hello context slice", string(got))

	require.NoError(t, r.Release(h))
	_, err = r.Read(h)
	require.ErrorIs(t, err, dataplane.ErrHandleStale)
}

func TestRingFullReturnsError(t *testing.T) {
	r := dataplane.NewRing("region-b", 1, 16)
	_, err := r.Reserve([]byte("one"))
	require.NoError(t, err)

	_, err = r.Reserve([]byte("two"))
	require.ErrorIs(t, err, dataplane.ErrRingFull)
}

func TestMmapRingReserveReadRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.bin")
	r, err := dataplane.OpenMmapRing("region-mmap", path, 2, 128)
	require.NoError(t, err)
	defer r.Close()

	h, err := r.Reserve([]byte("encrypted-slice-payload"))
	require.NoError(t, err)

	got, err := r.Read(h)
	require.NoError(t, err)
	require.Equal(t, "encrypted-slice-payload", string(got))
}

func TestDeriveSessionKeyDeterministic(t *testing.T) {
	secret := []byte("shared-secret-from-mtls-handshake")
	k1, err := dataplane.DeriveSessionKey(secret, "session-1")
	require.NoError(t, err)
	k2, err := dataplane.DeriveSessionKey(secret, "session-1")
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	k3, err := dataplane.DeriveSessionKey(secret, "session-2")
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)
}
