package crypto_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ioi-foundation/kernel/crypto"
)

func TestKeystoreRoundTrips(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "validator.key")
	require.NoError(t, crypto.SaveKeystore(path, "hunter2", priv))

	loaded, err := crypto.LoadKeystore(path, "hunter2")
	require.NoError(t, err)
	require.Equal(t, priv, loaded)
}

func TestKeystoreWrongPasswordFails(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "validator.key")
	require.NoError(t, crypto.SaveKeystore(path, "correct-password", priv))

	_, err = crypto.LoadKeystore(path, "wrong-password")
	require.Error(t, err)
}

func TestKeystoreRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validator.key")
	require.NoError(t, os.WriteFile(path, []byte("not a keystore"), 0o600))

	_, err := crypto.LoadKeystore(path, "anything")
	require.Error(t, err)
}
