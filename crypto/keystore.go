package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Encrypted key store file format (spec §6.6):
//
//	magic "IOI-GKEY" (8) | version u16 | kdf_id u8 | kdf_mem_kib u32 |
//	kdf_iters u32 | kdf_lanes u8 | salt 16 | aead_id u8 | nonce 12 |
//	ciphertext+tag
//
// Header is exactly 49 bytes, followed by the AEAD-sealed private key.
const (
	keystoreMagic       = "IOI-GKEY"
	keystoreVersion     = uint16(1)
	keystoreHeaderSize  = 8 + 2 + 1 + 4 + 4 + 1 + 16 + 1 + 12 // 49
	kdfArgon2id         = uint8(1)
	aeadChaCha20Poly1305 = uint8(1)

	defaultMemKiB = uint32(64 * 1024)
	defaultIters  = uint32(3)
	defaultLanes  = uint8(4)

	keystoreInfo = "ioi-kernel/keystore/v1"
)

// SaveKeystore encrypts priv under password using Argon2id + ChaCha20-Poly1305
// and writes it to path in the format above.
func SaveKeystore(path, password string, priv PrivateKey) error {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("read salt: %w", err)
	}
	key := deriveArgon2Key(password, salt, defaultMemKiB, defaultIters, defaultLanes)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return fmt.Errorf("init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("read nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, priv, []byte(keystoreInfo))

	buf := make([]byte, 0, keystoreHeaderSize+len(ciphertext))
	buf = append(buf, keystoreMagic...)
	buf = binary.BigEndian.AppendUint16(buf, keystoreVersion)
	buf = append(buf, kdfArgon2id)
	buf = binary.BigEndian.AppendUint32(buf, defaultMemKiB)
	buf = binary.BigEndian.AppendUint32(buf, defaultIters)
	buf = append(buf, defaultLanes)
	buf = append(buf, salt...)
	buf = append(buf, aeadChaCha20Poly1305)
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)

	return os.WriteFile(path, buf, 0o600)
}

// LoadKeystore decrypts the keystore at path using password.
func LoadKeystore(path, password string) (PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < keystoreHeaderSize {
		return nil, errors.New("keystore: truncated header")
	}
	if string(data[:8]) != keystoreMagic {
		return nil, errors.New("keystore: bad magic")
	}
	off := 8
	version := binary.BigEndian.Uint16(data[off:])
	off += 2
	if version != keystoreVersion {
		return nil, fmt.Errorf("keystore: unsupported version %d", version)
	}
	kdfID := data[off]
	off++
	if kdfID != kdfArgon2id {
		return nil, fmt.Errorf("keystore: unsupported kdf id %d", kdfID)
	}
	memKiB := binary.BigEndian.Uint32(data[off:])
	off += 4
	iters := binary.BigEndian.Uint32(data[off:])
	off += 4
	lanes := data[off]
	off++
	salt := data[off : off+16]
	off += 16
	aeadID := data[off]
	off++
	if aeadID != aeadChaCha20Poly1305 {
		return nil, fmt.Errorf("keystore: unsupported aead id %d", aeadID)
	}
	nonce := data[off : off+12]
	off += 12
	ciphertext := data[off:]

	key := deriveArgon2Key(password, salt, memKiB, iters, lanes)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(keystoreInfo))
	if err != nil {
		return nil, errors.New("keystore: wrong password or corrupted file")
	}
	if len(plain) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keystore: decoded key has wrong size %d", len(plain))
	}
	return PrivateKey(plain), nil
}

func deriveArgon2Key(password string, salt []byte, memKiB, iters uint32, lanes uint8) []byte {
	return argon2.IDKey([]byte(password), salt, iters, memKiB, lanes, chacha20poly1305.KeySize)
}
