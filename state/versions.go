package state

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const versionKeyPrefix = "state::version::"

func versionKey(version uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], version)
	return append([]byte(versionKeyPrefix), buf[:]...)
}

// VersionIndex maps committed version numbers to the root hash they
// produced, so a historical query can resolve (epoch, hash) or a bare
// height back to a loadable Tree.
type VersionIndex struct {
	backend KVBackend
}

func NewVersionIndex(backend KVBackend) *VersionIndex {
	return &VersionIndex{backend: backend}
}

// Record stores the root hash committed at version.
func (vi *VersionIndex) Record(version uint64, root [32]byte) error {
	if err := vi.backend.Put(versionKey(version), root[:]); err != nil {
		return fmt.Errorf("state: record version %d: %w", version, err)
	}
	return nil
}

// RootAt returns the root hash recorded for version.
func (vi *VersionIndex) RootAt(version uint64) ([32]byte, error) {
	raw, err := vi.backend.Get(versionKey(version))
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if raw == nil {
		return [32]byte{}, ErrUnknownAnchor
	}
	if len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("%w: version %d root has wrong length", ErrDecode, version)
	}
	var root [32]byte
	copy(root[:], raw)
	return root, nil
}

// Pruner removes version entries (and, were this a space-accounting GC, the
// nodes exclusively reachable from them) once they are older than a
// retention window and not held by any PinGuard. Node garbage collection
// itself is out of scope here: because nodes are content-addressed and
// shared across versions, safely reclaiming one requires a reference count
// per node hash, not per version; this kernel prunes the version index only
// and leaves node storage to grow, matching the teacher's leveldb backend
// which also never compacts application data itself.
type Pruner struct {
	versions *VersionIndex
	pins     *PinSet
}

func NewPruner(versions *VersionIndex, pins *PinSet) *Pruner {
	return &Pruner{versions: versions, pins: pins}
}

// Prune removes the version entry for version if it is not pinned.
func (p *Pruner) Prune(version uint64) error {
	if p.pins.IsPinned(version) {
		return fmt.Errorf("%w: version %d", ErrPinned, version)
	}
	return p.versions.backend.Delete(versionKey(version))
}

func hexRoot(root [32]byte) string { return hex.EncodeToString(root[:]) }
