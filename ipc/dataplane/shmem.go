// Package dataplane implements the Workload's bulk data channel: a named
// fixed-size shared-memory ring for context slices and inference output, so
// bulk bytes need not round-trip through the gRPC control plane. The ring
// copies payload bytes exactly as given and does no encryption itself;
// DeriveSessionKey derives a per-session key via HKDF over a shared secret
// established out of band, for callers that encrypt slots before writing.
package dataplane

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// sessionKeyInfo is the fixed HKDF info parameter for deriving a data-plane
// session key, resolving spec §9's open question on this string.
const sessionKeyInfo = "ioi-kernel/shmem-session/v1"

// DeriveSessionKey derives a 32-byte session key from a shared secret and
// session id using HKDF-SHA256 with the kernel's fixed info string.
func DeriveSessionKey(sharedSecret []byte, sessionID string) ([32]byte, error) {
	var key [32]byte
	r := hkdf.New(sha256.New, sharedSecret, []byte(sessionID), []byte(sessionKeyInfo))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("dataplane: derive session key: %w", err)
	}
	return key, nil
}

// ErrRingFull is returned by Ring.Reserve when every slot is currently
// claimed by an unconsumed write.
var ErrRingFull = errors.New("dataplane: ring full")

// ErrHandleStale is returned when a caller presents a ShmemHandle whose
// generation no longer matches the slot's current occupant — the slot was
// released, and possibly reused, since the handle was issued.
var ErrHandleStale = errors.New("dataplane: stale shmem handle")

// slot is one fixed-size region of the ring, guarded by the ring's single
// writer mutex (spec §4.6: "writer mutex").
type slot struct {
	generation uint64
	length     int
	data       []byte
}

// Ring is a named, fixed-size shared-memory ring of slotCount slots, each
// slotSize bytes. In this single-process implementation "shared memory" is
// backed by a plain byte slice per slot rather than an OS shm segment —
// mmap-backed cross-process slots are provided by MmapRing for the real
// two-process deployment; Ring is the in-process counterpart used by tests
// and single-binary deployments.
type Ring struct {
	mu       sync.Mutex // "writer mutex": only one writer claims a slot at a time
	regionID string
	slots    []slot
	free     []int
	nextGen  uint64
}

// NewRing allocates a ring with slotCount slots of slotSize bytes each.
func NewRing(regionID string, slotCount, slotSize int) *Ring {
	r := &Ring{regionID: regionID, slots: make([]slot, slotCount)}
	for i := range r.slots {
		r.slots[i].data = make([]byte, slotSize)
		r.free = append(r.free, i)
	}
	return r
}

// ShmemHandle addresses one reserved slot: region_id, offset (slot index
// encoded as byte offset for wire compatibility with a real shm layout),
// length.
type ShmemHandle struct {
	RegionID string
	Offset   uint64
	Length   uint64
	slot     int
	gen      uint64
}

// Reserve claims a free slot and copies payload into it, returning a handle
// the caller can pass across the control plane. Returns ErrRingFull if no
// slot is free.
func (r *Ring) Reserve(payload []byte) (ShmemHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.free) == 0 {
		return ShmemHandle{}, ErrRingFull
	}
	if len(payload) > len(r.slots[0].data) {
		return ShmemHandle{}, fmt.Errorf("dataplane: payload %d bytes exceeds slot size %d", len(payload), len(r.slots[0].data))
	}

	idx := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]

	r.nextGen++
	r.slots[idx].generation = r.nextGen
	r.slots[idx].length = len(payload)
	copy(r.slots[idx].data, payload)

	return ShmemHandle{
		RegionID: r.regionID,
		Offset:   uint64(idx) * uint64(len(r.slots[idx].data)),
		Length:   uint64(len(payload)),
		slot:     idx,
		gen:      r.nextGen,
	}, nil
}

// Read copies the slot's current contents out. Fails with ErrHandleStale
// once the slot has been released.
func (r *Ring) Read(h ShmemHandle) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.slot < 0 || h.slot >= len(r.slots) {
		return nil, fmt.Errorf("dataplane: slot %d out of range", h.slot)
	}
	s := &r.slots[h.slot]
	if s.generation != h.gen {
		return nil, ErrHandleStale
	}
	out := make([]byte, s.length)
	copy(out, s.data[:s.length])
	return out, nil
}

// Release returns the slot to the free list once the reader is done with it.
func (r *Ring) Release(h ShmemHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.slot < 0 || h.slot >= len(r.slots) {
		return fmt.Errorf("dataplane: slot %d out of range", h.slot)
	}
	if r.slots[h.slot].generation != h.gen {
		return ErrHandleStale
	}
	r.slots[h.slot].generation = 0 // generations start at 1, so no handle matches a released slot
	r.free = append(r.free, h.slot)
	return nil
}
