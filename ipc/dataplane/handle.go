package dataplane

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// slotHeaderSize is the fixed per-slot prefix: 8 bytes generation, 4 bytes
// length, followed by the slot's payload capacity.
const slotHeaderSize = 12

// MmapRing is the real cross-process ring: a single backing file, opened and
// mmap'd by both the Orchestrator and Workload processes, sliced into
// fixed-size slots. Layout per slot is
// [generation u64le | length u32le | payload...]. Only one process (the
// Workload, which owns ExecuteJob) ever writes; both read.
type MmapRing struct {
	mu       sync.Mutex
	file     *os.File
	mapping  mmap.MMap
	slotSize int
	slots    int
	regionID string
	free     []int
	nextGen  uint64
}

// OpenMmapRing creates (or truncates) path to hold slotCount slots of
// slotSize payload bytes each, and maps it read-write.
func OpenMmapRing(regionID, path string, slotCount, slotSize int) (*MmapRing, error) {
	total := int64(slotCount) * int64(slotHeaderSize+slotSize)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("dataplane: open shmem file %s: %w", path, err)
	}
	if err := f.Truncate(total); err != nil {
		f.Close()
		return nil, fmt.Errorf("dataplane: truncate shmem file %s: %w", path, err)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("dataplane: mmap shmem file %s: %w", path, err)
	}
	r := &MmapRing{file: f, mapping: m, slotSize: slotSize, slots: slotCount, regionID: regionID}
	for i := 0; i < slotCount; i++ {
		r.free = append(r.free, i)
	}
	return r, nil
}

func (r *MmapRing) slotBytes(idx int) []byte {
	stride := slotHeaderSize + r.slotSize
	return r.mapping[idx*stride : (idx+1)*stride]
}

// Reserve claims a free slot, writes payload, and returns a handle
// describing it. Mirrors Ring.Reserve's semantics over the mmap'd backing
// file instead of an in-process slice.
func (r *MmapRing) Reserve(payload []byte) (ShmemHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.free) == 0 {
		return ShmemHandle{}, ErrRingFull
	}
	if len(payload) > r.slotSize {
		return ShmemHandle{}, fmt.Errorf("dataplane: payload %d bytes exceeds slot size %d", len(payload), r.slotSize)
	}

	idx := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]
	r.nextGen++

	b := r.slotBytes(idx)
	binary.LittleEndian.PutUint64(b[0:8], r.nextGen)
	binary.LittleEndian.PutUint32(b[8:12], uint32(len(payload)))
	copy(b[slotHeaderSize:], payload)

	return ShmemHandle{
		RegionID: r.regionID,
		Offset:   uint64(idx * (slotHeaderSize + r.slotSize)),
		Length:   uint64(len(payload)),
		slot:     idx,
		gen:      r.nextGen,
	}, nil
}

// Read validates the handle's generation against the slot's current header
// and copies the payload out.
func (r *MmapRing) Read(h ShmemHandle) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.slot < 0 || h.slot >= r.slots {
		return nil, fmt.Errorf("dataplane: slot %d out of range", h.slot)
	}
	b := r.slotBytes(h.slot)
	gen := binary.LittleEndian.Uint64(b[0:8])
	if gen != h.gen {
		return nil, ErrHandleStale
	}
	length := binary.LittleEndian.Uint32(b[8:12])
	out := make([]byte, length)
	copy(out, b[slotHeaderSize:slotHeaderSize+int(length)])
	return out, nil
}

// Release returns the slot to the free list.
func (r *MmapRing) Release(h ShmemHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.slot < 0 || h.slot >= r.slots {
		return fmt.Errorf("dataplane: slot %d out of range", h.slot)
	}
	b := r.slotBytes(h.slot)
	if binary.LittleEndian.Uint64(b[0:8]) != h.gen {
		return ErrHandleStale
	}
	r.free = append(r.free, h.slot)
	return nil
}

// Close unmaps and closes the backing file.
func (r *MmapRing) Close() error {
	if err := r.mapping.Unmap(); err != nil {
		return fmt.Errorf("dataplane: unmap: %w", err)
	}
	return r.file.Close()
}
