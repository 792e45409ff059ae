package scs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/edsrzf/mmap-go"

	"github.com/ioi-foundation/kernel/crypto"
)

// ErrFrameNotFound is returned by ReadFramePayload for an unknown frame id.
var ErrFrameNotFound = errors.New("scs: frame not found")

// Store is the main interface to one .scs file: an append-only log of
// Frames with a TOC rewritten at the file's tail on every append, and a
// memory-mapped view that payload reads copy out of. Grounded directly on the
// Rust SovereignContextStore's create/open/append_frame/read_frame_payload
// sequence, generalized to the kernel's JSON-everywhere encoding instead of
// bincode.
type Store struct {
	mu     sync.Mutex
	file   *os.File
	header Header
	toc    TOC
	mapped mmap.MMap
}

// Create makes a brand-new .scs file at path. Fails if the file already
// exists, mirroring the Rust implementation's refusal to silently truncate
// an agent's existing history.
func Create(path string, chainID uint32, ownerID [32]byte) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("scs: file already exists: %s", path)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("scs: create %s: %w", path, err)
	}

	header := NewHeader(chainID, ownerID)
	toc := TOC{}
	tocBytes, err := json.Marshal(toc)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("scs: encode empty toc: %w", err)
	}
	header.TOCLength = uint64(len(tocBytes))

	hb := header.Bytes()
	if _, err := f.Write(hb[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("scs: write header: %w", err)
	}
	if _, err := f.Write(tocBytes); err != nil {
		f.Close()
		return nil, fmt.Errorf("scs: write toc: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("scs: fsync: %w", err)
	}

	return &Store{file: f, header: header, toc: toc}, nil
}

// Open loads an existing .scs file, validating the header and parsing the
// TOC it points at.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("scs: open %s: %w", path, err)
	}

	hb := make([]byte, HeaderSize)
	if _, err := f.ReadAt(hb, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("scs: read header: %w", err)
	}
	header, err := HeaderFromBytes(hb)
	if err != nil {
		f.Close()
		return nil, err
	}

	tocBytes := make([]byte, header.TOCLength)
	if _, err := f.ReadAt(tocBytes, int64(header.TOCOffset)); err != nil {
		f.Close()
		return nil, fmt.Errorf("scs: read toc: %w", err)
	}
	var toc TOC
	if err := json.Unmarshal(tocBytes, &toc); err != nil {
		f.Close()
		return nil, fmt.Errorf("scs: decode toc: %w", err)
	}

	s := &Store{file: f, header: header, toc: toc}
	if err := s.remap(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// remap refreshes the mmap view after the file has grown.
func (s *Store) remap() error {
	if s.mapped != nil {
		if err := s.mapped.Unmap(); err != nil {
			return fmt.Errorf("scs: unmap: %w", err)
		}
	}
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("scs: stat: %w", err)
	}
	if info.Size() == 0 {
		s.mapped = nil
		return nil
	}
	m, err := mmap.Map(s.file, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("scs: mmap: %w", err)
	}
	s.mapped = m
	return nil
}

// AppendFrame writes payload at the current TOC offset (overwriting the
// stale TOC copy that lived there), appends the new TOC after it, then
// rewrites the header to point at the new TOC — the same
// write-payload-then-append-toc-then-update-header ordering the original
// store uses so a crash mid-append leaves the last fsync'd header
// pointing at a still-valid, if stale, TOC.
func (s *Store) AppendFrame(frameType FrameType, payload []byte, blockHeight uint64, mhnswRoot [32]byte) (FrameID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextID := FrameID(len(s.toc.Frames))
	writeOffset := s.header.TOCOffset
	checksum := crypto.Hash32(payload)

	if _, err := s.file.WriteAt(payload, int64(writeOffset)); err != nil {
		return 0, fmt.Errorf("scs: write payload: %w", err)
	}

	frame := Frame{
		ID:            nextID,
		Type:          frameType,
		TimestampMS:   time.Now().UnixMilli(),
		BlockHeight:   blockHeight,
		PayloadOffset: writeOffset,
		PayloadLength: uint64(len(payload)),
		MHNSWRoot:     mhnswRoot,
		Checksum:      checksum,
	}
	s.toc.Frames = append(s.toc.Frames, frame)

	newTOCOffset := writeOffset + uint64(len(payload))
	tocBytes, err := json.Marshal(s.toc)
	if err != nil {
		return 0, fmt.Errorf("scs: encode toc: %w", err)
	}
	if _, err := s.file.WriteAt(tocBytes, int64(newTOCOffset)); err != nil {
		return 0, fmt.Errorf("scs: write toc: %w", err)
	}

	s.header.TOCOffset = newTOCOffset
	s.header.TOCLength = uint64(len(tocBytes))
	hb := s.header.Bytes()
	if _, err := s.file.WriteAt(hb[:], 0); err != nil {
		return 0, fmt.Errorf("scs: write header: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return 0, fmt.Errorf("scs: fsync: %w", err)
	}

	if err := s.remap(); err != nil {
		return 0, err
	}
	return nextID, nil
}

// ReadFramePayload returns the payload bytes for id via the store's mmap,
// verifying the stored checksum to catch on-disk corruption.
func (s *Store) ReadFramePayload(id FrameID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(id) >= len(s.toc.Frames) {
		return nil, ErrFrameNotFound
	}
	frame := s.toc.Frames[id]
	if s.mapped == nil {
		return nil, fmt.Errorf("scs: no data mapped")
	}
	start := frame.PayloadOffset
	end := start + frame.PayloadLength
	if end > uint64(len(s.mapped)) {
		return nil, fmt.Errorf("scs: frame %d payload out of bounds", id)
	}
	payload := make([]byte, frame.PayloadLength)
	copy(payload, s.mapped[start:end])

	if got := crypto.Hash32(payload); got != frame.Checksum {
		return nil, fmt.Errorf("scs: frame %d checksum mismatch", id)
	}
	return payload, nil
}

// CommitVectorIndex appends a serialized mHNSW graph artifact and updates
// the TOC's VectorIndexManifest to point at it, following the same
// append-then-rewrite-toc ordering as AppendFrame.
func (s *Store) CommitVectorIndex(artifact []byte, count uint64, dimension uint32, rootHash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeOffset := s.header.TOCOffset
	if _, err := s.file.WriteAt(artifact, int64(writeOffset)); err != nil {
		return fmt.Errorf("scs: write index artifact: %w", err)
	}

	s.toc.VectorIndex = &VectorIndexManifest{
		Offset:    writeOffset,
		Length:    uint64(len(artifact)),
		Count:     count,
		Dimension: dimension,
		RootHash:  rootHash,
	}

	newTOCOffset := writeOffset + uint64(len(artifact))
	tocBytes, err := json.Marshal(s.toc)
	if err != nil {
		return fmt.Errorf("scs: encode toc: %w", err)
	}
	if _, err := s.file.WriteAt(tocBytes, int64(newTOCOffset)); err != nil {
		return fmt.Errorf("scs: write toc: %w", err)
	}

	s.header.TOCOffset = newTOCOffset
	s.header.TOCLength = uint64(len(tocBytes))
	hb := s.header.Bytes()
	if _, err := s.file.WriteAt(hb[:], 0); err != nil {
		return fmt.Errorf("scs: write header: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("scs: fsync: %w", err)
	}
	return s.remap()
}

// VectorIndexManifest returns the store's current vector index location, or
// nil if no index has ever been committed.
func (s *Store) VectorIndexManifest() *VectorIndexManifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toc.VectorIndex
}

// FrameCount returns the number of frames recorded so far.
func (s *Store) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.toc.Frames)
}

// Close unmaps and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapped != nil {
		if err := s.mapped.Unmap(); err != nil {
			return fmt.Errorf("scs: unmap: %w", err)
		}
	}
	return s.file.Close()
}
