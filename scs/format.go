// Package scs implements the Sovereign Context Store: an append-only .scs
// file that records an agent's observation/thought/action history as a log
// of Frames, with a rewritten Table of Contents at the tail of the file and
// reads that copy payloads out of an mmap of the whole file. Grounded on the Rust
// crates/scs/src/format.rs and store.rs modules this kernel was ported from.
package scs

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies a .scs file.
var Magic = [8]byte{'I', 'O', 'I', '-', 'S', 'C', 'S', '!'}

// FormatVersion is the only version this package writes or reads.
const FormatVersion uint16 = 1

// HeaderSize is the fixed on-disk size of Header.
const HeaderSize = 64

// Header is the 64-byte prefix of every .scs file.
type Header struct {
	Magic     [8]byte
	Version   uint16
	Flags     uint16
	ChainID   uint32
	OwnerID   [32]byte
	TOCOffset uint64
	TOCLength uint64
}

// Bytes serializes h into its fixed 64-byte on-disk layout.
func (h *Header) Bytes() [HeaderSize]byte {
	var b [HeaderSize]byte
	copy(b[0:8], h.Magic[:])
	binary.LittleEndian.PutUint16(b[8:10], h.Version)
	binary.LittleEndian.PutUint16(b[10:12], h.Flags)
	binary.LittleEndian.PutUint32(b[12:16], h.ChainID)
	copy(b[16:48], h.OwnerID[:])
	binary.LittleEndian.PutUint64(b[48:56], h.TOCOffset)
	binary.LittleEndian.PutUint64(b[56:64], h.TOCLength)
	return b
}

// HeaderFromBytes parses a 64-byte header, validating magic and version.
func HeaderFromBytes(b []byte) (Header, error) {
	var h Header
	if len(b) != HeaderSize {
		return h, fmt.Errorf("scs: header must be %d bytes, got %d", HeaderSize, len(b))
	}
	copy(h.Magic[:], b[0:8])
	if h.Magic != Magic {
		return h, fmt.Errorf("scs: bad magic bytes")
	}
	h.Version = binary.LittleEndian.Uint16(b[8:10])
	if h.Version != FormatVersion {
		return h, fmt.Errorf("scs: unsupported format version %d", h.Version)
	}
	h.Flags = binary.LittleEndian.Uint16(b[10:12])
	h.ChainID = binary.LittleEndian.Uint32(b[12:16])
	copy(h.OwnerID[:], b[16:48])
	h.TOCOffset = binary.LittleEndian.Uint64(b[48:56])
	h.TOCLength = binary.LittleEndian.Uint64(b[56:64])
	return h, nil
}

// NewHeader builds a fresh header for a new store, with the TOC placed
// immediately after the header (an empty TOC, until the first append).
func NewHeader(chainID uint32, ownerID [32]byte) Header {
	return Header{
		Magic:     Magic,
		Version:   FormatVersion,
		ChainID:   chainID,
		OwnerID:   ownerID,
		TOCOffset: HeaderSize,
	}
}

// FrameID is a monotonically increasing frame identifier, equal to the
// frame's index in Toc.Frames.
type FrameID uint64

// FrameType classifies a frame's content.
type FrameType uint8

const (
	FrameObservation FrameType = iota
	FrameThought
	FrameAction
	FrameSystem
)

// Frame is the metadata for one unit of memory: where its payload lives in
// the file, and the mHNSW root it was bound to at capture time, enabling a
// later "proof of retrieval" that a search against this frame used the
// correct tamper-evident index state.
type Frame struct {
	ID            FrameID   `json:"id"`
	Type          FrameType `json:"frame_type"`
	TimestampMS   int64     `json:"timestamp_ms"`
	BlockHeight   uint64    `json:"block_height"`
	PayloadOffset uint64    `json:"payload_offset"`
	PayloadLength uint64    `json:"payload_length"`
	MHNSWRoot     [32]byte  `json:"mhnsw_root"`
	Checksum      [32]byte  `json:"checksum"`
	IsEncrypted   bool      `json:"is_encrypted"`
}

// VectorIndexManifest locates the most recently committed mHNSW graph
// artifact within the file.
type VectorIndexManifest struct {
	Offset    uint64   `json:"offset"`
	Length    uint64   `json:"length"`
	Count     uint64   `json:"count"`
	Dimension uint32   `json:"dimension"`
	RootHash  [32]byte `json:"root_hash"`
}

// TOC is the Table of Contents, rewritten at the tail of the file on every
// append so the header can always point at one authoritative index.
type TOC struct {
	Frames      []Frame              `json:"frames"`
	VectorIndex *VectorIndexManifest `json:"vector_index,omitempty"`
}
