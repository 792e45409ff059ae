// Package canon implements the deterministic, length-prefixed byte encoding
// used to build hash preimages in package types: block headers and
// transaction signing payloads compose these helpers rather than hashing
// ad-hoc JSON. State-tree node preimages are built separately, in package
// state. Encoding a value two different ways must
// never happen, since a changed preimage changes every hash built on top of
// it.
package canon

import "encoding/binary"

// Builder accumulates a canonical byte sequence field by field.
type Builder struct {
	buf []byte
}

func NewBuilder() *Builder { return &Builder{} }

// Bytes writes a length-prefixed byte string: uvarint length, then payload.
func (b *Builder) Bytes(v []byte) *Builder {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(v)))
	b.buf = append(b.buf, lenBuf[:n]...)
	b.buf = append(b.buf, v...)
	return b
}

// Raw appends v with no length prefix, for fixed-size fields where the
// length is already implied by position (hashes, fixed arrays).
func (b *Builder) Raw(v []byte) *Builder {
	b.buf = append(b.buf, v...)
	return b
}

// Str is Bytes for a string value.
func (b *Builder) Str(v string) *Builder { return b.Bytes([]byte(v)) }

// U64 appends v as 8 big-endian bytes.
func (b *Builder) U64(v uint64) *Builder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// U32 appends v as 4 big-endian bytes.
func (b *Builder) U32(v uint32) *Builder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// Byte appends a single tag/flag byte.
func (b *Builder) Byte(v byte) *Builder {
	b.buf = append(b.buf, v)
	return b
}

// Bool appends 1 or 0.
func (b *Builder) Bool(v bool) *Builder {
	if v {
		return b.Byte(1)
	}
	return b.Byte(0)
}

// Build returns the accumulated preimage.
func (b *Builder) Build() []byte { return b.buf }
