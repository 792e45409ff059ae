package state

import "errors"

// Sentinel errors surfaced by the state package, matched with errors.Is by
// execution and the IPC StateQuery service to map onto the right gRPC
// status code.
var (
	// ErrUnknownAnchor is returned when a query names a (height, hash) or
	// root that the tree has no record of, either because it was pruned or
	// because it never existed.
	ErrUnknownAnchor = errors.New("state: unknown anchor")

	// ErrBackend wraps an underlying storage failure (disk I/O, corruption)
	// distinct from a semantic not-found.
	ErrBackend = errors.New("state: backend error")

	// ErrDecode is returned when a persisted node's bytes can't be decoded,
	// indicating on-disk corruption rather than a missing key.
	ErrDecode = errors.New("state: decode error")

	// ErrInvalidProof is returned by proof verification when the supplied
	// proof doesn't reproduce the claimed root.
	ErrInvalidProof = errors.New("state: invalid proof")

	// ErrPinned is returned by Prune when asked to remove a version still
	// held by an outstanding PinGuard.
	ErrPinned = errors.New("state: version is pinned")
)
