// Package core holds the one piece of shared vocabulary still used below
// the state/storage/types split: the not-found sentinel every storage
// backend returns so callers can tell "absent" apart from a real I/O error
// with a single errors.Is check.
package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")
