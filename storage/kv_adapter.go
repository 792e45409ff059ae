package storage

import (
	"errors"

	"github.com/ioi-foundation/kernel/core"
)

// KVAdapter adapts a DB into the narrower state.KVBackend contract (plain
// nil-on-miss Get, explicit Has/Delete) that the state tree's NodeStore and
// VersionIndex are written against, so both the state package and the rest
// of the kernel share one on-disk LevelDB instance instead of each owning
// its own handle.
type KVAdapter struct {
	db DB
}

func NewKVAdapter(db DB) *KVAdapter {
	return &KVAdapter{db: db}
}

func (a *KVAdapter) Get(key []byte) ([]byte, error) {
	val, err := a.db.Get(key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	return val, err
}

func (a *KVAdapter) Put(key, value []byte) error {
	return a.db.Set(key, value)
}

func (a *KVAdapter) Has(key []byte) (bool, error) {
	val, err := a.Get(key)
	if err != nil {
		return false, err
	}
	return val != nil, nil
}

func (a *KVAdapter) Delete(key []byte) error {
	return a.db.Delete(key)
}
