package storage

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ioi-foundation/kernel/core"
	"github.com/ioi-foundation/kernel/types"
)

// BlockStore persists types.Block by height and by header hash, on top of
// the same generic DB interface the teacher's LevelBlockStore used for its
// own core.Block — same key-prefix convention ("block:{hash}",
// "height:{n}", "chain:tip"), generalized to the kernel's header/body/
// signature block shape instead of the teacher's flat struct.
type BlockStore struct {
	db DB
}

func NewBlockStore(db DB) *BlockStore {
	return &BlockStore{db: db}
}

func (s *BlockStore) PutBlock(block *types.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("storage: encode block: %w", err)
	}
	hash := block.Header.HashHex()
	if err := s.db.Set(blockKey(hash), data); err != nil {
		return fmt.Errorf("storage: put block %s: %w", hash, err)
	}
	if err := s.db.Set(heightKey(block.Header.Height), []byte(hash)); err != nil {
		return fmt.Errorf("storage: put height index %d: %w", block.Header.Height, err)
	}
	return nil
}

func (s *BlockStore) GetBlock(hashHex string) (*types.Block, error) {
	data, err := s.db.Get(blockKey(hashHex))
	if err != nil {
		return nil, err
	}
	var b types.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("storage: decode block %s: %w", hashHex, err)
	}
	return &b, nil
}

func (s *BlockStore) GetBlockByHeight(height uint64) (*types.Block, error) {
	hash, err := s.db.Get(heightKey(height))
	if err != nil {
		return nil, err
	}
	return s.GetBlock(string(hash))
}

// GetTip returns the hash of the highest committed block, or ("", nil) on a
// fresh chain with no blocks yet.
func (s *BlockStore) GetTip() (string, error) {
	val, err := s.db.Get([]byte("chain:tip"))
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (s *BlockStore) SetTip(hashHex string) error {
	return s.db.Set([]byte("chain:tip"), []byte(hashHex))
}

func blockKey(hashHex string) []byte {
	return []byte("block:" + hashHex)
}

func heightKey(height uint64) []byte {
	return []byte("height:" + hex.EncodeToString(encodeHeight(height)))
}

func encodeHeight(h uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(h)
		h >>= 8
	}
	return b
}
