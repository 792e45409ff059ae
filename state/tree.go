package state

import (
	"bytes"
	"fmt"
)

// Op is one mutation in a BatchApply call.
type Op struct {
	Delete bool
	Key    []byte
	Value  []byte // ignored when Delete is true
}

// Tree is a single working copy of the state tree: a root plus the backing
// NodeStore it lazily loads unmodified subtrees from. A Tree is not safe
// for concurrent mutation; execution.Machine serializes block application
// and hands out read-only Get calls to services during a block.
type Tree struct {
	store   NodeStore
	root    *Node // nil means an empty tree
	version uint64
}

// NewTree returns an empty tree at version 0, backed by store.
func NewTree(store NodeStore) *Tree {
	return &Tree{store: store}
}

// LoadAt reconstructs the tree rooted at rootHash, as committed at version.
// An all-zero rootHash denotes the empty tree.
func LoadAt(store NodeStore, rootHash [32]byte, version uint64) (*Tree, error) {
	t := &Tree{store: store, version: version}
	if rootHash == ([32]byte{}) {
		return t, nil
	}
	n, err := store.GetNode(rootHash)
	if err != nil {
		return nil, fmt.Errorf("state: load root %x: %w", rootHash, err)
	}
	t.root = n
	return t, nil
}

// RootHash returns the tree's current root hash, or the zero hash if empty.
func (t *Tree) RootHash() [32]byte {
	if t.root == nil {
		return [32]byte{}
	}
	return t.root.Hash()
}

func (t *Tree) Version() uint64 { return t.version }

// resolve returns n's child, loading it from the store if the in-memory
// pointer hasn't been materialized yet.
func (t *Tree) resolveLeft(n *Node) (*Node, error)  { return t.resolveChild(n.LeftNode, n.Left) }
func (t *Tree) resolveRight(n *Node) (*Node, error) { return t.resolveChild(n.RightNode, n.Right) }

func (t *Tree) resolveChild(ptr *Node, hash [32]byte) (*Node, error) {
	if ptr != nil {
		return ptr, nil
	}
	n, err := t.store.GetNode(hash)
	if err != nil {
		return nil, fmt.Errorf("state: load child %x: %w", hash, err)
	}
	return n, nil
}

// Get looks up key in the current working tree.
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	n := t.root
	for n != nil {
		if n.IsLeaf {
			if bytes.Equal(n.Key, key) {
				return n.Value, true, nil
			}
			return nil, false, nil
		}
		var err error
		if bytes.Compare(key, n.SplitKey) < 0 {
			n, err = t.resolveLeft(n)
		} else {
			n, err = t.resolveRight(n)
		}
		if err != nil {
			return nil, false, err
		}
	}
	return nil, false, nil
}

// Insert sets key to value, replacing any existing value.
func (t *Tree) Insert(key, value []byte) error {
	newRoot, err := t.insert(t.root, key, value, t.version+1)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Tree) insert(n *Node, key, value []byte, version uint64) (*Node, error) {
	if n == nil {
		return newLeaf(key, value, version), nil
	}
	if n.IsLeaf {
		cmp := bytes.Compare(key, n.Key)
		switch {
		case cmp == 0:
			return newLeaf(key, value, version), nil
		case cmp < 0:
			return newInner(newLeaf(key, value, version), n, version), nil
		default:
			return newInner(n, newLeaf(key, value, version), version), nil
		}
	}
	left, err := t.resolveLeft(n)
	if err != nil {
		return nil, err
	}
	right, err := t.resolveRight(n)
	if err != nil {
		return nil, err
	}
	if bytes.Compare(key, n.SplitKey) < 0 {
		newLeft, err := t.insert(left, key, value, version)
		if err != nil {
			return nil, err
		}
		return newInner(newLeft, right, version), nil
	}
	newRight, err := t.insert(right, key, value, version)
	if err != nil {
		return nil, err
	}
	return newInner(left, newRight, version), nil
}

// Delete removes key, reporting whether it was present.
func (t *Tree) Delete(key []byte) (bool, error) {
	newRoot, removed, err := t.delete(t.root, key, t.version+1)
	if err != nil {
		return false, err
	}
	if removed {
		t.root = newRoot
	}
	return removed, nil
}

func (t *Tree) delete(n *Node, key []byte, version uint64) (*Node, bool, error) {
	if n == nil {
		return nil, false, nil
	}
	if n.IsLeaf {
		if bytes.Equal(n.Key, key) {
			return nil, true, nil
		}
		return n, false, nil
	}
	left, err := t.resolveLeft(n)
	if err != nil {
		return nil, false, err
	}
	right, err := t.resolveRight(n)
	if err != nil {
		return nil, false, err
	}
	if bytes.Compare(key, n.SplitKey) < 0 {
		newLeft, removed, err := t.delete(left, key, version)
		if err != nil || !removed {
			return n, removed, err
		}
		if newLeft == nil {
			return right, true, nil
		}
		return newInner(newLeft, right, version), true, nil
	}
	newRight, removed, err := t.delete(right, key, version)
	if err != nil || !removed {
		return n, removed, err
	}
	if newRight == nil {
		return left, true, nil
	}
	return newInner(left, newRight, version), true, nil
}

// PrefixScan returns every (key, value) pair whose key has the given
// prefix, in ascending key order. It is a full in-order walk filtered by
// prefix; callers needing this on a hot path should keep prefixes narrow.
func (t *Tree) PrefixScan(prefix []byte) ([][2][]byte, error) {
	var out [][2][]byte
	err := t.walk(t.root, func(k, v []byte) bool {
		if bytes.HasPrefix(k, prefix) {
			out = append(out, [2][]byte{k, v})
		}
		return true
	})
	return out, err
}

func (t *Tree) walk(n *Node, visit func(k, v []byte) bool) error {
	if n == nil {
		return nil
	}
	if n.IsLeaf {
		visit(n.Key, n.Value)
		return nil
	}
	left, err := t.resolveLeft(n)
	if err != nil {
		return err
	}
	if err := t.walk(left, visit); err != nil {
		return err
	}
	right, err := t.resolveRight(n)
	if err != nil {
		return err
	}
	return t.walk(right, visit)
}

// BatchApply applies ops in order against the working tree, atomically with
// respect to observers (no reader sees a partial batch since all reads go
// through Tree methods called only between blocks or by the single
// execution goroutine).
func (t *Tree) BatchApply(ops []Op) error {
	for _, op := range ops {
		if op.Delete {
			if _, err := t.Delete(op.Key); err != nil {
				return err
			}
			continue
		}
		if err := t.Insert(op.Key, op.Value); err != nil {
			return err
		}
	}
	return nil
}

// CommitVersion persists every node reachable from the current root,
// advances the version counter, and returns the new root hash. Writes are
// content-addressed and idempotent: a node whose children were never
// materialized in memory (loaded from the store and left untouched since)
// is written again with identical content rather than re-derived, which is
// correct but not free — a future pass could skip it given a has(hash)
// check on the backend.
func (t *Tree) CommitVersion() ([32]byte, uint64, error) {
	if t.root != nil {
		if err := t.persist(t.root); err != nil {
			return [32]byte{}, 0, err
		}
	}
	t.version++
	return t.RootHash(), t.version, nil
}

func (t *Tree) persist(n *Node) error {
	if n.IsLeaf {
		return t.store.PutNode(n)
	}
	if n.LeftNode != nil {
		if err := t.persist(n.LeftNode); err != nil {
			return err
		}
	}
	if n.RightNode != nil {
		if err := t.persist(n.RightNode); err != nil {
			return err
		}
	}
	return t.store.PutNode(n)
}
