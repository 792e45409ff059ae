// Package execution hosts the block-application state machine: namespaced
// state access, service dispatch, and the per-transaction decorator chain
// that validates before execution and writes after it.
package execution

import (
	"fmt"

	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/types"
)

// NamespacedStore confines a service's reads and writes to its own
// _service_data::{id}:: prefix, plus whatever core (non-_service_data::)
// prefixes its manifest explicitly allows via AllowedSystemPrefixes — not
// only system::, but any core protocol key a trusted built-in service
// needs (settlement's balance::, identity's system::validators::). Any
// attempt to touch a raw _service_data:: key outside a service's own
// namespace, or a core key not on the allow-list, is rejected with
// PermissionDenied — there is no escape hatch.
type NamespacedStore struct {
	tree     *state.Tree
	manifest *types.ServiceManifest
}

func NewNamespacedStore(tree *state.Tree, manifest *types.ServiceManifest) *NamespacedStore {
	return &NamespacedStore{tree: tree, manifest: manifest}
}

// ErrPermissionDenied is returned for any key access outside a service's
// namespace or allowed system prefixes.
var ErrPermissionDenied = fmt.Errorf("execution: permission denied")

func (n *NamespacedStore) checkKey(key string) error {
	if types.IsRawServiceDataKey(key) {
		owned := types.ServiceNamespacePrefix(n.manifest.ID)
		if len(key) >= len(owned) && key[:len(owned)] == owned {
			return nil
		}
		return fmt.Errorf("%w: %s may not touch raw service-data key %q", ErrPermissionDenied, n.manifest.ID, key)
	}
	// Every other key is a core protocol key (system::, balance::,
	// account_nonce::, ...); access requires an explicit manifest grant.
	if n.manifest.CanWriteSystemPrefix(key) {
		return nil
	}
	return fmt.Errorf("%w: %s may not touch core key %q", ErrPermissionDenied, n.manifest.ID, key)
}

// Own namespaces key under this service's _service_data:: prefix, the form
// a service should use for all of its own straightforward key-value state.
func (n *NamespacedStore) Own(localKey string) string {
	return types.ServiceNamespacePrefix(n.manifest.ID) + localKey
}

func (n *NamespacedStore) Get(key string) ([]byte, bool, error) {
	if err := n.checkKey(key); err != nil {
		return nil, false, err
	}
	return n.tree.Get([]byte(key))
}

func (n *NamespacedStore) Set(key string, value []byte) error {
	if err := n.checkKey(key); err != nil {
		return err
	}
	return n.tree.Insert([]byte(key), value)
}

func (n *NamespacedStore) Delete(key string) error {
	if err := n.checkKey(key); err != nil {
		return err
	}
	_, err := n.tree.Delete([]byte(key))
	return err
}

// PrefixScan lists every key under this service's own namespace prefix
// joined with localPrefix.
func (n *NamespacedStore) PrefixScan(localPrefix string) ([][2][]byte, error) {
	return n.tree.PrefixScan([]byte(n.Own(localPrefix)))
}
