package execution

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ioi-foundation/kernel/state"
	"github.com/ioi-foundation/kernel/types"
)

// Handler is one deployed service's executable surface. Execute dispatches
// a single method call; EndBlock (optional via the OptionalEndBlock
// interface) runs once per block after every transaction has executed.
type Handler interface {
	Manifest() *types.ServiceManifest
	Execute(store *NamespacedStore, method string, payload []byte) ([]byte, error)
}

// EndBlockHandler is implemented by services that need to run logic once
// per block regardless of whether any transaction targeted them — staking
// reward distribution, timing retarget, validator promotion.
type EndBlockHandler interface {
	EndBlock(store *NamespacedStore, height, gasUsed uint64) error
}

// Registry holds every deployed service's Handler and manifest, keyed by
// service id. It is the execution-time counterpart of the teacher's
// vm.Registry, generalized from a fixed VM opcode table to an arbitrary
// number of independently versioned services.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register deploys a service. Re-registering an id replaces the previous
// handler, the same semantics as a service upgrade.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Manifest().ID] = h
}

func (r *Registry) Lookup(serviceID string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[serviceID]
	if !ok {
		return nil, fmt.Errorf("execution: no service registered with id %q", serviceID)
	}
	return h, nil
}

// All returns every registered handler sorted by service id, used by
// EndBlock to sweep the full set of deployed services in a deterministic
// order.
func (r *Registry) All() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest().ID < out[j].Manifest().ID })
	return out
}

// Dispatch looks up serviceID, checks method visibility against external and
// its ABI version against any recorded ActiveServiceMeta, and invokes it
// against a namespaced view of tree.
func (r *Registry) Dispatch(tree *state.Tree, serviceID, method string, payload []byte, external bool) ([]byte, error) {
	h, err := r.Lookup(serviceID)
	if err != nil {
		return nil, err
	}
	manifest := h.Manifest()
	if err := checkActiveVersion(tree, manifest); err != nil {
		return nil, err
	}
	if err := manifest.MethodVisible(method, external); err != nil {
		return nil, fmt.Errorf("execution: %w", err)
	}
	store := NewNamespacedStore(tree, manifest)
	return h.Execute(store, method, payload)
}

// checkActiveVersion refuses dispatch when governance has recorded an
// ActiveServiceMeta for this service (via store_module/swap_module) whose
// ABI version doesn't match the handler actually registered in this
// binary — either the swap hasn't reached its activation height in this
// binary's favor yet, or this binary was never rebuilt with the version
// governance activated. A service with no ActiveServiceMeta at all has
// never gone through a module swap, so its compiled-in ABI is implicitly
// active, the same as before this gate existed.
func checkActiveVersion(tree *state.Tree, manifest *types.ServiceManifest) error {
	raw, ok, err := tree.Get([]byte(types.ActiveServiceKey(manifest.ID)))
	if err != nil {
		return fmt.Errorf("execution: read active service meta for %s: %w", manifest.ID, err)
	}
	if !ok {
		return nil
	}
	var meta types.ActiveServiceMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("execution: decode active service meta for %s: %w", manifest.ID, err)
	}
	if meta.ABIVersion != manifest.ABIVersion {
		return fmt.Errorf("execution: service %s: governance activated ABI version %d, this binary registers version %d", manifest.ID, meta.ABIVersion, manifest.ABIVersion)
	}
	return nil
}
