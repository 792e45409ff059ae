package types

import "fmt"

// MethodVisibility marks whether a service method is reachable from an
// external (user-submitted) transaction or only from internal dispatch
// (another service's cross-call, or end-of-block hooks).
type MethodVisibility string

const (
	MethodUser     MethodVisibility = "User"
	MethodInternal MethodVisibility = "Internal"
)

// ServiceManifest describes one deployed service: its ABI, the state schema
// it owns, the runtime it executes under, and which methods/system prefixes
// it may touch. The execution dispatcher and the namespacing guard both
// consult this manifest on every call.
type ServiceManifest struct {
	ID                    string                      `json:"id"`
	ABIVersion            uint32                      `json:"abi_version"`
	StateSchema           string                      `json:"state_schema"`
	Runtime               string                      `json:"runtime"`
	Capabilities          []string                    `json:"capabilities"`
	Methods               map[string]MethodVisibility `json:"methods"`
	AllowedSystemPrefixes []string                    `json:"allowed_system_prefixes,omitempty"`
}

// MethodVisible reports whether method exists on the manifest and, if
// external is true, that it is additionally marked User-visible.
func (m *ServiceManifest) MethodVisible(method string, external bool) error {
	vis, ok := m.Methods[method]
	if !ok {
		return fmt.Errorf("service %s: unknown method %q", m.ID, method)
	}
	if external && vis != MethodUser {
		return fmt.Errorf("service %s: method %q is internal, not reachable from an external transaction", m.ID, method)
	}
	return nil
}

// CanWriteSystemPrefix reports whether key is covered by one of the
// manifest's declared allowed_system_prefixes.
func (m *ServiceManifest) CanWriteSystemPrefix(key string) bool {
	for _, p := range m.AllowedSystemPrefixes {
		if len(key) >= len(p) && key[:len(p)] == p {
			return true
		}
	}
	return false
}
