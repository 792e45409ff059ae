package types

import "fmt"

// Persisted state key layout (spec §6.5). Every key under the state tree is
// a plain byte string; these helpers are the single source of truth for how
// that string is built so storage, execution, and RPC never disagree about
// a key's shape.
const (
	KeyValidatorsCurrent  = "system::validators::current"
	KeyBlockTimingParams  = "system::block_timing::params"
	KeyBlockTimingRuntime = "system::block_timing::runtime"

	serviceDataPrefix = "_service_data::"
	systemPrefix      = "system::"

	// ActiveServiceKeyPrefix is the system:: prefix every ActiveServiceKey
	// falls under; governance's manifest declares it as an allowed system
	// prefix so swap_module can write activation records there.
	ActiveServiceKeyPrefix = "system::services::"
)

// AccountNonceKey returns the key an account's nonce is stored under.
func AccountNonceKey(id AccountId) string {
	return fmt.Sprintf("account_nonce::%s", id)
}

// BalanceKey returns the key an account's balance is stored under.
func BalanceKey(id AccountId) string {
	return fmt.Sprintf("balance::%s", id)
}

// ActiveServiceKey returns the key a deployed service's activation record is
// stored under.
func ActiveServiceKey(serviceID string) string {
	return ActiveServiceKeyPrefix + serviceID
}

// ActiveServiceMeta records which version of a service is live as of a given
// height — the result of governance's swap_module taking effect. A registry
// dispatch checks this against the ABI version of the handler compiled into
// the running binary before routing a call to it, so a service swap that
// hasn't reached its activation height yet (or that targets a binary that
// was never rebuilt with the new ABI) is refused rather than silently
// served by the wrong version.
type ActiveServiceMeta struct {
	ID               string   `json:"id"`
	ABIVersion       uint32   `json:"abi_version"`
	ManifestHash     [32]byte `json:"manifest_hash"`
	ArtifactHash     [32]byte `json:"artifact_hash"`
	ActivationHeight uint64   `json:"activation_height"`
}

// ServiceNamespacePrefix returns the auto-applied key prefix every write a
// service makes is confined to, unless the key instead falls under one of
// the service's allowed_system_prefixes.
func ServiceNamespacePrefix(serviceID string) string {
	return serviceDataPrefix + serviceID + "::"
}

// IsRawServiceDataKey reports whether key falls directly under the
// _service_data:: namespace without going through ServiceNamespacePrefix —
// access from a service to a raw _service_data:: key (not its own) is
// always PermissionDenied.
func IsRawServiceDataKey(key string) bool {
	return len(key) >= len(serviceDataPrefix) && key[:len(serviceDataPrefix)] == serviceDataPrefix
}

// IsSystemKey reports whether key falls under the system:: namespace.
func IsSystemKey(key string) bool {
	return len(key) >= len(systemPrefix) && key[:len(systemPrefix)] == systemPrefix
}
