package types

// Validator is one member of the weighted validator set.
type Validator struct {
	AccountID AccountId `json:"account_id"`
	PubKeyHex string    `json:"pub_key_hex"`
	Weight    uint64    `json:"weight"`
}

// PendingValidatorSet describes a validator set that will become current at
// a future height.
type PendingValidatorSet struct {
	EffectiveFromHeight uint64      `json:"effective_from_height"`
	Validators          []Validator `json:"validators"`
	TotalWeight         uint64      `json:"total_weight"`
}

// ValidatorSetsV1 is the canonical-encoded value stored under
// system::validators::current.
type ValidatorSetsV1 struct {
	Current []Validator           `json:"current"`
	Next    *PendingValidatorSet  `json:"next,omitempty"`
}

// TotalWeight sums the weight of the current validator set.
func (v *ValidatorSetsV1) TotalWeight() uint64 {
	var total uint64
	for _, val := range v.Current {
		total += val.Weight
	}
	return total
}

// LeaderForView deterministically selects the leader validator for a given
// (height, view) pair using plain round robin over validator index, offset
// by view to rotate on timeout. Validator weights do not affect the choice.
func (v *ValidatorSetsV1) LeaderForView(height uint64, view uint64) (Validator, bool) {
	n := len(v.Current)
	if n == 0 {
		return Validator{}, false
	}
	idx := int((height + view) % uint64(n))
	return v.Current[idx], true
}

// PromoteIfDue swaps Next into Current when Next.EffectiveFromHeight <= h,
// returning true if a promotion occurred. Matches spec §4.2/§8 end-of-block
// validator promotion semantics.
func (v *ValidatorSetsV1) PromoteIfDue(h uint64) bool {
	if v.Next == nil || v.Next.EffectiveFromHeight > h {
		return false
	}
	if len(v.Next.Validators) == 0 || v.Next.TotalWeight == 0 {
		// An empty or zero-weight pending set is never promoted; it is
		// simply dropped so the chain doesn't halt on bad governance input.
		v.Next = nil
		return false
	}
	v.Current = v.Next.Validators
	v.Next = nil
	return true
}
