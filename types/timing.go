package types

// BlockTimingParams are the governance-set inputs to the block-interval
// retarget loop (spec §4.2/§8 adaptive-timing scenario).
type BlockTimingParams struct {
	TargetGasPerBlock uint64 `json:"target_gas_per_block"`
	MinIntervalSecs   uint32 `json:"min_interval_secs"`
	MaxIntervalSecs   uint32 `json:"max_interval_secs"`
	EMAAlphaMilli     uint32 `json:"ema_alpha_milli"`    // alpha = EMAAlphaMilli/1000
	IntervalStepBps   uint32 `json:"interval_step_bps"`  // max per-retarget change, basis points
	RetargetEveryN    uint64 `json:"retarget_every_blocks"`
}

// BlockTimingRuntime is the mutable EMA state carried block to block.
type BlockTimingRuntime struct {
	EMAGasUsed            uint64 `json:"ema_gas_used"`
	EffectiveIntervalSecs uint32 `json:"effective_interval_secs"`
	LastRetargetHeight    uint64 `json:"last_retarget_height"`
}

// Observe folds one block's gas usage into the EMA: ema' = ema + alpha*(gas
// - ema), alpha expressed in milli-units to stay integer-exact.
func (r *BlockTimingRuntime) Observe(gasUsed uint64, p *BlockTimingParams) {
	diff := int64(gasUsed) - int64(r.EMAGasUsed)
	delta := diff * int64(p.EMAAlphaMilli) / 1000
	next := int64(r.EMAGasUsed) + delta
	if next < 0 {
		next = 0
	}
	r.EMAGasUsed = uint64(next)
}

// MaybeRetarget applies at most one bounded interval adjustment every
// RetargetEveryN blocks, moving EffectiveIntervalSecs toward the interval
// implied by EMAGasUsed vs TargetGasPerBlock, clamped to
// [MinIntervalSecs, MaxIntervalSecs] and to a step of at most
// IntervalStepBps basis points of the current interval.
func (r *BlockTimingRuntime) MaybeRetarget(height uint64, p *BlockTimingParams) bool {
	if p.RetargetEveryN == 0 || height-r.LastRetargetHeight < p.RetargetEveryN {
		return false
	}
	r.LastRetargetHeight = height

	cur := int64(r.EffectiveIntervalSecs)
	if cur == 0 {
		cur = int64(p.MinIntervalSecs)
	}
	target := cur
	if p.TargetGasPerBlock > 0 {
		// Busier than target -> shorten the interval; idle -> lengthen it.
		if r.EMAGasUsed == 0 {
			target = int64(p.MaxIntervalSecs)
		} else {
			target = cur * int64(p.TargetGasPerBlock) / int64(r.EMAGasUsed)
		}
	}

	maxStep := cur * int64(p.IntervalStepBps) / 10000
	if maxStep < 1 {
		maxStep = 1
	}
	switch {
	case target > cur+maxStep:
		cur += maxStep
	case target < cur-maxStep:
		cur -= maxStep
	default:
		cur = target
	}

	if cur < int64(p.MinIntervalSecs) {
		cur = int64(p.MinIntervalSecs)
	}
	if cur > int64(p.MaxIntervalSecs) {
		cur = int64(p.MaxIntervalSecs)
	}
	r.EffectiveIntervalSecs = uint32(cur)
	return true
}
