// Package gas implements a dual gas model: an internally-metered Wasm
// budget (tracked by a Meter, charged by bytecode instrumentation) and
// an externally-metered host-work budget, charged by host imports for
// work the bytecode can't see.
package gas

import "github.com/wazervm/wazervm/vmerrors"

// State is the combined accounting record for one instance's lifetime.
// ExternallyUsedGas is monotonically non-decreasing for the life of an
// instance.
type State struct {
	GasLimit          uint64
	ExternallyUsedGas uint64
}

// Report is a snapshot of gas accounting.
type Report struct {
	Limit          uint64
	Remaining      uint64
	UsedExternally uint64
	UsedInternally uint64
}

// Meter abstracts the embedder-exposed internal gas counter that
// compile-time bytecode instrumentation would charge against: get/set
// the remaining points.
type Meter interface {
	GetRemainingPoints() uint64
	SetRemainingPoints(points uint64)
}

// Info is the cost an import reports for the work it performed: a
// total Cost and the ExternallyUsed portion of it that must also be
// folded into the host-tracked accumulator.
type Info struct {
	// Cost is the total cost of the operation, as far as the guest's
	// observable internal budget is concerned.
	Cost uint64
	// ExternallyUsed is the portion of Cost that must also be recorded in
	// the host-tracked externally_used_gas accumulator.
	ExternallyUsed uint64
}

// WithCost builds an Info where the entire cost is externally metered
// (the common case for host imports: db ops, crypto, queries).
func WithCost(cost uint64) Info {
	return Info{Cost: cost, ExternallyUsed: cost}
}

// Free is the zero-cost Info, for operations that charge nothing (e.g. an
// iterator step past its last entry).
func Free() Info {
	return Info{}
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// ProcessGasInfo applies the charge protocol: the meter's current
// remaining points are read, info's externally-used cost is folded into
// state.ExternallyUsedGas, and the meter's remaining points are clamped
// down to whatever the external accounting leaves available so the
// guest's observable budget always tracks the external charge. Returns
// a GasDepletion VmError if externally_used_so_far + info.Cost would
// exceed state.GasLimit, a single count against the one gas_limit (info
// already folds external cost into Cost via WithCost; counting both
// would charge the same work twice).
func ProcessGasInfo(state *State, meter Meter, info Info) error {
	gasLeft := meter.GetRemainingPoints()
	usedSoFar := state.ExternallyUsedGas
	depleted := usedSoFar+info.Cost > state.GasLimit

	state.ExternallyUsedGas += info.ExternallyUsed
	newLimit := saturatingSub(state.GasLimit, state.ExternallyUsedGas)
	meter.SetRemainingPoints(minU64(gasLeft, newLimit))

	if depleted {
		meter.SetRemainingPoints(0)
		return vmerrors.GasDepletion()
	}
	return nil
}

// CreateReport snapshots the combined internal/external gas accounting
// using the saturating formula:
// used_internally = gas_limit.saturating_sub(externally_used_gas).saturating_sub(remaining).
func CreateReport(state State, gasLeft uint64) Report {
	usedInternally := saturatingSub(saturatingSub(state.GasLimit, state.ExternallyUsedGas), gasLeft)
	return Report{
		Limit:          state.GasLimit,
		Remaining:      gasLeft,
		UsedExternally: state.ExternallyUsedGas,
		UsedInternally: usedInternally,
	}
}
