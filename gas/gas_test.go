package gas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wazervm/wazervm/gas"
	"github.com/wazervm/wazervm/vmerrors"
)

// fakeMeter is a plain in-memory stand-in for a compile-time-instrumented
// Wasm module's remaining-points counter.
type fakeMeter struct{ remaining uint64 }

func (m *fakeMeter) GetRemainingPoints() uint64       { return m.remaining }
func (m *fakeMeter) SetRemainingPoints(points uint64) { m.remaining = points }

func TestProcessGasInfoChargesExternalCost(t *testing.T) {
	state := &gas.State{GasLimit: 1000}
	meter := &fakeMeter{remaining: 1000}

	err := gas.ProcessGasInfo(state, meter, gas.WithCost(100))
	require.NoError(t, err)
	assert.EqualValues(t, 100, state.ExternallyUsedGas)
	assert.EqualValues(t, 900, meter.GetRemainingPoints())
}

func TestProcessGasInfoDepletion(t *testing.T) {
	state := &gas.State{GasLimit: 1000}
	meter := &fakeMeter{remaining: 1000}

	err := gas.ProcessGasInfo(state, meter, gas.WithCost(1500))
	assert.ErrorIs(t, err, vmerrors.GasDepletion())
	assert.EqualValues(t, 0, meter.GetRemainingPoints())
	// ExternallyUsedGas is monotonically non-decreasing and isn't itself
	// clamped to GasLimit; CreateReport's saturating formula is what
	// keeps UsedInternally from going negative.
	assert.EqualValues(t, 1500, state.ExternallyUsedGas)
}

func TestProcessGasInfoSingleCountsCostNotDouble(t *testing.T) {
	// cost=700 against limit=1000 is comfortably inside budget; a
	// double-count of Cost+ExternallyUsed (both 700 via WithCost) would
	// wrongly see 1400 > 1000 and report depletion.
	state := &gas.State{GasLimit: 1000}
	meter := &fakeMeter{remaining: 1000}

	err := gas.ProcessGasInfo(state, meter, gas.WithCost(700))
	require.NoError(t, err)
	assert.EqualValues(t, 300, meter.GetRemainingPoints())
	assert.EqualValues(t, 700, state.ExternallyUsedGas)
}

func TestProcessGasInfoTracksInternalMeterDownward(t *testing.T) {
	// Internal meter already spent some gas on Wasm execution before this
	// import runs; an external charge must still clamp it.
	state := &gas.State{GasLimit: 1000}
	meter := &fakeMeter{remaining: 950} // 50 already spent internally

	err := gas.ProcessGasInfo(state, meter, gas.WithCost(100))
	require.NoError(t, err)
	// new_limit = 1000 - 100 = 900, min(950, 900) = 900
	assert.EqualValues(t, 900, meter.GetRemainingPoints())
}

func TestCreateReportSaturatingFormula(t *testing.T) {
	state := gas.State{GasLimit: 1000, ExternallyUsedGas: 200}
	report := gas.CreateReport(state, 500)

	assert.Equal(t, gas.Report{
		Limit:          1000,
		Remaining:      500,
		UsedExternally: 200,
		UsedInternally: 300,
	}, report)
}

func TestCreateReportSaturatesAtZeroWhenExternalExceedsLimit(t *testing.T) {
	state := gas.State{GasLimit: 1000, ExternallyUsedGas: 1200}
	report := gas.CreateReport(state, 0)

	assert.EqualValues(t, 0, report.UsedInternally)
}

func TestGasConservationInvariant(t *testing.T) {
	// used_externally + used_internally + remaining == limit
	const limit = 700_000_000_000
	state := &gas.State{GasLimit: limit}
	meter := &fakeMeter{remaining: limit}

	require.NoError(t, gas.ProcessGasInfo(state, meter, gas.WithCost(73)))
	meter.SetRemainingPoints(meter.GetRemainingPoints() - 5_775_750_198)

	report := gas.CreateReport(*state, meter.GetRemainingPoints())
	assert.Equal(t, uint64(limit), report.UsedExternally+report.UsedInternally+report.Remaining)
}
