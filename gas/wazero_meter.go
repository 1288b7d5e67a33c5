package gas

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/wazervm/wazervm/vmerrors"
)

// perCallCost is the flat internal-gas charge applied at every guest
// function-call boundary observed through WazeroMeter.
//
// wazero does not inject per-instruction gas accounting into compiled
// bytecode the way a metering-middleware-wrapped engine would. The
// closest equivalent available through wazero's public extensibility
// surface is experimental.FunctionListenerFactory, which fires at
// every guest function call. Charging a flat cost per call approximates
// compile-time instrumentation rather than true per-instruction
// metering, but it keeps GasDepletion a real, observable consequence
// of guest execution instead of a no-op.
const perCallCost uint64 = 1

// WazeroMeter implements Meter by keeping the embedder-exposed "remaining
// points" counter in an atomic uint64, decremented once per guest
// function-call boundary via the wazero experimental listener hook.
type WazeroMeter struct {
	remaining atomic.Uint64
}

// NewWazeroMeter creates a meter with its remaining points set to limit.
func NewWazeroMeter(limit uint64) *WazeroMeter {
	m := &WazeroMeter{}
	m.remaining.Store(limit)
	return m
}

func (m *WazeroMeter) GetRemainingPoints() uint64 { return m.remaining.Load() }

func (m *WazeroMeter) SetRemainingPoints(points uint64) { m.remaining.Store(points) }

// WithListener attaches this meter as a wazero function-call listener
// factory on ctx, so every guest function invocation charges
// perCallCost. Pass the returned context to wazero's InstantiateModule
// (or RuntimeConfig, depending on wiring needs).
func (m *WazeroMeter) WithListener(ctx context.Context) context.Context {
	return experimental.WithFunctionListenerFactory(ctx, meterListenerFactory{m})
}

type meterListenerFactory struct{ m *WazeroMeter }

func (f meterListenerFactory) NewListener(api.FunctionDefinition) experimental.FunctionListener {
	return meterListener{f.m}
}

type meterListener struct{ m *WazeroMeter }

// Before charges perCallCost for the call about to happen. A call
// observed with zero remaining points means the budget was already
// exhausted by an earlier charge; it traps the guest immediately
// rather than letting execution continue unmetered.
func (l meterListener) Before(ctx context.Context, _ api.Module, _ api.FunctionDefinition, _ []uint64, _ experimental.StackIterator) context.Context {
	cur := l.m.remaining.Load()
	if cur == 0 {
		panic(vmerrors.GasDepletion())
	}
	next := cur - perCallCost
	if cur < perCallCost {
		next = 0
	}
	l.m.remaining.Store(next)
	return ctx
}

func (l meterListener) After(context.Context, api.Module, api.FunctionDefinition, []uint64) {}

func (l meterListener) Abort(context.Context, api.Module, api.FunctionDefinition, error) {}
