package environment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wazervm/wazervm/backend"
	"github.com/wazervm/wazervm/environment"
	"github.com/wazervm/wazervm/gas"
	"github.com/wazervm/wazervm/vmerrors"
)

type fakeMeter struct{ remaining uint64 }

func (m *fakeMeter) GetRemainingPoints() uint64       { return m.remaining }
func (m *fakeMeter) SetRemainingPoints(points uint64) { m.remaining = points }

type fakeApi struct{}

func (fakeApi) ValidateAddress(string) (gas.Info, error)             { return gas.Free(), nil }
func (fakeApi) CanonicalizeAddress(string) ([]byte, gas.Info, error) { return nil, gas.Free(), nil }
func (fakeApi) HumanizeAddress([]byte) (string, gas.Info, error)     { return "", gas.Free(), nil }

type fakeStorage struct{}

func (fakeStorage) Get([]byte) ([]byte, gas.Info, error) { return nil, gas.Free(), nil }
func (fakeStorage) Set([]byte, []byte) (gas.Info, error) { return gas.Free(), nil }
func (fakeStorage) Remove([]byte) (gas.Info, error)      { return gas.Free(), nil }
func (fakeStorage) Scan([]byte, []byte, backend.Order) (backend.Iterator, gas.Info, error) {
	return nil, gas.Free(), nil
}

type fakeQuerier struct{}

func (fakeQuerier) Query([]byte, uint64) (backend.QueryResult, gas.Info, error) {
	return backend.QueryResult{}, gas.Free(), nil
}

type fakeIterator struct{ done bool }

func (it *fakeIterator) Next() (*backend.KVPair, gas.Info, error) {
	if it.done {
		return nil, gas.Free(), nil
	}
	it.done = true
	return &backend.KVPair{Key: []byte("a"), Value: []byte("1")}, gas.Free(), nil
}

func newTestEnv(limit uint64) *environment.Environment {
	b := backend.Backend{Api: fakeApi{}, Storage: fakeStorage{}, Querier: fakeQuerier{}}
	return environment.New(b, &fakeMeter{remaining: limit}, limit, false, nil)
}

func TestWithStorageUninitializedAfterRecycle(t *testing.T) {
	env := newTestEnv(1000)
	_, ok := env.Recycle()
	require.True(t, ok)

	err := env.WithStorage(func(backend.Storage) error { return nil })
	assert.ErrorIs(t, err, vmerrors.UninitializedContextData(""))
}

func TestRecycleOnlySucceedsOnce(t *testing.T) {
	env := newTestEnv(1000)
	_, ok := env.Recycle()
	assert.True(t, ok)
	_, ok = env.Recycle()
	assert.False(t, ok)
}

func TestReadonlyFlagDefaultsFalse(t *testing.T) {
	env := newTestEnv(1000)
	assert.False(t, env.IsStorageReadonly())
	env.SetStorageReadonly(true)
	assert.True(t, env.IsStorageReadonly())
}

func TestProcessGasInfoDepletes(t *testing.T) {
	env := newTestEnv(100)
	err := env.ProcessGasInfo(gas.WithCost(150))
	assert.ErrorIs(t, err, vmerrors.GasDepletion())
	assert.EqualValues(t, 150, env.GasState().ExternallyUsedGas)
}

func TestIteratorsClearedBetweenCalls(t *testing.T) {
	env := newTestEnv(1000)
	id := env.RegisterIterator(&fakeIterator{})

	_, ok := env.Iterator(id)
	assert.True(t, ok)

	env.ClearIterators()
	_, ok = env.Iterator(id)
	assert.False(t, ok)
}

func TestAllocateWithoutAllocatorErrors(t *testing.T) {
	env := newTestEnv(1000)
	_, err := env.Allocate(16)
	assert.Error(t, err)
}

func TestLastErrorRoundTrips(t *testing.T) {
	env := newTestEnv(1000)
	assert.Nil(t, env.LastError())
	env.SetLastError(vmerrors.RuntimeErr("boom"))
	assert.ErrorIs(t, env.LastError(), vmerrors.RuntimeErr(""))
}
