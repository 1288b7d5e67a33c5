package region_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wazervm/wazervm/region"
	"github.com/wazervm/wazervm/vmerrors"
)

// fakeMemory is a minimal in-process stand-in for a guest's linear memory,
// satisfying memory.GuestMemory without needing a real Wasm engine.
type fakeMemory struct {
	buf []byte
}

func newFakeMemory(size int) *fakeMemory {
	return &fakeMemory{buf: make([]byte, size)}
}

func (m *fakeMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset:end], true
}

func (m *fakeMemory) Write(offset uint32, v []byte) bool {
	end := uint64(offset) + uint64(len(v))
	if end > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:end], v)
	return true
}

func (m *fakeMemory) Size() uint32 { return uint32(len(m.buf)) }

func putRegion(m *fakeMemory, ptr uint32, r region.Region) {
	raw := make([]byte, 12)
	binary.LittleEndian.PutUint32(raw[0:4], r.Offset)
	binary.LittleEndian.PutUint32(raw[4:8], r.Capacity)
	binary.LittleEndian.PutUint32(raw[8:12], r.Length)
	ok := m.Write(ptr, raw)
	if !ok {
		panic("setup: region descriptor out of bounds")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	mem := newFakeMemory(1024)
	putRegion(mem, 0, region.Region{Offset: 100, Capacity: 50, Length: 10})

	r, err := region.Load(mem, 0)
	require.NoError(t, err)
	assert.Equal(t, region.Region{Offset: 100, Capacity: 50, Length: 10}, r)
}

func TestReadRegionOk(t *testing.T) {
	mem := newFakeMemory(1024)
	payload := []byte("hello")
	mem.Write(100, payload)
	putRegion(mem, 0, region.Region{Offset: 100, Capacity: 50, Length: uint32(len(payload))})

	got, err := region.Read(mem, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadRegionLengthTooBig(t *testing.T) {
	mem := newFakeMemory(1024)
	putRegion(mem, 0, region.Region{Offset: 100, Capacity: 50, Length: 10})

	_, err := region.Read(mem, 0, 5)
	assert.ErrorIs(t, err, vmerrors.RegionLengthTooBig(0, 0))
}

func TestReadRegionOutOfRange(t *testing.T) {
	mem := newFakeMemory(128)
	// offset+capacity exceeds memory size.
	putRegion(mem, 0, region.Region{Offset: 100, Capacity: 50, Length: 10})

	_, err := region.Read(mem, 0, 100)
	assert.ErrorIs(t, err, vmerrors.RegionOutOfRange(0, 0))
}

func TestWriteRegionOk(t *testing.T) {
	mem := newFakeMemory(1024)
	putRegion(mem, 0, region.Region{Offset: 200, Capacity: 20, Length: 0})

	require.NoError(t, region.Write(mem, 0, []byte("abc")))

	r, err := region.Load(mem, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, r.Length)

	got, ok := mem.Read(200, 3)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), got)
}

func TestWriteRegionTooSmall(t *testing.T) {
	mem := newFakeMemory(1024)
	putRegion(mem, 0, region.Region{Offset: 200, Capacity: 2, Length: 0})

	err := region.Write(mem, 0, []byte("abc"))
	assert.ErrorIs(t, err, vmerrors.RegionTooSmall(0, 0))
}

func TestEmptyPayloadHasZeroLength(t *testing.T) {
	mem := newFakeMemory(1024)
	putRegion(mem, 0, region.Region{Offset: 200, Capacity: 20, Length: 0})

	got, err := region.Read(mem, 0, 20)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// fakeAllocator exercises Allocate/Deallocate without a real guest export.
type fakeAllocator struct {
	allocateReturn uint64
	calls          []string
}

func (a *fakeAllocator) CallFunction1(name string, args ...uint64) (uint64, error) {
	a.calls = append(a.calls, name)
	return a.allocateReturn, nil
}

func (a *fakeAllocator) CallFunction0(name string, args ...uint64) error {
	a.calls = append(a.calls, name)
	return nil
}

func TestAllocateZeroAddressIsProtocolViolation(t *testing.T) {
	a := &fakeAllocator{allocateReturn: 0}
	_, err := region.Allocate(a, 16)
	assert.ErrorIs(t, err, vmerrors.ZeroAddress())
}

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	a := &fakeAllocator{allocateReturn: 4096}
	ptr, err := region.Allocate(a, 16)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, ptr)

	require.NoError(t, region.Deallocate(a, ptr))
	assert.Equal(t, []string{"allocate", "deallocate"}, a.calls)
}
