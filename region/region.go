// Package region implements the guest/host memory-exchange convention:
// a fixed 12-byte descriptor living in guest linear memory,
// `{offset, capacity, length}`, all little-endian u32 fields.
package region

import (
	"encoding/binary"

	"github.com/wazervm/wazervm/memory"
	"github.com/wazervm/wazervm/vmerrors"
)

// wireSize is the on-the-wire byte length of a Region descriptor:
// offset(4) | capacity(4) | length(4), all little-endian.
const wireSize = 12

// Region mirrors the 12-byte guest-memory descriptor.
//
// Invariants: Length <= Capacity; Offset+Capacity lies within current
// memory; an empty payload has Length == 0. The integer 0 is never a
// valid Region address — address 0 is reserved.
type Region struct {
	Offset   uint32
	Capacity uint32
	Length   uint32
}

// Load reads the 12-byte descriptor at ptr out of guest memory. ptr == 0
// is a protocol violation everywhere except the handful of call sites
// that document pointer 0 as "absent".
func Load(mem memory.GuestMemory, ptr uint32) (Region, error) {
	raw, err := memory.Read(mem, ptr, wireSize)
	if err != nil {
		return Region{}, vmerrors.DerefErr("could not read region descriptor")
	}
	return Region{
		Offset:   binary.LittleEndian.Uint32(raw[0:4]),
		Capacity: binary.LittleEndian.Uint32(raw[4:8]),
		Length:   binary.LittleEndian.Uint32(raw[8:12]),
	}, nil
}

// Store writes the descriptor back to guest memory at ptr.
func (r Region) Store(mem memory.GuestMemory, ptr uint32) error {
	raw := make([]byte, wireSize)
	binary.LittleEndian.PutUint32(raw[0:4], r.Offset)
	binary.LittleEndian.PutUint32(raw[4:8], r.Capacity)
	binary.LittleEndian.PutUint32(raw[8:12], r.Length)
	if err := memory.Write(mem, ptr, raw); err != nil {
		return vmerrors.DerefErr("could not write region descriptor")
	}
	return nil
}

// Read loads the Region descriptor at regionPtr and copies out exactly
// Length bytes of its payload.
func Read(mem memory.GuestMemory, regionPtr uint32, maxLength uint32) ([]byte, error) {
	r, err := Load(mem, regionPtr)
	if err != nil {
		return nil, err
	}
	if r.Length > maxLength {
		return nil, vmerrors.RegionLengthTooBig(r.Length, maxLength)
	}
	if !memory.InBounds(mem, r.Offset, r.Capacity) {
		return nil, vmerrors.RegionOutOfRange(r.Offset, r.Capacity)
	}
	return memory.Read(mem, r.Offset, r.Length)
}

// Write loads the Region descriptor at regionPtr, copies data into its
// payload span, and updates Length.
func Write(mem memory.GuestMemory, regionPtr uint32, data []byte) error {
	r, err := Load(mem, regionPtr)
	if err != nil {
		return err
	}
	if uint32(len(data)) > r.Capacity {
		return vmerrors.RegionTooSmall(uint32(len(data)), r.Capacity)
	}
	if !memory.InBounds(mem, r.Offset, r.Capacity) {
		return vmerrors.RegionOutOfRange(r.Offset, r.Capacity)
	}
	if err := memory.Write(mem, r.Offset, data); err != nil {
		return err
	}
	r.Length = uint32(len(data))
	return r.Store(mem, regionPtr)
}

// Allocator invokes the guest's exported allocate/deallocate functions.
// Implemented by instance.Instance; kept as a narrow interface here so
// the region package stays free of any Wasm-engine dependency.
type Allocator interface {
	CallFunction1(name string, args ...uint64) (uint64, error)
	CallFunction0(name string, args ...uint64) error
}

// Allocate invokes the guest's `allocate(size) -> u32` export and returns
// the resulting Region pointer. A zero return is a protocol violation.
func Allocate(a Allocator, size uint32) (uint32, error) {
	ret, err := a.CallFunction1("allocate", uint64(size))
	if err != nil {
		return 0, err
	}
	ptr := uint32(ret)
	if ptr == 0 {
		return 0, vmerrors.ZeroAddress()
	}
	return ptr, nil
}

// Deallocate invokes the guest's `deallocate(ptr)` export.
func Deallocate(a Allocator, ptr uint32) error {
	return a.CallFunction0("deallocate", uint64(ptr))
}
