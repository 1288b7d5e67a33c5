// Package memory implements the bounds-checked bridge to guest linear
// memory. It never grows memory itself — growth only happens inside
// the guest, triggered by its own allocator.
package memory

import "github.com/wazervm/wazervm/vmerrors"

// GuestMemory is the minimal surface the bridge needs from a guest's
// linear memory. wazero's api.Memory satisfies this interface directly
// (Read, Write and Size have the same shapes), so no adapter is needed
// when wiring against a real wazero-backed instance; test code can supply
// a trivial fake.
type GuestMemory interface {
	// Read returns byteCount bytes starting at offset, or false if the
	// span falls outside the current memory size.
	Read(offset, byteCount uint32) ([]byte, bool)
	// Write copies v into memory starting at offset, or returns false if
	// the span falls outside the current memory size.
	Write(offset uint32, v []byte) bool
	// Size returns the current memory size in bytes.
	Size() uint32
}

// Read copies byteCount bytes starting at offset out of guest memory,
// translating an out-of-range access into a CommunicationError.
func Read(mem GuestMemory, offset, byteCount uint32) ([]byte, error) {
	buf, ok := mem.Read(offset, byteCount)
	if !ok {
		return nil, vmerrors.RegionOutOfRange(offset, byteCount)
	}
	// mem.Read may return a view into the memory's backing array; copy it
	// out so callers can hold on to it past the next guest call.
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// Write copies data into guest memory starting at offset, translating an
// out-of-range access into a CommunicationError.
func Write(mem GuestMemory, offset uint32, data []byte) error {
	if !mem.Write(offset, data) {
		return vmerrors.RegionOutOfRange(offset, uint32(len(data)))
	}
	return nil
}

// InBounds reports whether the span [offset, offset+length) lies within
// the current memory size, without performing a copy.
func InBounds(mem GuestMemory, offset, length uint32) bool {
	end := uint64(offset) + uint64(length)
	return end <= uint64(mem.Size())
}
