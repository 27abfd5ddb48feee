// Package mem implements the emulator's flat, 24-bit guest address space.
//
// There are no page tables: an address resolves to one of a small number of physical regions by
// arithmetic comparison alone. The only access-control rule enforced here is the supervisor/user
// split described by the Human68k memory map; everything else (MCB bookkeeping, the heap
// allocator) lives a layer up in package human68k.
package mem

import (
	"errors"
	"fmt"

	"github.com/kg68k/run68x-sub000/internal/log"
)

// AddrMask restricts every address to the 24-bit bus before it is resolved; the OS personality
// is free to stash bookkeeping bits in the top byte of a 32-bit value and this package will
// silently strip them, exactly as the hardware does.
const AddrMask = 0x00ff_ffff

// HighMemoryBase is the start of the optional high-memory region.
const HighMemoryBase = 0x0100_0000

// Space is the guest's flat memory: a prefix of supervisor-only bytes, the rest of main memory,
// and an optional high-memory extension. It performs big-endian, privilege-checked access; it
// never panics; every failure mode is a returned error.
type Space struct {
	main []byte
	high []byte

	supervisorEnd uint32

	log *log.Logger
}

// New creates a memory space with mainSize bytes of main memory (supervisor-only below
// supervisorEnd) and optionally highSize bytes of high memory starting at HighMemoryBase.
func New(mainSize, highSize, supervisorEnd uint32, logger *log.Logger) *Space {
	if logger == nil {
		logger = log.DefaultLogger()
	}

	sp := &Space{
		main:          make([]byte, mainSize),
		supervisorEnd: supervisorEnd,
		log:           logger,
	}

	if highSize > 0 {
		sp.high = make([]byte, highSize)
	}

	return sp
}

// MainSize returns the size of main memory in bytes.
func (sp *Space) MainSize() uint32 { return uint32(len(sp.main)) }

// HighSize returns the size of high memory in bytes, or zero if none is configured.
func (sp *Space) HighSize() uint32 { return uint32(len(sp.high)) }

// Direction distinguishes a read access from a write access for diagnostics.
type Direction uint8

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}

	return "read"
}

// BusError is returned when an access touches an address with no backing memory, or a
// supervisor-only address from user mode.
type BusError struct {
	Addr uint32
	Dir  Direction
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus error: %s $%06x", e.Dir, e.Addr&AddrMask)
}

func (e *BusError) Is(target error) bool {
	return target == ErrBusError //nolint:errorlint
}

// AddressError is returned when an odd address is used where the bus requires word alignment
// (word/long accesses, and all instruction fetches).
type AddressError struct {
	Addr uint32
	Dir  Direction
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("address error: %s $%06x", e.Dir, e.Addr&AddrMask)
}

func (e *AddressError) Is(target error) bool {
	return target == ErrAddressError //nolint:errorlint
}

var (
	ErrBusError     = errors.New("bus error")
	ErrAddressError = errors.New("address error")
)

// region classifies an address into one of the backing byte slices.
func (sp *Space) region(addr uint32) (buf []byte, base uint32, ok bool) {
	addr &= AddrMask

	switch {
	case addr < uint32(len(sp.main)):
		return sp.main, 0, true
	case sp.high != nil && addr >= HighMemoryBase && addr < HighMemoryBase+uint32(len(sp.high)):
		return sp.high, HighMemoryBase, true
	default:
		return nil, 0, false
	}
}

// GetAccessibleMemory resolves addr and returns the contiguous, accessible span starting there, up
// to length bytes. The returned slice may be shorter than length if the range crosses an unmapped
// boundary, and is empty if the first byte is unreachable (including a supervisor-area access
// from user mode).
func (sp *Space) GetAccessibleMemory(addr uint32, length int, super bool) []byte {
	addr &= AddrMask

	if !super && addr < sp.supervisorEnd {
		return nil
	}

	buf, base, ok := sp.region(addr)
	if !ok {
		return nil
	}

	off := addr - base
	if off >= uint32(len(buf)) {
		return nil
	}

	end := off + uint32(length)
	if end > uint32(len(buf)) {
		end = uint32(len(buf))
	}

	return buf[off:end]
}

// GetStringSuper returns the NUL-terminated byte string starting at addr, not including the NUL.
// If no NUL is found before an unmapped boundary, it fails with a bus error at the first
// inaccessible byte.
func (sp *Space) GetStringSuper(addr uint32) ([]byte, error) {
	const maxProbe = 4096

	var out []byte

	for i := 0; i < maxProbe; i++ {
		span := sp.GetAccessibleMemory(addr+uint32(i), 1, true)
		if len(span) == 0 {
			return nil, sp.fault(&BusError{Addr: addr + uint32(i), Dir: Read})
		}

		if span[0] == 0 {
			return out, nil
		}

		out = append(out, span[0])
	}

	return out, nil
}

// PeekB reads a byte.
func (sp *Space) PeekB(addr uint32, super bool) (byte, error) {
	span := sp.GetAccessibleMemory(addr, 1, super)
	if len(span) < 1 {
		return 0, sp.fault(&BusError{Addr: addr, Dir: Read})
	}

	return span[0], nil
}

// PeekW reads a big-endian word. Odd addresses are an address error.
func (sp *Space) PeekW(addr uint32, super bool) (uint16, error) {
	if addr&1 != 0 {
		return 0, sp.fault(&AddressError{Addr: addr, Dir: Read})
	}

	span := sp.GetAccessibleMemory(addr, 2, super)
	if len(span) < 2 {
		return 0, sp.fault(&BusError{Addr: addr, Dir: Read})
	}

	return uint16(span[0])<<8 | uint16(span[1]), nil
}

// fault logs a memory-layer error at Debug before handing it back to the caller. Most faults are
// routed onward to a CPU exception handler and are not themselves a sign of a broken emulator, so
// this logs below the level that would flag a real problem; handleFault's Fatal path logs at
// Error once an exception genuinely cannot be serviced.
func (sp *Space) fault(err error) error {
	sp.log.Debug("memory fault", "error", err)

	return err
}

// PeekL reads a big-endian longword. Odd addresses are an address error.
func (sp *Space) PeekL(addr uint32, super bool) (uint32, error) {
	if addr&1 != 0 {
		return 0, sp.fault(&AddressError{Addr: addr, Dir: Read})
	}

	hi, err := sp.PeekW(addr, super)
	if err != nil {
		return 0, err
	}

	lo, err := sp.PeekW(addr+2, super)
	if err != nil {
		return 0, err
	}

	return uint32(hi)<<16 | uint32(lo), nil
}

// PokeB writes a byte.
func (sp *Space) PokeB(addr uint32, val byte, super bool) error {
	span := sp.GetAccessibleMemory(addr, 1, super)
	if len(span) < 1 {
		return sp.fault(&BusError{Addr: addr, Dir: Write})
	}

	span[0] = val

	return nil
}

// PokeW writes a big-endian word. Odd addresses are an address error.
func (sp *Space) PokeW(addr uint32, val uint16, super bool) error {
	if addr&1 != 0 {
		return sp.fault(&AddressError{Addr: addr, Dir: Write})
	}

	span := sp.GetAccessibleMemory(addr, 2, super)
	if len(span) < 2 {
		return sp.fault(&BusError{Addr: addr, Dir: Write})
	}

	span[0] = byte(val >> 8)
	span[1] = byte(val)

	return nil
}

// PokeL writes a big-endian longword. Odd addresses are an address error.
func (sp *Space) PokeL(addr uint32, val uint32, super bool) error {
	if addr&1 != 0 {
		return sp.fault(&AddressError{Addr: addr, Dir: Write})
	}

	if err := sp.PokeW(addr, uint16(val>>16), super); err != nil {
		return err
	}

	return sp.PokeW(addr+2, uint16(val), super)
}

// ReadBytes copies length bytes starting at addr into a freshly allocated slice, for host calls
// (DOS _WRITE, et al.) that need a contiguous host-side buffer. It fails if any byte in the range
// is inaccessible.
func (sp *Space) ReadBytes(addr uint32, length int, super bool) ([]byte, error) {
	out := make([]byte, 0, length)

	for len(out) < length {
		span := sp.GetAccessibleMemory(addr+uint32(len(out)), length-len(out), super)
		if len(span) == 0 {
			return out, sp.fault(&BusError{Addr: addr + uint32(len(out)), Dir: Read})
		}

		out = append(out, span...)
	}

	return out, nil
}

// WriteBytes copies data into the guest starting at addr. It fails, leaving a prefix written, if
// any byte in the range is inaccessible.
func (sp *Space) WriteBytes(addr uint32, data []byte, super bool) (int, error) {
	written := 0

	for written < len(data) {
		span := sp.GetAccessibleMemory(addr+uint32(written), len(data)-written, super)
		if len(span) == 0 {
			return written, sp.fault(&BusError{Addr: addr + uint32(written), Dir: Write})
		}

		n := copy(span, data[written:])
		written += n
	}

	return written, nil
}
