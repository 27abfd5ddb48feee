package cpu

import (
	"errors"
	"fmt"

	"github.com/kg68k/run68x-sub000/internal/log"
	"github.com/kg68k/run68x-sub000/internal/mem"
)

// Exception vector numbers used by this core (standard M68000 numbering).
const (
	VectorBusError             = 2
	VectorAddressError         = 3
	VectorIllegalInstruction   = 4
	VectorZeroDivide           = 5
	VectorPrivilegeViolation   = 8
	VectorLineA                = 10
	VectorLineF                = 11
	VectorTrapBase             = 32 // TRAP #0 uses vector 32, #n uses 32+n
)

// OpcodeRTE is the RTE instruction word, used as the body of the stub InstallDefaultVectors
// writes for every vector this core can raise without an OS personality claiming it.
const OpcodeRTE = 0x4e73

// errZeroDivide is the internal sentinel instruction handlers return for DIVS/DIVU by zero; it is
// translated to a real vector-5 (VectorZeroDivide) exception by routeError.
var errZeroDivide = errors.New("divide by zero")

// Fatal wraps a CPU fault that the default (unhandled) vector cannot meaningfully recover from:
// the vector table entry is zero or points at data, so servicing the exception would itself fault.
// The runner surfaces Fatal to its caller instead of looping forever.
type Fatal struct {
	Cause error
	PC    uint32
}

func (f *Fatal) Error() string {
	return fmt.Sprintf("fatal: pc=$%08x: %s", f.PC, f.Cause)
}

func (f *Fatal) Unwrap() error { return f.Cause }

// fatal logs a fault the default vector handler cannot service at Error -- the emulator is about
// to stop, unlike the Debug-level trace raise emits for an exception it successfully delivers --
// and wraps it as Fatal.
func (c *CPU) fatal(cause error) error {
	c.log.Error("fatal exception", "error", cause, log.Registers(c.D, c.A, c.PC, c.SR))

	return &Fatal{Cause: cause, PC: c.PC}
}

// raise delivers a synchronous exception: push SR and PC on the (now) supervisor stack, enter
// supervisor mode, and load PC from the vector table entry. This is real vector-table delivery,
// not a host-side short-circuit -- a guest-installed handler genuinely runs and can RTE back.
func (c *CPU) raise(vector uint8) error {
	c.log.Debug("exception", "vector", vector, "pc", fmt.Sprintf("%06x", c.PC))

	savedSR := c.SR

	c.SetSupervisor(true)

	c.A[SP] -= 4
	if err := c.Mem.PokeL(c.A[SP], c.PC, true); err != nil {
		return c.fatal(err)
	}

	c.A[SP] -= 2
	if err := c.Mem.PokeW(c.A[SP], savedSR, true); err != nil {
		return c.fatal(err)
	}

	newPC, err := c.Mem.PeekL(uint32(vector)*4, true)
	if err != nil {
		return c.fatal(err)
	}

	c.PC = newPC

	return nil
}

// RaiseTrap delivers TRAP #n (vectors 32..47). TRAP #15 is the Human68k IOCS call convention: the
// OS personality services it directly rather than through a guest-installed vector, since no
// Human68k program is expected to install its own IOCS handler.
func (c *CPU) RaiseTrap(n uint8) error {
	if n == 15 {
		return c.OS.IOCSCall(c)
	}

	return c.raise(VectorTrapBase + n)
}

// handleFault classifies a memory-layer error and delivers the matching CPU exception, or returns
// it untouched (wrapped as Fatal) when the exception is documented as unrecoverable.
func (c *CPU) handleFault(err error, forCodeFetch bool) error {
	var (
		busErr  *mem.BusError
		addrErr *mem.AddressError
	)

	switch {
	case errors.As(err, &addrErr):
		if forCodeFetch {
			return c.fatal(err)
		}

		return c.raise(VectorAddressError)

	case errors.As(err, &busErr):
		if !c.Supervisor() {
			return c.raise(VectorBusError)
		}
		// A supervisor-mode bus error (e.g. the vector table itself is missing) cannot be
		// serviced: there is nowhere left to deliver it.
		return c.fatal(err)

	default:
		return err
	}
}

// RaiseIllegal delivers the illegal-instruction exception.
func (c *CPU) RaiseIllegal() error {
	return c.raise(VectorIllegalInstruction)
}

// RaisePrivilegeViolation delivers the privilege-violation exception.
func (c *CPU) RaisePrivilegeViolation() error {
	return c.raise(VectorPrivilegeViolation)
}

// RaiseZeroDivide delivers the zero-divide exception (DIVS/DIVU with a zero divisor).
func (c *CPU) RaiseZeroDivide() error {
	return c.raise(VectorZeroDivide)
}

// RaiseLineA delivers the line-1010 (A-line) exception for an unimplemented opcode beginning with
// $A.
func (c *CPU) RaiseLineA() error {
	return c.raise(VectorLineA)
}

// RaiseLineF delivers the line-1111 (F-line) exception, used when an F-line opcode is not claimed
// by the OS personality's DOS/FEFUNC dispatch.
func (c *CPU) RaiseLineF() error {
	return c.raise(VectorLineF)
}

// InstallDefaultVectors writes a single RTE instruction at stubAddr and points every vector this
// core can deliver without OS involvement -- bus error, address error, illegal instruction,
// zero divide, privilege violation, the unclaimed A-line/F-line slots, and TRAP #0-8 -- at it. An
// otherwise-unhandled exception then returns control to the faulting context instead of loading PC
// from a zero-initialized, unmapped vector slot. TRAP #15 is excluded: RaiseTrap services it
// directly through OS.IOCSCall and never consults the vector table.
func (c *CPU) InstallDefaultVectors(stubAddr uint32) error {
	if err := c.Mem.PokeW(stubAddr, OpcodeRTE, true); err != nil {
		return err
	}

	vectors := []uint8{
		VectorBusError, VectorAddressError, VectorIllegalInstruction, VectorZeroDivide,
		VectorPrivilegeViolation, VectorLineA, VectorLineF,
	}

	for n := uint8(0); n <= 8; n++ {
		vectors = append(vectors, VectorTrapBase+n)
	}

	for _, v := range vectors {
		if err := c.Mem.PokeL(uint32(v)*4, stubAddr, true); err != nil {
			return err
		}
	}

	return nil
}
