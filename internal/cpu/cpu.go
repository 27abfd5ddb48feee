// Package cpu implements the M68000 instruction set interpreter: register file, addressing-mode
// resolver, condition-code policy, and exception delivery. It never performs host I/O; F-line and
// A-line opcodes are routed to a SystemCallHandler supplied by the embedding OS personality.
package cpu

import (
	"fmt"

	"github.com/kg68k/run68x-sub000/internal/log"
	"github.com/kg68k/run68x-sub000/internal/mem"
)

// Size is the operand width of an instruction.
type Size uint8

const (
	Byte Size = 1
	Word Size = 2
	Long Size = 4
)

func (s Size) String() string {
	switch s {
	case Byte:
		return "b"
	case Word:
		return "w"
	case Long:
		return "l"
	default:
		return "?"
	}
}

// Status register bits. The low five are the condition codes (CCR); only the supervisor bit above
// them is implemented, as the core has no interrupt-priority mask to maintain.
const (
	FlagC uint16 = 1 << 0
	FlagV uint16 = 1 << 1
	FlagZ uint16 = 1 << 2
	FlagN uint16 = 1 << 3
	FlagX uint16 = 1 << 4
	FlagS uint16 = 1 << 13

	CCRMask = FlagC | FlagV | FlagZ | FlagN | FlagX
)

// GPR indexes the data or address register files.
type GPR uint8

const (
	D0 GPR = iota
	D1
	D2
	D3
	D4
	D5
	D6
	D7
)

const (
	A0 GPR = iota
	A1
	A2
	A3
	A4
	A5
	A6
	A7
)

// SP is an alias for the active stack pointer register, A7.
const SP = A7

// SystemCallHandler routes F-line and A-line escapes to the OS personality embedding the CPU.
// The CPU never knows anything about DOS, IOCS, or FEFUNC beyond "this opcode belongs to you".
type SystemCallHandler interface {
	// DOSCall handles an F-line opcode whose low byte is $FF (a `DOS _xxxx` call number encoded
	// in the following extension word, per the F-line decode in ops_ctrl.go).
	DOSCall(c *CPU) error

	// IOCSCall handles an IOCS trap (TRAP #15).
	IOCSCall(c *CPU) error

	// FEFUNCCall handles an F-line opcode whose low byte is $FE.
	FEFUNCCall(c *CPU) error

	// LineA is invoked for an unclaimed A-line opcode. Most implementations simply return nil,
	// the default "return" stub behavior described by the spec.
	LineA(c *CPU) error
}

// CPU is the M68000 register file and execution engine. It holds no host resources; all memory
// access goes through Mem.
type CPU struct {
	D [8]uint32
	A [8]uint32 // A[SP] is the *active* stack pointer for the current privilege mode.

	PC uint32
	SR uint16

	USP uint32 // shadow user stack pointer, valid while S=1
	SSP uint32 // shadow supervisor stack pointer, valid while S=0

	Mem *mem.Space
	OS  SystemCallHandler

	log *log.Logger

	// History, if non-nil, receives one entry per successfully decoded instruction. It is the
	// debugger collaborator's hook onto the instruction-history ring; the CPU itself keeps no
	// history buffer.
	History func(HistoryEntry)

	lastReadAddr, lastWriteAddr   uint32
	lastReadSize, lastWriteSize   Size
	hadRead, hadWrite             bool
}

// HistoryEntry records one executed instruction for the debugger collaborator's ring buffer.
type HistoryEntry struct {
	PC             uint32
	Opcode         uint16
	ReadAddr       uint32
	ReadSize       Size
	WroteAddr      uint32
	WriteSize      Size
	HadRead        bool
	HadWrite       bool
}

// New creates a CPU wired to the given memory space. The caller is responsible for setting PC,
// SR, and the stack pointers (the loader and OS personality do this as part of building a PSP).
func New(m *mem.Space, logger *log.Logger) *CPU {
	if logger == nil {
		logger = log.DefaultLogger()
	}

	return &CPU{
		Mem: m,
		SR:  FlagS, // start in supervisor mode, as Human68k does before transferring to a program
		log: logger,
	}
}

func (c *CPU) String() string {
	return fmt.Sprintf(
		"PC:%08x SR:%04x D0-7:%08x %08x %08x %08x %08x %08x %08x %08x A0-7:%08x %08x %08x %08x %08x %08x %08x %08x",
		c.PC, c.SR,
		c.D[0], c.D[1], c.D[2], c.D[3], c.D[4], c.D[5], c.D[6], c.D[7],
		c.A[0], c.A[1], c.A[2], c.A[3], c.A[4], c.A[5], c.A[6], c.A[7],
	)
}

// Supervisor reports whether the CPU is in supervisor mode.
func (c *CPU) Supervisor() bool { return c.SR&FlagS != 0 }

// SetSupervisor transitions privilege levels, swapping the active stack pointer with the
// appropriate shadow register so that A[SP] always refers to the stack of the *current* mode, per
// the invariant in the data model: A7 is SSP while supervisor, USP while user.
func (c *CPU) SetSupervisor(super bool) {
	if super == c.Supervisor() {
		return
	}

	if super {
		c.USP = c.A[SP]
		c.A[SP] = c.SSP
		c.SR |= FlagS
	} else {
		c.SSP = c.A[SP]
		c.A[SP] = c.USP
		c.SR &^= FlagS
	}
}

// recordRead and recordWrite remember the most recent memory read/write for the instruction-history ring.
func (c *CPU) recordRead(addr uint32, size Size) {
	c.lastReadAddr, c.lastReadSize, c.hadRead = addr, size, true
}

func (c *CPU) recordWrite(addr uint32, size Size) {
	c.lastWriteAddr, c.lastWriteSize, c.hadWrite = addr, size, true
}

// signExtend sign-extends a value of the given size to 32 bits.
func signExtend(v uint32, size Size) uint32 {
	switch size {
	case Byte:
		return uint32(int32(int8(v)))
	case Word:
		return uint32(int32(int16(v)))
	default:
		return v
	}
}

// truncate masks a 32-bit value down to the given size.
func truncate(v uint32, size Size) uint32 {
	switch size {
	case Byte:
		return v & 0xff
	case Word:
		return v & 0xffff
	default:
		return v
	}
}

// msb reports whether the sign bit of a size-truncated value is set.
func msb(v uint32, size Size) bool {
	switch size {
	case Byte:
		return v&0x80 != 0
	case Word:
		return v&0x8000 != 0
	default:
		return v&0x80000000 != 0
	}
}
