package cpu

import (
	"fmt"

	"github.com/kg68k/run68x-sub000/internal/mem"
)

// Step decodes and executes exactly one instruction, or delivers exactly one exception. It never
// performs host I/O directly: F-line and A-line opcodes that reach the OS personality go through
// c.OS.
func (c *CPU) Step() error {
	c.hadRead, c.hadWrite = false, false

	startPC := c.PC

	opcode, err := c.fetchOpcode()
	if err != nil {
		return c.handleFault(err, true)
	}

	c.log.Debug("step", "pc", fmt.Sprintf("%06x", startPC), "opcode", fmt.Sprintf("%04x", opcode))

	err = c.execute(opcode)

	if c.History != nil && err == nil {
		c.History(HistoryEntry{
			PC:        startPC,
			Opcode:    opcode,
			ReadAddr:  c.lastReadAddr,
			ReadSize:  c.lastReadSize,
			WroteAddr: c.lastWriteAddr,
			WriteSize: c.lastWriteSize,
			HadRead:   c.hadRead,
			HadWrite:  c.hadWrite,
		})
	}

	return err
}

// fetchOpcode reads the instruction word at PC. An odd PC is an address error; PC must always be
// even, per the invariant.
func (c *CPU) fetchOpcode() (uint16, error) {
	if c.PC&1 != 0 {
		return 0, &mem.AddressError{Addr: c.PC, Dir: mem.Read}
	}

	op, err := c.Mem.PeekW(c.PC, true)
	if err != nil {
		return 0, err
	}

	c.PC += 2

	return op, nil
}

// execute dispatches on the top nibble ("line") of the opcode, per the 16-line decode.
func (c *CPU) execute(op uint16) error {
	var err error

	switch op >> 12 {
	case 0x0:
		err = c.execLine0(op)
	case 0x1, 0x2, 0x3:
		err = c.execMove(op) // MOVE.B/L/W share one decode: size comes from the line nibble
	case 0x4:
		err = c.execLine4(op)
	case 0x5:
		err = c.execLine5(op) // ADDQ/SUBQ/Scc/DBcc
	case 0x6:
		err = c.execLine6(op) // Bcc/BRA/BSR
	case 0x7:
		err = c.execMoveq(op)
	case 0x8:
		err = c.execLine8(op) // OR/DIVU/DIVS/SBCD
	case 0x9:
		err = c.execLine9(op) // SUB/SUBX/SUBA
	case 0xA:
		err = c.OS.LineA(c)
	case 0xB:
		err = c.execLineB(op) // CMP/CMPA/CMPM/EOR
	case 0xC:
		err = c.execLineC(op) // AND/MULU/MULS/ABCD/EXG
	case 0xD:
		err = c.execLineD(op) // ADD/ADDX/ADDA
	case 0xE:
		err = c.execLineE(op) // shifts/rotates
	case 0xF:
		err = c.execLineF(op) // DOS/IOCS/FEFUNC and unclaimed F-line
	}

	// A decode/execute step can itself raise a CPU exception (illegal instruction, privilege
	// violation) rather than a memory fault; route those the same way a memory fault would be.
	return c.routeError(err)
}

// routeError turns a plain sentinel error from an instruction handler into a real vector-table
// exception, or passes a memory fault / already-raised exception through unchanged.
func (c *CPU) routeError(err error) error {
	switch err {
	case nil:
		return nil
	case ErrIllegalInstruction:
		return c.RaiseIllegal()
	case ErrPrivilegeViolation:
		return c.RaisePrivilegeViolation()
	case errZeroDivide:
		return c.RaiseZeroDivide()
	default:
		return c.handleFault(err, false)
	}
}

// eaField extracts the standard 6-bit "mode:reg" effective-address field from bits 5-0 of
// an opcode.
func eaField(op uint16) (modeField, regField uint8) {
	return uint8(op>>3) & 0x7, uint8(op) & 0x7
}
