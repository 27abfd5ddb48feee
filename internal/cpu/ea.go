package cpu

import (
	"errors"
	"fmt"
)

// ErrIllegalInstruction is returned when a decode produces an undefined opcode, or when an
// addressing mode is used somewhere it is not permitted.
var ErrIllegalInstruction = errors.New("illegal instruction")

// ErrPrivilegeViolation is returned when a user-mode program executes a supervisor-only
// instruction (e.g. MOVE to SR).
var ErrPrivilegeViolation = errors.New("privilege violation")

// Mode identifies one of the twelve effective-addressing modes.
type Mode uint8

const (
	ModeDn Mode = iota
	ModeAn
	ModeAnInd
	ModeAnPostInc
	ModeAnPreDec
	ModeAnDisp
	ModeAnIndex
	ModeAbsW
	ModeAbsL
	ModePCDisp
	ModePCIndex
	ModeImmediate
)

// Allowed-mode bitmasks, built per instruction from the bits below.
const (
	AllowDn Allowed = 1 << iota
	AllowAn
	AllowAnInd
	AllowAnPostInc
	AllowAnPreDec
	AllowAnDisp
	AllowAnIndex
	AllowAbsW
	AllowAbsL
	AllowPCDisp
	AllowPCIndex
	AllowImmediate
)

// Allowed is a per-instruction bitmask of permitted addressing modes.
type Allowed uint16

const (
	AllowAll = AllowDn | AllowAn | AllowAnInd | AllowAnPostInc | AllowAnPreDec | AllowAnDisp |
		AllowAnIndex | AllowAbsW | AllowAbsL | AllowPCDisp | AllowPCIndex | AllowImmediate

	// AllowAlterable is every mode a destination may use: not PC-relative, not immediate.
	AllowAlterable = AllowAll &^ (AllowPCDisp | AllowPCIndex | AllowImmediate)

	// AllowDataAlterable is AllowAlterable without An, for instructions that only make sense on
	// data (CLR, NOT, TST's writable forms, ADD/SUB/AND/OR/EOR destinations).
	AllowDataAlterable = AllowAlterable &^ AllowAn

	// AllowData is every mode that yields a readable data value: everything but An itself, which
	// only participates through MOVEA/ADDA-family instructions.
	AllowData = AllowAll &^ AllowAn

	// AllowControl is the memory-reference-only subset used by LEA, PEA, JMP, and JSR.
	AllowControl = AllowAnInd | AllowAnDisp | AllowAnIndex | AllowAbsW | AllowAbsL |
		AllowPCDisp | AllowPCIndex
)

func (a Allowed) has(m Mode) bool {
	return a&(1<<uint(m)) != 0
}

// EA is a decoded effective address. Memory-referencing modes carry a resolved guest Addr;
// register-direct modes are read and written straight from the register file. EA is decoded once
// per instruction and then reused for both the operand fetch and (for read-modify-write
// instructions) the result store, so pre-decrement/post-increment side effects happen exactly
// once, matching get_data_at_ea_noinc.
type EA struct {
	Mode Mode
	Reg  GPR
	Addr uint32
	Imm  uint32
}

func (ea EA) String() string {
	return fmt.Sprintf("ea{mode:%d reg:%d addr:%#x}", ea.Mode, ea.Reg, ea.Addr)
}

// decodeMode maps the standard 3-bit mode field and 3-bit register field to a Mode, resolving
// mode 7's register-field sub-modes (abs.w, abs.l, PC-relative, immediate).
func decodeMode(modeField, regField uint8) Mode {
	if modeField != 7 {
		return Mode(modeField)
	}

	switch regField {
	case 0:
		return ModeAbsW
	case 1:
		return ModeAbsL
	case 2:
		return ModePCDisp
	case 3:
		return ModePCIndex
	default:
		return ModeImmediate
	}
}

// fetchWord and fetchLong consume an extension word/longword from the instruction stream (the
// guest code segment at PC), advancing PC.
func (c *CPU) fetchWord() (uint16, error) {
	v, err := c.Mem.PeekW(c.PC, true)
	if err != nil {
		return 0, err
	}

	c.PC += 2

	return v, nil
}

func (c *CPU) fetchLong() (uint32, error) {
	v, err := c.Mem.PeekL(c.PC, true)
	if err != nil {
		return 0, err
	}

	c.PC += 4

	return v, nil
}

// indexExtension decodes a brief extension word used by d8(An,Xn) and d8(PC,Xn): bit 15 selects
// D/A register, bits 14-12 the register number, bit 11 the index size (0=sign-extended word,
// 1=long), bits 7-0 the 8-bit displacement.
func (c *CPU) indexExtension(base uint32) (uint32, error) {
	ext, err := c.fetchWord()
	if err != nil {
		return 0, err
	}

	reg := (ext >> 12) & 0x7
	isAddr := ext&0x8000 != 0
	long := ext&0x0800 != 0
	disp := int8(ext & 0xff)

	var idx uint32
	if isAddr {
		idx = c.A[reg]
	} else {
		idx = c.D[reg]
	}

	if !long {
		idx = signExtend(idx, Word)
	}

	return base + idx + uint32(int32(disp)), nil
}

// DecodeEA decodes the addressing mode described by modeField/regField, consuming any extension
// words it needs and performing pre-decrement/post-increment side effects against An. allowed
// restricts which modes are legal for the calling instruction.
func (c *CPU) DecodeEA(modeField, regField uint8, size Size, allowed Allowed) (EA, error) {
	mode := decodeMode(modeField, regField)

	if !allowed.has(mode) {
		return EA{}, fmt.Errorf("%w: mode %d not allowed here", ErrIllegalInstruction, mode)
	}

	reg := GPR(regField & 0x7)

	switch mode {
	case ModeDn, ModeAn:
		return EA{Mode: mode, Reg: reg}, nil

	case ModeAnInd:
		return EA{Mode: mode, Reg: reg, Addr: c.A[reg]}, nil

	case ModeAnPostInc:
		addr := c.A[reg]
		step := uint32(size)

		if reg == SP && size == Byte {
			step = 2 // SP stays word-aligned even for byte accesses
		}

		c.A[reg] += step

		return EA{Mode: mode, Reg: reg, Addr: addr}, nil

	case ModeAnPreDec:
		step := uint32(size)

		if reg == SP && size == Byte {
			step = 2
		}

		c.A[reg] -= step

		return EA{Mode: mode, Reg: reg, Addr: c.A[reg]}, nil

	case ModeAnDisp:
		disp, err := c.fetchWord()
		if err != nil {
			return EA{}, err
		}

		addr := c.A[reg] + signExtend(uint32(disp), Word)

		return EA{Mode: mode, Reg: reg, Addr: addr}, nil

	case ModeAnIndex:
		addr, err := c.indexExtension(c.A[reg])
		if err != nil {
			return EA{}, err
		}

		return EA{Mode: mode, Reg: reg, Addr: addr}, nil

	case ModeAbsW:
		w, err := c.fetchWord()
		if err != nil {
			return EA{}, err
		}

		return EA{Mode: mode, Addr: signExtend(uint32(w), Word)}, nil

	case ModeAbsL:
		l, err := c.fetchLong()
		if err != nil {
			return EA{}, err
		}

		return EA{Mode: mode, Addr: l}, nil

	case ModePCDisp:
		base := c.PC

		disp, err := c.fetchWord()
		if err != nil {
			return EA{}, err
		}

		return EA{Mode: mode, Addr: base + signExtend(uint32(disp), Word)}, nil

	case ModePCIndex:
		base := c.PC

		addr, err := c.indexExtension(base)
		if err != nil {
			return EA{}, err
		}

		return EA{Mode: mode, Addr: addr}, nil

	case ModeImmediate:
		switch size {
		case Byte:
			w, err := c.fetchWord()
			if err != nil {
				return EA{}, err
			}

			return EA{Mode: mode, Imm: uint32(w) & 0xff}, nil
		case Word:
			w, err := c.fetchWord()
			if err != nil {
				return EA{}, err
			}

			return EA{Mode: mode, Imm: uint32(w)}, nil
		default:
			l, err := c.fetchLong()
			if err != nil {
				return EA{}, err
			}

			return EA{Mode: mode, Imm: l}, nil
		}

	default:
		return EA{}, fmt.Errorf("%w: mode %d", ErrIllegalInstruction, mode)
	}
}

// ReadEA reads the operand described by ea at the given size.
func (c *CPU) ReadEA(ea EA, size Size) (uint32, error) {
	switch ea.Mode {
	case ModeDn:
		return truncate(c.D[ea.Reg], size), nil
	case ModeAn:
		return truncate(c.A[ea.Reg], size), nil
	case ModeImmediate:
		return ea.Imm, nil
	default:
		v, err := c.peekSized(ea.Addr, size)
		if err != nil {
			return 0, err
		}

		c.recordRead(ea.Addr, size)

		return v, nil
	}
}

// ReadEASigned reads the operand and sign-extends it to 32 bits (used by MOVEA/ADDA/CMPA/SUBA,
// which always operate on a full longword destination).
func (c *CPU) ReadEASigned(ea EA, size Size) (uint32, error) {
	v, err := c.ReadEA(ea, size)
	if err != nil {
		return 0, err
	}

	return signExtend(v, size), nil
}

// WriteEA writes val (already truncated by the caller's intent) to the operand described by ea.
func (c *CPU) WriteEA(ea EA, size Size, val uint32) error {
	switch ea.Mode {
	case ModeDn:
		c.D[ea.Reg] = mergeSized(c.D[ea.Reg], val, size)
		return nil
	case ModeAn:
		c.A[ea.Reg] = signExtend(val, size)
		return nil
	case ModeImmediate:
		return fmt.Errorf("%w: cannot write to immediate operand", ErrIllegalInstruction)
	default:
		if err := c.pokeSized(ea.Addr, size, val); err != nil {
			return err
		}

		c.recordWrite(ea.Addr, size)

		return nil
	}
}

func (c *CPU) peekSized(addr uint32, size Size) (uint32, error) {
	super := c.Supervisor()

	switch size {
	case Byte:
		v, err := c.Mem.PeekB(addr, super)
		return uint32(v), err
	case Word:
		v, err := c.Mem.PeekW(addr, super)
		return uint32(v), err
	default:
		return c.Mem.PeekL(addr, super)
	}
}

func (c *CPU) pokeSized(addr uint32, size Size, val uint32) error {
	super := c.Supervisor()

	switch size {
	case Byte:
		return c.Mem.PokeB(addr, byte(val), super)
	case Word:
		return c.Mem.PokeW(addr, uint16(val), super)
	default:
		return c.Mem.PokeL(addr, val, super)
	}
}

// mergeSized writes the low size bytes of val into orig, leaving the remaining high bytes of orig
// untouched -- the documented behavior of byte/word writes to a data register.
func mergeSized(orig, val uint32, size Size) uint32 {
	switch size {
	case Byte:
		return orig&0xffffff00 | (val & 0xff)
	case Word:
		return orig&0xffff0000 | (val & 0xffff)
	default:
		return val
	}
}
