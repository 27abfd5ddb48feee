package cpu

// ops_move.go implements MOVE/MOVEA/MOVEQ and the grab-bag of single-operand line-0100
// instructions: MOVE to/from SR/CCR/USP, LEA, PEA, LINK/UNLK, SWAP, EXT, CLR, NEG/NEGX/NOT, NBCD,
// TST, TAS, MOVEM, JMP/JSR/RTS/RTE/RTR/TRAPV/TRAP, and NOP.

// moveSize maps the MOVE opcode's line nibble to an operand size: line 1 is byte, line 3 is word,
// line 2 is long.
func moveSize(op uint16) Size {
	switch (op >> 12) & 0x3 {
	case 1:
		return Byte
	case 3:
		return Word
	default:
		return Long
	}
}

// execMove implements MOVE and MOVEA (lines 0001/0010/0011).
func (c *CPU) execMove(op uint16) error {
	size := moveSize(op)

	srcModeField, srcReg := uint8(op>>3)&0x7, uint8(op)&0x7
	dstReg := uint8(op>>9) & 0x7
	dstModeField := uint8(op>>6) & 0x7

	if size == Byte && dstModeField == 1 {
		return ErrIllegalInstruction // MOVEA.B does not exist
	}

	src, err := c.DecodeEA(srcModeField, srcReg, size, AllowAll)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(src, size)
	if err != nil {
		return err
	}

	if dstModeField == 1 { // MOVEA: sign-extend into a full 32-bit address register, no CCR change
		c.A[dstReg] = signExtend(v, size)
		return nil
	}

	dst, err := c.DecodeEA(dstModeField, dstReg, size, AllowDataAlterable)
	if err != nil {
		return err
	}

	if err := c.WriteEA(dst, size, v); err != nil {
		return err
	}

	c.generalConditions(v, size)

	return nil
}

// execMoveq implements MOVEQ #imm,Dn (line 0111, bit8 clear).
func (c *CPU) execMoveq(op uint16) error {
	if op&0x0100 != 0 {
		return ErrIllegalInstruction
	}

	reg := GPR(op>>9) & 0x7
	imm := signExtend(uint32(op&0xff), Byte)

	c.D[reg] = imm
	c.generalConditions(imm, Long)

	return nil
}

// execLine4 implements every line-0100 opcode.
func (c *CPU) execLine4(op uint16) error {
	if op&0x0100 != 0 { // bit8 set: LEA, CHK, or unassigned
		switch op & 0x00C0 {
		case 0x00C0:
			return c.execLEA(op)
		case 0x0080:
			return ErrIllegalInstruction // CHK: real 68000 opcode, not implemented by this core
		default:
			return ErrIllegalInstruction
		}
	}

	top3 := (op >> 9) & 0x7
	sub := (op >> 6) & 0x3

	if top3 == 7 { // the 0x4E00-0x4EFF control block
		switch sub {
		case 1:
			return c.exec4E40(op)
		case 2:
			return c.execJSR(op)
		case 3:
			return c.execJMP(op)
		default:
			return ErrIllegalInstruction
		}
	}

	switch top3 {
	case 0:
		return c.execNegxOrMoveFromSR(op, sub)
	case 1:
		return c.execClr(op, sub)
	case 2:
		return c.execNegOrMoveToCCR(op, sub)
	case 3:
		return c.execNotOrMoveToSR(op, sub)
	case 4:
		return c.exec48xx(op, sub)
	case 5:
		return c.execTstOrTas(op, sub)
	case 6:
		return c.execMovemLoad(op, sub)
	default:
		return ErrIllegalInstruction
	}
}

func sizeFromSub(sub uint16) (Size, bool) {
	switch sub {
	case 0:
		return Byte, true
	case 1:
		return Word, true
	case 2:
		return Long, true
	default:
		return 0, false
	}
}

func (c *CPU) execNegxOrMoveFromSR(op uint16, sub uint16) error {
	modeField, reg := eaField(op)

	if sub == 3 {
		ea, err := c.DecodeEA(modeField, reg, Word, AllowDataAlterable)
		if err != nil {
			return err
		}

		return c.WriteEA(ea, Word, uint32(c.SR))
	}

	size, _ := sizeFromSub(sub)

	ea, err := c.DecodeEA(modeField, reg, size, AllowDataAlterable)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	prevZero := c.zero()
	result := truncate(0-v-b2u(c.SR&FlagX != 0), size)
	c.negxConditions(v, result, size, prevZero)

	return c.WriteEA(ea, size, result)
}

func (c *CPU) execClr(op uint16, sub uint16) error {
	size, ok := sizeFromSub(sub)
	if !ok {
		return ErrIllegalInstruction // no MOVE-from-CCR on this core (68010+ only)
	}

	modeField, reg := eaField(op)

	ea, err := c.DecodeEA(modeField, reg, size, AllowDataAlterable)
	if err != nil {
		return err
	}

	if err := c.WriteEA(ea, size, 0); err != nil {
		return err
	}

	c.setN(false)
	c.setZ(true)
	c.setV(false)
	c.setC(false)

	return nil
}

func (c *CPU) execNegOrMoveToCCR(op uint16, sub uint16) error {
	modeField, reg := eaField(op)

	if sub == 3 {
		ea, err := c.DecodeEA(modeField, reg, Word, AllowData)
		if err != nil {
			return err
		}

		v, err := c.ReadEA(ea, Word)
		if err != nil {
			return err
		}

		c.SR = c.SR&^CCRMask | uint16(v)&CCRMask

		return nil
	}

	size, _ := sizeFromSub(sub)

	ea, err := c.DecodeEA(modeField, reg, size, AllowDataAlterable)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	result := truncate(0-v, size)
	c.negConditions(v, result, size)

	return c.WriteEA(ea, size, result)
}

func (c *CPU) execNotOrMoveToSR(op uint16, sub uint16) error {
	modeField, reg := eaField(op)

	if sub == 3 {
		if !c.Supervisor() {
			return ErrPrivilegeViolation
		}

		ea, err := c.DecodeEA(modeField, reg, Word, AllowData)
		if err != nil {
			return err
		}

		v, err := c.ReadEA(ea, Word)
		if err != nil {
			return err
		}

		c.setSR(uint16(v))

		return nil
	}

	size, _ := sizeFromSub(sub)

	ea, err := c.DecodeEA(modeField, reg, size, AllowDataAlterable)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	result := truncate(^v, size)
	c.generalConditions(result, size)

	return c.WriteEA(ea, size, result)
}

// setSR installs a new status register, switching privilege level if needed. Only the
// implemented bits (supervisor + CCR) are meaningful; everything else reads back as stored but
// has no behavioral effect, since this core models no interrupt-priority mask.
func (c *CPU) setSR(v uint16) {
	super := v&FlagS != 0
	c.SR = v
	c.SetSupervisor(super)
}

func (c *CPU) exec48xx(op uint16, sub uint16) error {
	modeField, reg := eaField(op)

	switch sub {
	case 0: // NBCD
		ea, err := c.DecodeEA(modeField, reg, Byte, AllowDataAlterable)
		if err != nil {
			return err
		}

		v, err := c.ReadEA(ea, Byte)
		if err != nil {
			return err
		}

		prevZero := c.zero()
		result, borrow := bcdSub(0, v, c.SR&FlagX != 0)
		c.applyBCDFlags(result, borrow, prevZero)

		return c.WriteEA(ea, Byte, result)

	case 1:
		if modeField == 0 { // SWAP Dn
			v := c.D[reg]
			c.D[reg] = v<<16 | v>>16
			c.generalConditions(c.D[reg], Long)

			return nil
		}

		return c.execPEA(modeField, reg)

	case 2, 3:
		size := Word
		if sub == 3 {
			size = Long
		}

		if modeField == 0 { // EXT
			return c.execEXT(reg, size)
		}

		return c.execMovemStore(modeField, reg, size)
	}

	return ErrIllegalInstruction
}

func (c *CPU) execPEA(modeField, reg uint8) error {
	ea, err := c.DecodeEA(modeField, reg, Long, AllowControl)
	if err != nil {
		return err
	}

	c.A[SP] -= 4

	return c.Mem.PokeL(c.A[SP], ea.Addr, c.Supervisor())
}

func (c *CPU) execEXT(reg uint8, size Size) error {
	if size == Word {
		c.D[reg] = mergeSized(c.D[reg], signExtend(c.D[reg]&0xff, Byte), Word)
		c.generalConditions(c.D[reg], Word)
	} else {
		c.D[reg] = signExtend(c.D[reg]&0xffff, Word)
		c.generalConditions(c.D[reg], Long)
	}

	return nil
}

func (c *CPU) execTstOrTas(op uint16, sub uint16) error {
	modeField, reg := eaField(op)

	if sub == 3 {
		if op == 0x4AFC {
			return ErrIllegalInstruction // the canonical explicit ILLEGAL opcode
		}

		return c.execTAS(modeField, reg)
	}

	size, _ := sizeFromSub(sub)

	ea, err := c.DecodeEA(modeField, reg, size, AllowData)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	c.generalConditions(v, size)

	return nil
}

func (c *CPU) execTAS(modeField, reg uint8) error {
	ea, err := c.DecodeEA(modeField, reg, Byte, AllowDataAlterable)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, Byte)
	if err != nil {
		return err
	}

	c.generalConditions(v, Byte)

	return c.WriteEA(ea, Byte, v|0x80)
}

func (c *CPU) execLEA(op uint16) error {
	an := GPR(op>>9) & 0x7
	modeField, reg := eaField(op)

	ea, err := c.DecodeEA(modeField, reg, Long, AllowControl)
	if err != nil {
		return err
	}

	c.A[an] = ea.Addr

	return nil
}

func (c *CPU) execJSR(op uint16) error {
	modeField, reg := eaField(op)

	ea, err := c.DecodeEA(modeField, reg, Long, AllowControl)
	if err != nil {
		return err
	}

	c.A[SP] -= 4
	if err := c.Mem.PokeL(c.A[SP], c.PC, c.Supervisor()); err != nil {
		return err
	}

	c.PC = ea.Addr

	return nil
}

func (c *CPU) execJMP(op uint16) error {
	modeField, reg := eaField(op)

	ea, err := c.DecodeEA(modeField, reg, Long, AllowControl)
	if err != nil {
		return err
	}

	c.PC = ea.Addr

	return nil
}

// exec4E40 dispatches the 0x4E40-0x4E7F block of fixed-encoding instructions: TRAP, LINK, UNLK,
// MOVE USP, RESET, NOP, STOP, RTE, RTS, TRAPV, RTR.
func (c *CPU) exec4E40(op uint16) error {
	switch {
	case op&0xfff0 == 0x4e40: // TRAP #n
		return c.RaiseTrap(uint8(op & 0xf))

	case op&0xfff8 == 0x4e50: // LINK An,#disp
		reg := GPR(op) & 0x7
		return c.execLINK(reg)

	case op&0xfff8 == 0x4e58: // UNLK An
		reg := GPR(op) & 0x7
		return c.execUNLK(reg)

	case op&0xfff0 == 0x4e60: // MOVE An,USP / MOVE USP,An
		if !c.Supervisor() {
			return ErrPrivilegeViolation
		}

		reg := GPR(op) & 0x7
		if op&0x8 != 0 {
			c.A[reg] = c.USP
		} else {
			c.USP = c.A[reg]
		}

		return nil

	case op == 0x4e70: // RESET: no peripherals modeled, treated as a privileged no-op
		if !c.Supervisor() {
			return ErrPrivilegeViolation
		}

		return nil

	case op == 0x4e71: // NOP
		return nil

	case op == 0x4e72: // STOP #imm
		if !c.Supervisor() {
			return ErrPrivilegeViolation
		}

		imm, err := c.fetchWord()
		if err != nil {
			return err
		}

		c.setSR(imm)

		return nil

	case op == OpcodeRTE:
		if !c.Supervisor() {
			return ErrPrivilegeViolation
		}

		return c.execRTE()

	case op == 0x4e75: // RTS
		return c.execRTS()

	case op == 0x4e76: // TRAPV
		if c.SR&FlagV != 0 {
			return c.RaiseTrap(7)
		}

		return nil

	case op == 0x4e77: // RTR
		return c.execRTR()

	default:
		return ErrIllegalInstruction
	}
}

func (c *CPU) execLINK(reg GPR) error {
	disp, err := c.fetchWord()
	if err != nil {
		return err
	}

	c.A[SP] -= 4
	if err := c.Mem.PokeL(c.A[SP], c.A[reg], c.Supervisor()); err != nil {
		return err
	}

	c.A[reg] = c.A[SP]
	c.A[SP] += signExtend(uint32(disp), Word)

	return nil
}

func (c *CPU) execUNLK(reg GPR) error {
	c.A[SP] = c.A[reg]

	v, err := c.Mem.PeekL(c.A[SP], c.Supervisor())
	if err != nil {
		return err
	}

	c.A[reg] = v
	c.A[SP] += 4

	return nil
}

func (c *CPU) execRTS() error {
	v, err := c.Mem.PeekL(c.A[SP], c.Supervisor())
	if err != nil {
		return err
	}

	c.A[SP] += 4
	c.PC = v

	return nil
}

func (c *CPU) execRTE() error {
	sr, err := c.Mem.PeekW(c.A[SP], true)
	if err != nil {
		return err
	}

	c.A[SP] += 2

	pc, err := c.Mem.PeekL(c.A[SP], true)
	if err != nil {
		return err
	}

	c.A[SP] += 4

	c.setSR(sr)
	c.PC = pc

	return nil
}

func (c *CPU) execRTR() error {
	ccr, err := c.Mem.PeekW(c.A[SP], c.Supervisor())
	if err != nil {
		return err
	}

	c.A[SP] += 2

	pc, err := c.Mem.PeekL(c.A[SP], c.Supervisor())
	if err != nil {
		return err
	}

	c.A[SP] += 4

	c.SR = c.SR&^CCRMask | ccr&CCRMask
	c.PC = pc

	return nil
}

// execMovemStore and execMovemLoad implement MOVEM. The register-selection mask word always
// follows the opcode (before any EA extension words). For pre-decrement targets, the mask is
// walked A7..D0 and the mode's own address-register decrement matches hardware; every other
// destination walks D0..A7.
func (c *CPU) execMovemStore(modeField, reg uint8, size Size) error {
	mask, err := c.fetchWord()
	if err != nil {
		return err
	}

	ea, err := c.DecodeEA(modeField, reg, size, AllowControl|AllowAnPreDec)
	if err != nil {
		return err
	}

	regs := movemRegisters(mask, ea.Mode == ModeAnPreDec)

	addr := ea.Addr
	step := int64(size)

	if ea.Mode == ModeAnPreDec {
		addr += uint32(step) // DecodeEA already moved An down once; start from the original An

		for _, r := range regs {
			addr -= uint32(step)

			if err := c.pokeSized(addr, size, c.regValue(r)); err != nil {
				return err
			}
		}

		c.A[ea.Reg] = addr

		return nil
	}

	for _, r := range regs {
		if err := c.pokeSized(addr, size, c.regValue(r)); err != nil {
			return err
		}

		addr += uint32(step)
	}

	return nil
}

func (c *CPU) execMovemLoad(op uint16, sub uint16) error {
	if sub != 2 && sub != 3 {
		return ErrIllegalInstruction
	}

	size := Word
	if sub == 3 {
		size = Long
	}

	modeField, reg := eaField(op)

	mask, err := c.fetchWord()
	if err != nil {
		return err
	}

	ea, err := c.DecodeEA(modeField, reg, size, AllowControl|AllowAnPostInc|AllowPCDisp|AllowPCIndex)
	if err != nil {
		return err
	}

	regs := movemRegisters(mask, false)
	addr := ea.Addr

	for _, r := range regs {
		v, err := c.peekSized(addr, size)
		if err != nil {
			return err
		}

		c.setRegValue(r, signExtend(v, size))
		addr += uint32(size)
	}

	if ea.Mode == ModeAnPostInc {
		// The quirk: a post-increment MOVEM load reads (and discards) one extra word past the
		// last register loaded.
		if _, err := c.peekSized(addr, Word); err != nil {
			return err
		}

		c.A[ea.Reg] = addr
	}

	return nil
}

// movemRegisters expands a 16-bit MOVEM register mask into register indices 0..15 (0-7=D0-D7,
// 8-15=A0-A7). For pre-decrement targets bit0 selects A7, the mask is effectively reversed.
func movemRegisters(mask uint16, predec bool) []int {
	var regs []int

	if predec {
		for i := 15; i >= 0; i-- {
			if mask&(1<<uint(15-i)) != 0 {
				regs = append(regs, i)
			}
		}
	} else {
		for i := 0; i < 16; i++ {
			if mask&(1<<uint(i)) != 0 {
				regs = append(regs, i)
			}
		}
	}

	return regs
}

func (c *CPU) regValue(i int) uint32 {
	if i < 8 {
		return c.D[i]
	}

	return c.A[i-8]
}

func (c *CPU) setRegValue(i int, v uint32) {
	if i < 8 {
		c.D[i] = v
	} else {
		c.A[i-8] = v
	}
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}

	return 0
}
