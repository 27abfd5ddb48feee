package cpu

// ops_arith.go implements lines 1000/1001/1011/1100/1101: the ADD, SUB, CMP, AND, and OR families
// in all their register/memory/address/extend forms, plus MULU/MULS, DIVU/DIVS, and EXG (which
// lives in the AND opcode line's unused register-direct slots on real hardware).

type arithKind int

const (
	arithAdd arithKind = iota
	arithSub
)

func sizeOf(opmode uint16) Size {
	s, _ := sizeFromSub(opmode & 0x3)
	return s
}

func (c *CPU) execLineD(op uint16) error {
	reg := GPR(op>>9) & 0x7
	opmode := (op >> 6) & 0x7
	modeField, regField := eaField(op)

	return c.execAddSub(arithAdd, reg, opmode, modeField, regField)
}

func (c *CPU) execLine9(op uint16) error {
	reg := GPR(op>>9) & 0x7
	opmode := (op >> 6) & 0x7
	modeField, regField := eaField(op)

	return c.execAddSub(arithSub, reg, opmode, modeField, regField)
}

// execAddSub implements the ADD/SUB opmode dispatch shared by lines 1001 and 1101: opmode 3/7
// select the address-register forms (ADDA/SUBA); opmode 4-6 with an ea of Dn or An direct are
// really the register/memory extend forms (ADDX/SUBX); everything else is the ordinary ea<->Dn
// form.
func (c *CPU) execAddSub(kind arithKind, reg GPR, opmode uint16, modeField, regField uint8) error {
	if opmode == 3 || opmode == 7 {
		return c.execAddSubA(kind, reg, opmode, modeField, regField)
	}

	size := sizeOf(opmode)

	if opmode >= 4 {
		if modeField <= 1 {
			return c.execAddSubX(kind, size, GPR(regField), reg, modeField == 1)
		}

		return c.execAddSubToEA(kind, reg, size, modeField, regField)
	}

	return c.execAddSubToReg(kind, reg, size, modeField, regField)
}

func (c *CPU) execAddSubToReg(kind arithKind, reg GPR, size Size, modeField, regField uint8) error {
	ea, err := c.DecodeEA(modeField, regField, size, AllowAll)
	if err != nil {
		return err
	}

	src, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	dst := c.D[reg]

	var result uint32

	if kind == arithAdd {
		result = truncate(src+dst, size)
		c.addConditions(src, dst, result, size)
	} else {
		result = truncate(dst-src, size)
		c.subConditions(src, dst, result, size)
	}

	c.D[reg] = mergeSized(c.D[reg], result, size)

	return nil
}

func (c *CPU) execAddSubToEA(kind arithKind, reg GPR, size Size, modeField, regField uint8) error {
	ea, err := c.DecodeEA(modeField, regField, size, AllowDataAlterable&^AllowDn)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	src := c.D[reg]

	var result uint32

	if kind == arithAdd {
		result = truncate(src+v, size)
		c.addConditions(src, v, result, size)
	} else {
		result = truncate(v-src, size)
		c.subConditions(src, v, result, size)
	}

	return c.WriteEA(ea, size, result)
}

func (c *CPU) execAddSubA(kind arithKind, reg GPR, opmode uint16, modeField, regField uint8) error {
	size := Word
	if opmode == 7 {
		size = Long
	}

	ea, err := c.DecodeEA(modeField, regField, size, AllowAll)
	if err != nil {
		return err
	}

	src, err := c.ReadEASigned(ea, size)
	if err != nil {
		return err
	}

	if kind == arithAdd {
		c.A[reg] += src
	} else {
		c.A[reg] -= src
	}

	return nil
}

// execAddSubX implements ADDX/SUBX, either Dy,Dx register-direct or -(Ay),-(Ax) predecrement.
func (c *CPU) execAddSubX(kind arithKind, size Size, srcReg, dstReg GPR, predec bool) error {
	x := b2u(c.SR&FlagX != 0)

	if predec {
		srcEA, err := c.DecodeEA(uint8(ModeAnPreDec), uint8(srcReg), size, AllowAnPreDec)
		if err != nil {
			return err
		}

		src, err := c.ReadEA(srcEA, size)
		if err != nil {
			return err
		}

		dstEA, err := c.DecodeEA(uint8(ModeAnPreDec), uint8(dstReg), size, AllowAnPreDec)
		if err != nil {
			return err
		}

		dst, err := c.ReadEA(dstEA, size)
		if err != nil {
			return err
		}

		prevZero := c.zero()

		var result uint32

		if kind == arithAdd {
			result = truncate(src+dst+x, size)
			c.addxConditions(src, dst, result, size, prevZero)
		} else {
			result = truncate(dst-src-x, size)
			c.subxConditions(src, dst, result, size, prevZero)
		}

		return c.WriteEA(dstEA, size, result)
	}

	src := truncate(c.D[srcReg], size)
	dst := truncate(c.D[dstReg], size)
	prevZero := c.zero()

	var result uint32

	if kind == arithAdd {
		result = truncate(src+dst+x, size)
		c.addxConditions(src, dst, result, size, prevZero)
	} else {
		result = truncate(dst-src-x, size)
		c.subxConditions(src, dst, result, size, prevZero)
	}

	c.D[dstReg] = mergeSized(c.D[dstReg], result, size)

	return nil
}

// execLineB implements CMP, CMPA, CMPM, and EOR, which all share line 1011's opmode layout.
func (c *CPU) execLineB(op uint16) error {
	reg := GPR(op>>9) & 0x7
	opmode := (op >> 6) & 0x7
	modeField, regField := eaField(op)

	switch {
	case opmode == 3 || opmode == 7:
		return c.execCMPA(reg, opmode, modeField, regField)
	case opmode <= 2:
		return c.execCMP(reg, opmode, modeField, regField)
	case modeField == 1:
		return c.execCMPM(reg, opmode-4, regField)
	default:
		return c.execEOR(reg, opmode-4, modeField, regField)
	}
}

func (c *CPU) execCMP(reg GPR, opmode uint16, modeField, regField uint8) error {
	size := sizeOf(opmode)

	ea, err := c.DecodeEA(modeField, regField, size, AllowAll)
	if err != nil {
		return err
	}

	src, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	dst := truncate(c.D[reg], size)
	result := truncate(dst-src, size)
	c.cmpConditions(src, dst, result, size)

	return nil
}

func (c *CPU) execCMPA(reg GPR, opmode uint16, modeField, regField uint8) error {
	size := Word
	if opmode == 7 {
		size = Long
	}

	ea, err := c.DecodeEA(modeField, regField, size, AllowAll)
	if err != nil {
		return err
	}

	src, err := c.ReadEASigned(ea, size)
	if err != nil {
		return err
	}

	dst := c.A[reg]
	result := dst - src
	c.cmpConditions(src, dst, result, Long)

	return nil
}

func (c *CPU) execCMPM(axReg GPR, sizeSel uint16, ayRegField uint8) error {
	size, ok := sizeFromSub(sizeSel)
	if !ok {
		return ErrIllegalInstruction
	}

	srcEA, err := c.DecodeEA(uint8(ModeAnPostInc), ayRegField, size, AllowAnPostInc)
	if err != nil {
		return err
	}

	src, err := c.ReadEA(srcEA, size)
	if err != nil {
		return err
	}

	dstEA, err := c.DecodeEA(uint8(ModeAnPostInc), uint8(axReg), size, AllowAnPostInc)
	if err != nil {
		return err
	}

	dst, err := c.ReadEA(dstEA, size)
	if err != nil {
		return err
	}

	result := truncate(dst-src, size)
	c.cmpConditions(src, dst, result, size)

	return nil
}

func (c *CPU) execEOR(reg GPR, sizeSel uint16, modeField, regField uint8) error {
	size, ok := sizeFromSub(sizeSel)
	if !ok {
		return ErrIllegalInstruction
	}

	ea, err := c.DecodeEA(modeField, regField, size, AllowDataAlterable)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	result := truncate(v^c.D[reg], size)
	c.generalConditions(result, size)

	return c.WriteEA(ea, size, result)
}

// execLine8 implements OR, DIVU, DIVS, and SBCD (line 1000's register-direct slot carve-out).
func (c *CPU) execLine8(op uint16) error {
	if op&0xf1f0 == 0x8100 {
		return c.execSBCD(op)
	}

	reg := GPR(op>>9) & 0x7
	opmode := (op >> 6) & 0x7
	modeField, regField := eaField(op)

	switch opmode {
	case 3:
		return c.execDIVU(reg, modeField, regField)
	case 7:
		return c.execDIVS(reg, modeField, regField)
	case 4, 5, 6:
		size := sizeOf(opmode)

		ea, err := c.DecodeEA(modeField, regField, size, AllowDataAlterable&^AllowDn)
		if err != nil {
			return err
		}

		v, err := c.ReadEA(ea, size)
		if err != nil {
			return err
		}

		result := truncate(v|c.D[reg], size)
		c.generalConditions(result, size)

		return c.WriteEA(ea, size, result)
	default:
		size := sizeOf(opmode)

		ea, err := c.DecodeEA(modeField, regField, size, AllowAll)
		if err != nil {
			return err
		}

		v, err := c.ReadEA(ea, size)
		if err != nil {
			return err
		}

		result := truncate(v|c.D[reg], size)
		c.generalConditions(result, size)
		c.D[reg] = mergeSized(c.D[reg], result, size)

		return nil
	}
}

// execLineC implements AND, MULU, MULS, ABCD, and EXG (line 1100's register-direct carve-outs).
func (c *CPU) execLineC(op uint16) error {
	switch {
	case op&0xf1f0 == 0xc100:
		return c.execABCD(op)
	case op&0xf1f8 == 0xc140:
		return c.execEXG(GPR(op>>9)&0x7, GPR(op)&0x7, false)
	case op&0xf1f8 == 0xc148:
		return c.execEXG(GPR(op>>9)&0x7, GPR(op)&0x7, true)
	case op&0xf1f8 == 0xc188:
		return c.execEXGMixed(GPR(op>>9)&0x7, GPR(op)&0x7)
	}

	reg := GPR(op>>9) & 0x7
	opmode := (op >> 6) & 0x7
	modeField, regField := eaField(op)

	switch opmode {
	case 3:
		return c.execMULU(reg, modeField, regField)
	case 7:
		return c.execMULS(reg, modeField, regField)
	case 4, 5, 6:
		size := sizeOf(opmode)

		ea, err := c.DecodeEA(modeField, regField, size, AllowDataAlterable&^AllowDn)
		if err != nil {
			return err
		}

		v, err := c.ReadEA(ea, size)
		if err != nil {
			return err
		}

		result := truncate(v&c.D[reg], size)
		c.generalConditions(result, size)

		return c.WriteEA(ea, size, result)
	default:
		size := sizeOf(opmode)

		ea, err := c.DecodeEA(modeField, regField, size, AllowAll)
		if err != nil {
			return err
		}

		v, err := c.ReadEA(ea, size)
		if err != nil {
			return err
		}

		result := truncate(v&c.D[reg], size)
		c.generalConditions(result, size)
		c.D[reg] = mergeSized(c.D[reg], result, size)

		return nil
	}
}

func (c *CPU) execEXG(x, y GPR, addrBoth bool) error {
	if addrBoth {
		c.A[x], c.A[y] = c.A[y], c.A[x]
	} else {
		c.D[x], c.D[y] = c.D[y], c.D[x]
	}

	return nil
}

func (c *CPU) execEXGMixed(d, a GPR) error {
	c.D[d], c.A[a] = c.A[a], c.D[d]

	return nil
}

func (c *CPU) execMULU(reg GPR, modeField, regField uint8) error {
	ea, err := c.DecodeEA(modeField, regField, Word, AllowData)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, Word)
	if err != nil {
		return err
	}

	result := (c.D[reg] & 0xffff) * (v & 0xffff)
	c.D[reg] = result
	c.generalConditions(result, Long)

	return nil
}

func (c *CPU) execMULS(reg GPR, modeField, regField uint8) error {
	ea, err := c.DecodeEA(modeField, regField, Word, AllowData)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, Word)
	if err != nil {
		return err
	}

	result := uint32(int32(int16(c.D[reg])) * int32(int16(v)))
	c.D[reg] = result
	c.generalConditions(result, Long)

	return nil
}

// execDIVU and execDIVS implement 32-bit-by-16-bit division: the quotient is written to the low
// word of Dn and the remainder to the high word. A quotient that overflows 16 bits sets V and
// leaves Dn unmodified, per the documented (if surprising) hardware behavior.
func (c *CPU) execDIVU(reg GPR, modeField, regField uint8) error {
	ea, err := c.DecodeEA(modeField, regField, Word, AllowData)
	if err != nil {
		return err
	}

	divisor, err := c.ReadEA(ea, Word)
	if err != nil {
		return err
	}

	if divisor == 0 {
		return errZeroDivide
	}

	dividend := c.D[reg]
	q := dividend / divisor
	r := dividend % divisor

	if q > 0xffff {
		c.setV(true)
		return nil
	}

	c.D[reg] = r<<16 | (q & 0xffff)
	c.setN(q&0x8000 != 0)
	c.setZ(q == 0)
	c.setV(false)
	c.setC(false)

	return nil
}

func (c *CPU) execDIVS(reg GPR, modeField, regField uint8) error {
	ea, err := c.DecodeEA(modeField, regField, Word, AllowData)
	if err != nil {
		return err
	}

	divisorU, err := c.ReadEA(ea, Word)
	if err != nil {
		return err
	}

	divisor := int32(int16(divisorU))
	if divisor == 0 {
		return errZeroDivide
	}

	dividend := int32(c.D[reg])
	q := dividend / divisor
	r := dividend % divisor

	if q > 32767 || q < -32768 {
		c.setV(true)
		return nil
	}

	c.D[reg] = uint32(r)<<16&0xffff0000 | uint32(int32(int16(q)))&0xffff
	c.setN(q < 0)
	c.setZ(q == 0)
	c.setV(false)
	c.setC(false)

	return nil
}

func (c *CPU) execSBCD(op uint16) error {
	dst := GPR(op>>9) & 0x7
	src := GPR(op) & 0x7
	predec := op&0x8 != 0

	if predec {
		srcEA, err := c.DecodeEA(uint8(ModeAnPreDec), uint8(src), Byte, AllowAnPreDec)
		if err != nil {
			return err
		}

		srcV, err := c.ReadEA(srcEA, Byte)
		if err != nil {
			return err
		}

		dstEA, err := c.DecodeEA(uint8(ModeAnPreDec), uint8(dst), Byte, AllowAnPreDec)
		if err != nil {
			return err
		}

		dstV, err := c.ReadEA(dstEA, Byte)
		if err != nil {
			return err
		}

		prevZero := c.zero()
		result, borrow := bcdSub(dstV, srcV, c.SR&FlagX != 0)
		c.applyBCDFlags(result, borrow, prevZero)

		return c.WriteEA(dstEA, Byte, result)
	}

	srcV := c.D[src] & 0xff
	dstV := c.D[dst] & 0xff
	prevZero := c.zero()
	result, borrow := bcdSub(dstV, srcV, c.SR&FlagX != 0)
	c.applyBCDFlags(result, borrow, prevZero)
	c.D[dst] = mergeSized(c.D[dst], result, Byte)

	return nil
}

func (c *CPU) execABCD(op uint16) error {
	dst := GPR(op>>9) & 0x7
	src := GPR(op) & 0x7
	predec := op&0x8 != 0

	if predec {
		srcEA, err := c.DecodeEA(uint8(ModeAnPreDec), uint8(src), Byte, AllowAnPreDec)
		if err != nil {
			return err
		}

		srcV, err := c.ReadEA(srcEA, Byte)
		if err != nil {
			return err
		}

		dstEA, err := c.DecodeEA(uint8(ModeAnPreDec), uint8(dst), Byte, AllowAnPreDec)
		if err != nil {
			return err
		}

		dstV, err := c.ReadEA(dstEA, Byte)
		if err != nil {
			return err
		}

		prevZero := c.zero()
		result, carry := bcdAdd(dstV, srcV, c.SR&FlagX != 0)
		c.applyBCDFlags(result, carry, prevZero)

		return c.WriteEA(dstEA, Byte, result)
	}

	prevZero := c.zero()
	result, carry := bcdAdd(c.D[dst]&0xff, c.D[src]&0xff, c.SR&FlagX != 0)
	c.applyBCDFlags(result, carry, prevZero)
	c.D[dst] = mergeSized(c.D[dst], result, Byte)

	return nil
}

// applyBCDFlags is the shared ABCD/SBCD/NBCD condition-code policy: X and C both mirror the
// decimal carry/borrow, Z follows the "only clears" rule used throughout the X-family, and N
// reflects the result's top bit even though it is not meaningful for BCD data.
func (c *CPU) applyBCDFlags(result uint32, carry bool, prevZero bool) {
	c.setX(carry)
	c.setC(carry)

	if result != 0 {
		c.setZ(false)
	} else {
		c.setZ(prevZero)
	}

	c.setN(msb(result, Byte))
}
