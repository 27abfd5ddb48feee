package cpu

// ops_branch.go implements line 0101 (ADDQ/SUBQ/Scc/DBcc) and line 0110 (BRA/BSR/Bcc).

func (c *CPU) execLine5(op uint16) error {
	sizeSel := (op >> 6) & 0x3
	modeField, regField := eaField(op)

	if sizeSel == 3 {
		cc := uint8(op>>8) & 0xf

		if modeField == 1 {
			return c.execDBcc(cc, regField)
		}

		return c.execScc(cc, modeField, regField)
	}

	size, _ := sizeFromSub(sizeSel)
	data := (op >> 9) & 0x7

	if data == 0 {
		data = 8
	}

	sub := op&0x0100 != 0

	if modeField == 1 { // ADDQ/SUBQ on An: full 32-bit, no CCR effect
		if sub {
			c.A[regField] -= uint32(data)
		} else {
			c.A[regField] += uint32(data)
		}

		return nil
	}

	ea, err := c.DecodeEA(modeField, regField, size, AllowDataAlterable)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	var result uint32

	if sub {
		result = truncate(v-uint32(data), size)
		c.subConditions(uint32(data), v, result, size)
	} else {
		result = truncate(v+uint32(data), size)
		c.addConditions(uint32(data), v, result, size)
	}

	return c.WriteEA(ea, size, result)
}

// testCondition evaluates one of the sixteen standard M68000 branch conditions against the
// current CCR.
func (c *CPU) testCondition(cc uint8) bool {
	n := c.SR&FlagN != 0
	z := c.SR&FlagZ != 0
	v := c.SR&FlagV != 0
	cy := c.SR&FlagC != 0

	switch cc {
	case 0x0:
		return true // T
	case 0x1:
		return false // F
	case 0x2:
		return !cy && !z // HI
	case 0x3:
		return cy || z // LS
	case 0x4:
		return !cy // CC
	case 0x5:
		return cy // CS
	case 0x6:
		return !z // NE
	case 0x7:
		return z // EQ
	case 0x8:
		return !v // VC
	case 0x9:
		return v // VS
	case 0xa:
		return !n // PL
	case 0xb:
		return n // MI
	case 0xc:
		return n == v // GE
	case 0xd:
		return n != v // LT
	case 0xe:
		return !z && n == v // GT
	default:
		return z || n != v // LE
	}
}

func (c *CPU) execScc(cc uint8, modeField, regField uint8) error {
	ea, err := c.DecodeEA(modeField, regField, Byte, AllowDataAlterable)
	if err != nil {
		return err
	}

	var v uint32
	if c.testCondition(cc) {
		v = 0xff
	}

	return c.WriteEA(ea, Byte, v)
}

func (c *CPU) execDBcc(cc uint8, regField uint8) error {
	base := c.PC // address of the extension word: opcode address + 2

	disp, err := c.fetchWord()
	if err != nil {
		return err
	}

	if c.testCondition(cc) {
		return nil // condition true: the counter is left untouched and the branch does not fire
	}

	reg := GPR(regField)
	count := int16(c.D[reg]) - 1
	c.D[reg] = mergeSized(c.D[reg], uint32(uint16(count)), Word)

	if count != -1 {
		c.PC = base + signExtend(uint32(disp), Word)
	}

	return nil
}

func (c *CPU) execLine6(op uint16) error {
	cc := uint8(op>>8) & 0xf
	disp8 := int8(op & 0xff)

	base := c.PC // opcode address + 2, before any extension word

	var target uint32

	if disp8 == 0 {
		w, err := c.fetchWord()
		if err != nil {
			return err
		}

		target = base + signExtend(uint32(w), Word)
	} else {
		target = base + uint32(int32(disp8))
	}

	if cc == 1 { // BSR
		c.A[SP] -= 4
		if err := c.Mem.PokeL(c.A[SP], c.PC, c.Supervisor()); err != nil {
			return err
		}

		c.PC = target

		return nil
	}

	if cc == 0 || c.testCondition(cc) {
		c.PC = target
	}

	return nil
}
