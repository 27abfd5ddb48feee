package cpu

// ops_logic.go implements line-0000: the immediate arithmetic/logical instructions (ORI, ANDI,
// EORI, SUBI, ADDI, CMPI, and their CCR/SR special cases), the static- and dynamic-bit-number bit
// instructions (BTST/BCHG/BCLR/BSET), and MOVEP.

func (c *CPU) execLine0(op uint16) error {
	switch op {
	case 0x003c:
		return c.immCCR(func(a, b uint16) uint16 { return a | b })
	case 0x007c:
		return c.immSR(func(a, b uint16) uint16 { return a | b })
	case 0x023c:
		return c.immCCR(func(a, b uint16) uint16 { return a & b })
	case 0x027c:
		return c.immSR(func(a, b uint16) uint16 { return a & b })
	case 0x0a3c:
		return c.immCCR(func(a, b uint16) uint16 { return a ^ b })
	case 0x0a7c:
		return c.immSR(func(a, b uint16) uint16 { return a ^ b })
	}

	switch (op >> 8) & 0xf {
	case 0x0:
		return c.execImmLogic(op, func(a, b uint32) uint32 { return a | b })
	case 0x2:
		return c.execImmLogic(op, func(a, b uint32) uint32 { return a & b })
	case 0xa:
		return c.execImmLogic(op, func(a, b uint32) uint32 { return a ^ b })
	case 0x4:
		return c.execSUBI(op)
	case 0x6:
		return c.execADDI(op)
	case 0xc:
		return c.execCMPI(op)
	case 0x8:
		return c.execBitStatic(op)
	}

	top3 := (op >> 9) & 0x7
	bits86 := (op >> 6) & 0x7
	modeField, regField := eaField(op)

	if bits86&0x4 != 0 {
		if modeField == 1 {
			return c.execMOVEP(GPR(top3), bits86&0x3, regField)
		}

		return c.execBitDynamic(GPR(top3), bits86&0x3, modeField, regField)
	}

	return ErrIllegalInstruction
}

func (c *CPU) immCCR(op func(a, b uint16) uint16) error {
	imm, err := c.fetchWord()
	if err != nil {
		return err
	}

	ccr := c.SR & CCRMask
	c.SR = c.SR&^CCRMask | op(ccr, imm)&CCRMask

	return nil
}

func (c *CPU) immSR(op func(a, b uint16) uint16) error {
	if !c.Supervisor() {
		return ErrPrivilegeViolation
	}

	imm, err := c.fetchWord()
	if err != nil {
		return err
	}

	c.setSR(op(c.SR, imm))

	return nil
}

func (c *CPU) fetchImmediate(size Size) (uint32, error) {
	switch size {
	case Byte:
		w, err := c.fetchWord()
		return uint32(w) & 0xff, err
	case Word:
		w, err := c.fetchWord()
		return uint32(w), err
	default:
		return c.fetchLong()
	}
}

func (c *CPU) execImmLogic(op uint16, combine func(a, b uint32) uint32) error {
	size, ok := sizeFromSub((op >> 6) & 0x3)
	if !ok {
		return ErrIllegalInstruction
	}

	imm, err := c.fetchImmediate(size)
	if err != nil {
		return err
	}

	modeField, regField := eaField(op)

	ea, err := c.DecodeEA(modeField, regField, size, AllowDataAlterable)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	result := truncate(combine(v, imm), size)
	c.generalConditions(result, size)

	return c.WriteEA(ea, size, result)
}

func (c *CPU) execADDI(op uint16) error {
	size, ok := sizeFromSub((op >> 6) & 0x3)
	if !ok {
		return ErrIllegalInstruction
	}

	imm, err := c.fetchImmediate(size)
	if err != nil {
		return err
	}

	modeField, regField := eaField(op)

	ea, err := c.DecodeEA(modeField, regField, size, AllowDataAlterable)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	result := truncate(v+imm, size)
	c.addConditions(imm, v, result, size)

	return c.WriteEA(ea, size, result)
}

func (c *CPU) execSUBI(op uint16) error {
	size, ok := sizeFromSub((op >> 6) & 0x3)
	if !ok {
		return ErrIllegalInstruction
	}

	imm, err := c.fetchImmediate(size)
	if err != nil {
		return err
	}

	modeField, regField := eaField(op)

	ea, err := c.DecodeEA(modeField, regField, size, AllowDataAlterable)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	result := truncate(v-imm, size)
	c.subConditions(imm, v, result, size)

	return c.WriteEA(ea, size, result)
}

func (c *CPU) execCMPI(op uint16) error {
	size, ok := sizeFromSub((op >> 6) & 0x3)
	if !ok {
		return ErrIllegalInstruction
	}

	imm, err := c.fetchImmediate(size)
	if err != nil {
		return err
	}

	modeField, regField := eaField(op)

	ea, err := c.DecodeEA(modeField, regField, size, AllowData)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	result := truncate(v-imm, size)
	c.cmpConditions(imm, v, result, size)

	return nil
}

func (c *CPU) execBitStatic(op uint16) error {
	ext, err := c.fetchWord()
	if err != nil {
		return err
	}

	bitOp := (op >> 6) & 0x3
	modeField, regField := eaField(op)

	return c.execBit(bitOp, uint32(ext&0x1f), modeField, regField)
}

func (c *CPU) execBitDynamic(dReg GPR, bitOp uint16, modeField, regField uint8) error {
	return c.execBit(bitOp, c.D[dReg], modeField, regField)
}

func (c *CPU) execBit(bitOp uint16, bitNumSrc uint32, modeField, regField uint8) error {
	size := Byte
	if modeField == 0 {
		size = Long
	}

	bitnum := bitNumSrc
	if size == Long {
		bitnum &= 31
	} else {
		bitnum &= 7
	}

	ea, err := c.DecodeEA(modeField, regField, size, AllowDataAlterable)
	if err != nil {
		return err
	}

	v, err := c.ReadEA(ea, size)
	if err != nil {
		return err
	}

	mask := uint32(1) << bitnum
	c.setZ(v&mask == 0)

	if bitOp == 0 { // BTST never writes back
		return nil
	}

	var result uint32

	switch bitOp {
	case 1:
		result = v ^ mask
	case 2:
		result = v &^ mask
	case 3:
		result = v | mask
	}

	return c.WriteEA(ea, size, result)
}

// execMOVEP transfers 2 or 4 bytes between Dn and alternating bytes of memory addressed by
// An+disp, high byte first. mode2 selects direction and size: 0=word load, 1=long load, 2=word
// store, 3=long store.
func (c *CPU) execMOVEP(dReg GPR, mode2 uint16, aReg uint8) error {
	disp, err := c.fetchWord()
	if err != nil {
		return err
	}

	addr := c.A[aReg] + signExtend(uint32(disp), Word)

	long := mode2 == 1 || mode2 == 3
	toMem := mode2 >= 2

	n := 2
	if long {
		n = 4
	}

	if toMem {
		v := c.D[dReg]

		for i := 0; i < n; i++ {
			shift := uint(n-1-i) * 8
			if err := c.Mem.PokeB(addr, byte(v>>shift), c.Supervisor()); err != nil {
				return err
			}

			addr += 2
		}

		return nil
	}

	var v uint32

	for i := 0; i < n; i++ {
		b, err := c.Mem.PeekB(addr, c.Supervisor())
		if err != nil {
			return err
		}

		v = v<<8 | uint32(b)
		addr += 2
	}

	if long {
		c.D[dReg] = v
	} else {
		c.D[dReg] = mergeSized(c.D[dReg], v, Word)
	}

	return nil
}
