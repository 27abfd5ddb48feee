package human68k

import (
	"github.com/kg68k/run68x-sub000/internal/cpu"
	"github.com/kg68k/run68x-sub000/internal/host"
)

// doMalloc implements _MALLOC: allocate size bytes using mode, owned by the calling process.
func (m *Machine) doMalloc(c *cpu.CPU, mode AllocMode) error {
	size := m.argL(c, 0)

	payload, ok, errWord := m.Malloc(size, m.currentPSP-mcbHeaderSize, mode, m.allocArea)
	if !ok {
		c.D[0] = errWord

		return nil
	}

	c.D[0] = payload

	return nil
}

// doMalloc2 implements _MALLOC2, which additionally selects the allocation area (main/high/any)
// via an extra argument, rather than always using the machine's default area.
func (m *Machine) doMalloc2(c *cpu.CPU) error {
	size := m.argL(c, 0)
	area := AllocArea(m.argL(c, 4))

	payload, ok, errWord := m.Malloc(size, m.currentPSP-mcbHeaderSize, FromLower, area)
	if !ok {
		c.D[0] = errWord

		return nil
	}

	c.D[0] = payload

	return nil
}

func (m *Machine) doMfree(c *cpu.CPU) error {
	addr := m.argL(c, 0)

	if addr == 0 {
		m.MfreeAll(m.currentPSP - mcbHeaderSize)
		c.D[0] = 0

		return nil
	}

	if !m.Mfree(addr) {
		setD0Err(c, host.ErrIllegalMemPtr)

		return nil
	}

	c.D[0] = 0

	return nil
}

func (m *Machine) doSetblock(c *cpu.CPU) error {
	payload := m.argL(c, 0)
	newSize := m.argL(c, 4)

	ok, errWord := m.Setblock(payload, newSize)
	if !ok {
		c.D[0] = errWord

		return nil
	}

	c.D[0] = newSize

	return nil
}
