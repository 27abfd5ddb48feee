package human68k

import (
	"github.com/kg68k/run68x-sub000/internal/cpu"
	"github.com/kg68k/run68x-sub000/internal/host"
)

// doGetdate implements _GETDATE: (wday<<16) | ((year-1980)<<9) | (month<<5) | day.
func (m *Machine) doGetdate(c *cpu.CPU) error {
	year, month, day, _, _, _, wday := m.Host.ToLocaltime(m.Host.Now())

	c.D[0] = uint32(wday)<<16 | uint32(host.PackDate(year, month, day))

	return nil
}

// doSetdate implements _SETDATE. Setting the clock is a no-op on the host; the call still
// validates the packed BCD-like fields and reports ILGFNC on anything out of range.
func (m *Machine) doSetdate(c *cpu.CPU) error {
	packed := m.argL(c, 0)
	month := (packed >> 5) & 0xf
	day := packed & 0x1f

	if month < 1 || month > 12 || day < 1 || day > 31 {
		setD0Err(c, host.ErrIllegalFunction)

		return nil
	}

	c.D[0] = 0

	return nil
}

// doGettime implements _GETTIME: (hour<<11) | (min<<5) | (sec/2).
func (m *Machine) doGettime(c *cpu.CPU) error {
	_, _, _, hour, min, sec, _ := m.Host.ToLocaltime(m.Host.Now())

	c.D[0] = uint32(host.PackTime(hour, min, sec))

	return nil
}

// doSettime implements _SETTIME, a validating no-op like doSetdate.
func (m *Machine) doSettime(c *cpu.CPU) error {
	packed := m.argL(c, 0)
	hour := (packed >> 11) & 0x1f
	min := (packed >> 5) & 0x3f

	if hour > 23 || min > 59 {
		setD0Err(c, host.ErrIllegalFunction)

		return nil
	}

	c.D[0] = 0

	return nil
}
