package human68k

import "github.com/kg68k/run68x-sub000/internal/cpu"

// IOCS call numbers read from D0.w, matching the TRAP #15 convention.
const (
	iocsOntime = 0x11
)

// IOCSCall implements cpu.SystemCallHandler for TRAP #15. Real IOCS exposes a large library of
// low-level hardware helpers (video, sound, keyboard scan codes, disk BIOS); this core implements
// _ONTIME, the one IOCS call the rest of the domain model depends on. Every other call number
// returns without changing any register, so its result looks the same as that of a call that did
// nothing.
func (m *Machine) IOCSCall(c *cpu.CPU) error {
	num := uint16(c.D[0])

	if m.Settings.TraceFunc {
		m.log.Debug("iocs call", "pc", c.PC, "num", num, "d1", c.D[1])
	}

	switch num {
	case iocsOntime:
		cs, days := m.Host.IocsOntime()
		c.D[0] = cs
		c.D[1] = days & 0xffff

		return nil
	default:
		return nil
	}
}

// LineA implements cpu.SystemCallHandler for an unclaimed A-line opcode. Human68k itself traps
// this to report "sprite BIOS not present" on machines without the X68000's hardware sprite unit;
// this core always reports absence by simply returning without altering CPU state, matching the
// "no A-line services installed" case.
func (m *Machine) LineA(c *cpu.CPU) error {
	return nil
}
