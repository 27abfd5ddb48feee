package human68k

import "testing"

func TestIOCSOntimeReadsHostClock(t *testing.T) {
	m := newTestMachine(t)

	c := m.CPU
	c.D[0] = iocsOntime

	if err := m.IOCSCall(c); err != nil {
		t.Fatalf("IOCSCall: %v", err)
	}

	if c.D[0] != 0 || c.D[1] != 0 {
		t.Fatalf("D0:D1 = %d:%d, want 0:0 from the fake host's zero clock", c.D[0], c.D[1])
	}
}

func TestIOCSUnknownCallIsANoop(t *testing.T) {
	m := newTestMachine(t)

	c := m.CPU
	c.D[0] = 0x7fff
	c.D[1] = 0x1234

	if err := m.IOCSCall(c); err != nil {
		t.Fatalf("IOCSCall: %v", err)
	}

	if c.D[1] != 0x1234 {
		t.Fatalf("unknown IOCS call touched D1: got %#x", c.D[1])
	}
}
