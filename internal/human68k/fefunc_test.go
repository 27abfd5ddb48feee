package human68k

import (
	"math"
	"testing"

	"github.com/kg68k/run68x-sub000/internal/cpu"
)

func placeFefuncOp(t *testing.T, m *Machine, pc uint32, num uint16) *cpu.CPU {
	t.Helper()

	c := m.CPU
	c.PC = pc

	if err := m.Mem.PokeW(pc, num, true); err != nil {
		t.Fatalf("PokeW: %v", err)
	}

	return c
}

func TestFEFUNCDAddRoundTrip(t *testing.T) {
	m := newTestMachine(t)

	c := placeFefuncOp(t, m, testStack, feDAdd)
	setDouble(c, 1.5)
	c.A[0], c.A[1] = 0, 0

	bits := math.Float64bits(2.25)
	c.A[0] = uint32(bits >> 32)
	c.A[1] = uint32(bits)

	if err := m.FEFUNCCall(c); err != nil {
		t.Fatalf("FEFUNCCall: %v", err)
	}

	if got := getDouble(c); got != 3.75 {
		t.Fatalf("1.5+2.25 = %v, want 3.75", got)
	}

	if c.PC != testStack+2 {
		t.Fatalf("PC advanced to %#x, want %#x", c.PC, testStack+2)
	}
}

func TestFEFUNCDivByZeroSetsZC(t *testing.T) {
	m := newTestMachine(t)

	c := placeFefuncOp(t, m, testStack, feDDiv)
	setDouble(c, 1.0)
	c.A[0], c.A[1] = 0, 0

	if err := m.FEFUNCCall(c); err != nil {
		t.Fatalf("FEFUNCCall: %v", err)
	}

	if c.SR&cpu.FlagZ == 0 || c.SR&cpu.FlagC == 0 {
		t.Fatalf("divide by zero did not set Z+C, SR=%#x", c.SR)
	}
}

func TestFEFUNCSqrtNegativeSetsNC(t *testing.T) {
	m := newTestMachine(t)

	c := placeFefuncOp(t, m, testStack, feSqrt)
	setDouble(c, -4.0)

	if err := m.FEFUNCCall(c); err != nil {
		t.Fatalf("FEFUNCCall: %v", err)
	}

	if c.SR&cpu.FlagN == 0 || c.SR&cpu.FlagC == 0 {
		t.Fatalf("sqrt of a negative did not set N+C, SR=%#x", c.SR)
	}
}

func TestFEFUNCBcdCmpOrdering(t *testing.T) {
	m := newTestMachine(t)

	c := placeFefuncOp(t, m, testStack, feBcdCmp)
	c.D[0] = 0x00000010
	c.D[1] = 0x00000099

	if err := m.FEFUNCCall(c); err != nil {
		t.Fatalf("FEFUNCCall: %v", err)
	}

	if c.SR&cpu.FlagN == 0 {
		t.Fatalf("0x10 compared against 0x99 did not set N, SR=%#x", c.SR)
	}
}

func TestFEFUNCVectorRedirection(t *testing.T) {
	m := newTestMachine(t)

	const vectorTarget = 0x010000

	if err := m.Mem.PokeL(uint32(cpu.VectorLineF)*4, vectorTarget, true); err != nil {
		t.Fatalf("installing F-line vector: %v", err)
	}

	c := placeFefuncOp(t, m, testStack, feDAdd)
	c.A[cpu.SP] = testStack

	if err := m.FEFUNCCall(c); err != nil {
		t.Fatalf("FEFUNCCall: %v", err)
	}

	if c.PC != vectorTarget {
		t.Fatalf("PC = %#x after a redirected FEFUNC call, want the installed vector %#x", c.PC, vectorTarget)
	}
}
