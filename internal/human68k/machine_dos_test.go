package human68k

import (
	"testing"

	"github.com/kg68k/run68x-sub000/internal/cpu"
	"github.com/kg68k/run68x-sub000/internal/host"
)

// testStack is a scratch address well above the root MCB and any allocation this package's tests
// make, used as the argument area DOS calls read from via m.argL/m.argPath.
const testStack = 0x080000

func pushArgs(t *testing.T, m *Machine, args ...uint32) *cpu.CPU {
	t.Helper()

	c := m.CPU
	c.A[cpu.SP] = testStack

	for i, v := range args {
		if err := m.Mem.PokeL(testStack+uint32(i*4), v, true); err != nil {
			t.Fatalf("pushArgs: %v", err)
		}
	}

	return c
}

func writePath(t *testing.T, m *Machine, addr uint32, path string) {
	t.Helper()
	m.pokeASCIZ(addr, path, len(path)+1)
}

func TestMallocMfreeRoundTripRestoresLargestGap(t *testing.T) {
	m := newTestMachine(t)

	before := m.LargestGap(AreaMainOnly)

	payload, ok, _ := m.Malloc(4096, m.rootMCB, FromLower, AreaMainOnly)
	if !ok {
		t.Fatalf("Malloc failed unexpectedly")
	}

	if got := m.LargestGap(AreaMainOnly); got >= before {
		t.Fatalf("expected gap to shrink after Malloc, before=%d after=%d", before, got)
	}

	if !m.Mfree(payload) {
		t.Fatalf("Mfree failed unexpectedly")
	}

	if got := m.LargestGap(AreaMainOnly); got != before {
		t.Fatalf("largest gap not restored after Mfree: before=%d after=%d", before, got)
	}
}

func TestMallocChainLinksNeighborsOnFree(t *testing.T) {
	m := newTestMachine(t)

	a, ok, _ := m.Malloc(1024, m.rootMCB, FromLower, AreaMainOnly)
	if !ok {
		t.Fatalf("first Malloc failed")
	}

	b, ok, _ := m.Malloc(1024, m.rootMCB, FromLower, AreaMainOnly)
	if !ok {
		t.Fatalf("second Malloc failed")
	}

	aAddr := a - mcbHeaderSize
	bAddr := b - mcbHeaderSize

	if m.mcbNext(aAddr) != bAddr {
		t.Fatalf("expected a.next == b, got %#x", m.mcbNext(aAddr))
	}

	if m.mcbPrev(bAddr) != aAddr {
		t.Fatalf("expected b.prev == a, got %#x", m.mcbPrev(bAddr))
	}

	if !m.Mfree(a) {
		t.Fatalf("Mfree(a) failed")
	}

	if m.mcbPrev(bAddr) != m.rootMCB {
		t.Fatalf("expected b.prev == root after freeing a, got %#x", m.mcbPrev(bAddr))
	}

	if m.mcbNext(m.rootMCB) != bAddr {
		t.Fatalf("expected root.next == b after freeing a, got %#x", m.mcbNext(m.rootMCB))
	}
}

func TestSetblockShrinkThenGrowBackFails(t *testing.T) {
	m := newTestMachine(t)

	a, ok, _ := m.Malloc(4096, m.rootMCB, FromLower, AreaMainOnly)
	if !ok {
		t.Fatalf("Malloc failed")
	}

	b, ok, _ := m.Malloc(1024, m.rootMCB, FromLower, AreaMainOnly)
	if !ok {
		t.Fatalf("Malloc failed")
	}
	_ = b

	if ok, _ := m.Setblock(a, 256); !ok {
		t.Fatalf("shrink failed")
	}

	if ok, _ := m.Setblock(a, 4096+mcbHeaderSize); ok {
		t.Fatalf("expected grow back past the now-adjacent block to fail")
	}
}

func TestMfreeAllReleasesGrandchildren(t *testing.T) {
	m := newTestMachine(t)

	before := m.LargestGap(AreaMainOnly)

	parent, ok, _ := m.Malloc(1024, m.rootMCB, FromLower, AreaMainOnly)
	if !ok {
		t.Fatalf("Malloc(parent) failed")
	}

	parentMCB := parent - mcbHeaderSize

	child, ok, _ := m.Malloc(1024, parentMCB, FromLower, AreaMainOnly)
	if !ok {
		t.Fatalf("Malloc(child) failed")
	}

	childMCB := child - mcbHeaderSize

	grandchild, ok, _ := m.Malloc(1024, childMCB, FromLower, AreaMainOnly)
	if !ok {
		t.Fatalf("Malloc(grandchild) failed")
	}
	_ = grandchild

	m.MfreeAll(parentMCB)

	if got := m.LargestGap(AreaMainOnly); got != before {
		t.Fatalf("MfreeAll did not release the whole cascade: before=%d after=%d", before, got)
	}
}

func TestFileCreateWriteCloseOpenReadClose(t *testing.T) {
	m := newTestMachine(t)

	pathAddr := uint32(testStack + 0x1000)
	writePath(t, m, pathAddr, "FOO.TXT")

	bufAddr := uint32(testStack + 0x2000)
	data := "hello, human68k"
	m.pokeASCIZ(bufAddr, data, len(data)+1)

	c := pushArgs(t, m, pathAddr)
	if err := m.doCreateOrNew(c, true); err != nil {
		t.Fatalf("_CREATE: %v", err)
	}

	fd := c.D[0]
	if int32(fd) < 0 {
		t.Fatalf("_CREATE returned error %d", int32(fd))
	}

	pushArgs(t, m, fd, bufAddr, uint32(len(data)))
	if err := m.doWrite(c); err != nil {
		t.Fatalf("_WRITE: %v", err)
	}

	if int(c.D[0]) != len(data) {
		t.Fatalf("_WRITE wrote %d bytes, want %d", c.D[0], len(data))
	}

	pushArgs(t, m, fd)
	if err := m.doClose(c); err != nil {
		t.Fatalf("_CLOSE: %v", err)
	}

	pushArgs(t, m, pathAddr, uint32(host.OpenRead))
	if err := m.doOpen(c); err != nil {
		t.Fatalf("_OPEN: %v", err)
	}

	fd = c.D[0]
	if int32(fd) < 0 {
		t.Fatalf("_OPEN returned error %d", int32(fd))
	}

	readAddr := uint32(testStack + 0x3000)
	pushArgs(t, m, fd, readAddr, uint32(len(data)))
	if err := m.doRead(c); err != nil {
		t.Fatalf("_READ: %v", err)
	}

	if int(c.D[0]) != len(data) {
		t.Fatalf("_READ returned %d bytes, want %d", c.D[0], len(data))
	}

	gotBytes, err := m.Mem.ReadBytes(readAddr, len(data), true)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}

	if string(gotBytes) != data {
		t.Fatalf("round-tripped data = %q, want %q", gotBytes, data)
	}

	pushArgs(t, m, fd)
	if err := m.doClose(c); err != nil {
		t.Fatalf("_CLOSE: %v", err)
	}
}

func TestReadZeroLengthReturnsZeroWithoutTouchingBuffer(t *testing.T) {
	m := newTestMachine(t)

	pathAddr := uint32(testStack + 0x1000)
	writePath(t, m, pathAddr, "EMPTY.TXT")

	c := pushArgs(t, m, pathAddr)
	if err := m.doCreateOrNew(c, true); err != nil {
		t.Fatalf("_CREATE: %v", err)
	}

	fd := c.D[0]

	// An address far outside any mapped region: doRead must never dereference it when length==0.
	const badAddr = 0x00ffffff

	pushArgs(t, m, fd, uint32(badAddr), 0)
	if err := m.doRead(c); err != nil {
		t.Fatalf("_READ with length 0 faulted: %v", err)
	}

	if c.D[0] != 0 {
		t.Fatalf("_READ with length 0 returned %d, want 0", c.D[0])
	}
}

func TestOpenMissingFileReturnsErrNoEntry(t *testing.T) {
	m := newTestMachine(t)

	pathAddr := uint32(testStack + 0x1000)
	writePath(t, m, pathAddr, "NOSUCH.TXT")

	c := pushArgs(t, m, pathAddr, uint32(host.OpenRead))
	if err := m.doOpen(c); err != nil {
		t.Fatalf("_OPEN: %v", err)
	}

	if int32(c.D[0]) != int32(host.ErrNoEntry) {
		t.Fatalf("_OPEN on a missing file returned %d, want %d", int32(c.D[0]), host.ErrNoEntry)
	}
}

func TestDupSharesHandleAndClosingDupLeavesOriginalUsable(t *testing.T) {
	m := newTestMachine(t)

	pathAddr := uint32(testStack + 0x1000)
	writePath(t, m, pathAddr, "DUP.TXT")

	c := pushArgs(t, m, pathAddr)
	if err := m.doCreateOrNew(c, true); err != nil {
		t.Fatalf("_CREATE: %v", err)
	}

	fd := c.D[0]

	pushArgs(t, m, fd)
	if err := m.doDup(c); err != nil {
		t.Fatalf("_DUP: %v", err)
	}

	dupFd := c.D[0]
	if dupFd == fd {
		t.Fatalf("_DUP returned the same descriptor")
	}

	pushArgs(t, m, dupFd)
	if err := m.doClose(c); err != nil {
		t.Fatalf("_CLOSE(dup): %v", err)
	}

	if !m.files[fd].isOpened {
		t.Fatalf("closing the dup closed the original descriptor too")
	}
}

func TestMaketmpReplacesQuestionMarksAndAvoidsCollisions(t *testing.T) {
	m := newTestMachine(t)

	// Pre-create the first candidate name the all-zero digit run would produce, so doMaketmp must
	// retry at least once.
	collide := "TMP0000.TMP"
	if _, err := m.Host.Create(collide); err != nil {
		t.Fatalf("seeding collision file: %v", err)
	}

	pathAddr := uint32(testStack + 0x1000)
	writePath(t, m, pathAddr, "TMP????.TMP")

	c := pushArgs(t, m, pathAddr)
	if err := m.doMaketmp(c); err != nil {
		t.Fatalf("_MAKETMP: %v", err)
	}

	if int32(c.D[0]) < 0 {
		t.Fatalf("_MAKETMP failed with error %d", int32(c.D[0]))
	}

	got, err := m.Mem.GetStringSuper(pathAddr)
	if err != nil {
		t.Fatalf("GetStringSuper: %v", err)
	}

	if string(got) == collide {
		t.Fatalf("_MAKETMP reused a name that already existed")
	}
}
