package human68k

import (
	"github.com/kg68k/run68x-sub000/internal/log"
	"github.com/kg68k/run68x-sub000/internal/mem"
)

// Memory Control Block: a 16-byte header preceding every allocation, forming a doubly linked list
// rooted at m.rootMCB. The payload (the bytes the caller actually gets) begins immediately after
// the header, at mcbAddr+mcbHeaderSize.
const mcbHeaderSize = 16

const (
	mcbOffPrev   = 0
	mcbOffParent = 4
	mcbOffEnd    = 8
	mcbOffNext   = 12
)

// AllocArea restricts which region of the address space a malloc call may place its block in.
type AllocArea int

const (
	AreaMainOnly AllocArea = iota
	AreaHighOnly
	AreaUnlimited
)

// AllocMode selects the fit strategy for _MALLOC / _MALLOC2.
type AllocMode int

const (
	FromLower    AllocMode = iota // first fit
	FromSmallest                  // best fit
	FromHigher                    // last fit, placed at the high end of the winning gap
)

func align16(v uint32) uint32   { return (v + 15) &^ 15 }
func align16Down(v uint32) uint32 { return v &^ 15 }

func (m *Machine) mcbPrev(addr uint32) uint32   { return m.peekL(addr + mcbOffPrev) }
func (m *Machine) mcbParent(addr uint32) uint32 { return m.peekL(addr + mcbOffParent) }
func (m *Machine) mcbEnd(addr uint32) uint32    { return m.peekL(addr + mcbOffEnd) }
func (m *Machine) mcbNext(addr uint32) uint32   { return m.peekL(addr + mcbOffNext) }

func (m *Machine) setMcbPrev(addr, v uint32)   { m.pokeL(addr+mcbOffPrev, v) }
func (m *Machine) setMcbParent(addr, v uint32) { m.pokeL(addr+mcbOffParent, v) }
func (m *Machine) setMcbEnd(addr, v uint32)    { m.pokeL(addr+mcbOffEnd, v) }
func (m *Machine) setMcbNext(addr, v uint32)   { m.pokeL(addr+mcbOffNext, v) }

// peekL/pokeL read and write supervisor-mode longwords, panicking only on a genuine bus error
// against OS-owned memory, which indicates a misconfigured memory size rather than a guest bug.
func (m *Machine) peekL(addr uint32) uint32 {
	v, err := m.Mem.PeekL(addr, true)
	if err != nil {
		panic(&mem.BusError{Addr: addr, Dir: mem.Read})
	}

	return v
}

func (m *Machine) pokeL(addr, v uint32) {
	if err := m.Mem.PokeL(addr, v, true); err != nil {
		panic(&mem.BusError{Addr: addr, Dir: mem.Write})
	}
}

// initMCBChain installs the root MCB: an empty, unowned block marking the start of user-allocable
// memory. Its payload is zero bytes; every real allocation follows it in the chain.
func (m *Machine) initMCBChain(rootAddr uint32) {
	m.rootMCB = rootAddr
	m.setMcbPrev(rootAddr, 0)
	m.setMcbParent(rootAddr, 0)
	m.setMcbEnd(rootAddr, rootAddr+mcbHeaderSize)
	m.setMcbNext(rootAddr, 0)
}

// regionEnd returns the extent of the physical region containing addr: main memory below
// mem.HighMemoryBase, or the top of high memory (if configured) at or above it. An address in the
// unbacked gap between the two regions returns an end equal to its own region's base, so any gap
// capacity computed against it comes out non-positive and is rejected.
func (m *Machine) regionEnd(addr uint32) uint32 {
	if addr < mem.HighMemoryBase {
		return m.Mem.MainSize()
	}

	if m.Mem.HighSize() > 0 {
		return mem.HighMemoryBase + m.Mem.HighSize()
	}

	return mem.HighMemoryBase
}

func areaAllows(area AllocArea, addr uint32) bool {
	switch area {
	case AreaMainOnly:
		return addr < mem.HighMemoryBase
	case AreaHighOnly:
		return addr >= mem.HighMemoryBase
	default:
		return true
	}
}

// gap describes one candidate placement: the MCB immediately before it, the address range
// [newBlock, limit) available for a new header+payload.
type gap struct {
	after    uint32 // MCB to link the new block after (0 means "before the first block", never true here since root always exists)
	newBlock uint32
	limit    uint32
}

func (g gap) capacity() uint32 {
	if g.limit <= g.newBlock {
		return 0
	}

	return g.limit - g.newBlock
}

// findGaps walks the MCB chain from the root, yielding one gap per block (the space between that
// block's end and the next block, or the end of its region).
func (m *Machine) findGaps(area AllocArea) []gap {
	var gaps []gap

	for cur := m.rootMCB; ; {
		newBlock := align16(m.mcbEnd(cur))
		next := m.mcbNext(cur)

		limit := m.regionEnd(newBlock)
		if next != 0 && next < limit {
			limit = next
		}

		if areaAllows(area, newBlock) {
			gaps = append(gaps, gap{after: cur, newBlock: newBlock, limit: limit})
		}

		if next == 0 {
			break
		}

		cur = next
	}

	return gaps
}

// malloc errors are packed into D0 per the two documented encodings: 0x81xxxxxx carries the
// largest gap found in the low 24 bits, 0x82000000 means not even a bare header would fit
// anywhere.
func mallocError(largestGap uint32) uint32 {
	if largestGap <= mcbHeaderSize {
		return 0x82000000
	}

	return 0x81000000 | (largestGap & mem.AddrMask)
}

// Malloc allocates size bytes (plus the MCB header) owned by parent (a PSP/MCB address), using
// mode to pick among the matching gaps. On success it returns the address of the new block's
// payload. On failure it returns ok=false and the D0 error word the caller should report.
func (m *Machine) Malloc(size, parent uint32, mode AllocMode, area AllocArea) (payload uint32, ok bool, errWord uint32) {
	want := align16(size) + mcbHeaderSize

	gaps := m.findGaps(area)

	var (
		best        gap
		haveBest    bool
		largestSeen uint32
	)

	for _, g := range gaps {
		capn := g.capacity()
		if capn > largestSeen {
			largestSeen = capn
		}

		if capn < want {
			continue
		}

		switch mode {
		case FromLower:
			if !haveBest {
				best, haveBest = g, true
			}
		case FromSmallest:
			if !haveBest || capn < best.capacity() {
				best, haveBest = g, true
			}
		case FromHigher:
			best, haveBest = g, true // keep overwriting: last fit wins
		}

		if mode == FromLower && haveBest {
			break
		}
	}

	if !haveBest {
		return 0, false, mallocError(largestSeen)
	}

	var newAddr uint32
	if mode == FromHigher {
		newAddr = align16Down(best.limit - mcbHeaderSize - size)
	} else {
		newAddr = best.newBlock
	}

	m.setMcbPrev(newAddr, best.after)
	m.setMcbParent(newAddr, parent)
	m.setMcbEnd(newAddr, newAddr+mcbHeaderSize+size)
	m.setMcbNext(newAddr, m.mcbNext(best.after))

	if oldNext := m.mcbNext(best.after); oldNext != 0 {
		m.setMcbPrev(oldNext, newAddr)
	}

	m.setMcbNext(best.after, newAddr)

	m.log.Debug("malloc", log.MCBBlock(newAddr, parent, newAddr+mcbHeaderSize+size, m.mcbNext(newAddr)))

	return newAddr + mcbHeaderSize, true, newAddr + mcbHeaderSize
}

// Setblock grows or shrinks the block at payload in place by moving its end, per _SETBLOCK. It
// fails with the same two-code scheme as Malloc if growing would overrun the next block (or the
// region end, for the last block in the chain).
func (m *Machine) Setblock(payload, newSize uint32) (ok bool, errWord uint32) {
	addr := payload - mcbHeaderSize

	next := m.mcbNext(addr)
	limit := m.regionEnd(addr)

	if next != 0 && next < limit {
		limit = next
	}

	newEnd := addr + mcbHeaderSize + newSize
	if newEnd > limit {
		return false, mallocError(limit - (addr + mcbHeaderSize))
	}

	m.setMcbEnd(addr, newEnd)

	m.log.Debug("setblock", log.MCBBlock(addr, m.mcbParent(addr), newEnd, next))

	return true, payload
}

// Mfree releases the single block at payload, relinking its neighbors. Freeing the root MCB is
// refused, per the invariant that prev of the root is always zero and it is never unlinked.
func (m *Machine) Mfree(payload uint32) bool {
	addr := payload - mcbHeaderSize
	if addr == m.rootMCB {
		return false
	}

	prev := m.mcbPrev(addr)
	next := m.mcbNext(addr)

	m.log.Debug("mfree", log.MCBBlock(addr, m.mcbParent(addr), m.mcbEnd(addr), next))

	m.setMcbNext(prev, next)

	if next != 0 {
		m.setMcbPrev(next, prev)
	}

	return true
}

// MfreeAll releases every MCB owned by parent, and recursively every MCB owned by a block just
// freed this way (grandchildren), per _MFREE(adr=0).
func (m *Machine) MfreeAll(parent uint32) {
	owned := map[uint32]bool{parent: true}

	for changed := true; changed; {
		changed = false

		for cur := m.mcbNext(m.rootMCB); cur != 0; cur = m.mcbNext(cur) {
			if owned[m.mcbParent(cur)] && !owned[cur] {
				owned[cur] = true
				changed = true
			}
		}
	}

	for cur := m.mcbNext(m.rootMCB); cur != 0; {
		next := m.mcbNext(cur)

		if owned[cur] {
			m.Mfree(cur + mcbHeaderSize)
		}

		cur = next
	}
}

// LargestGap reports the capacity of the single biggest gap currently available in area, for
// tests asserting the round-trip "alloc then free restores allocator state" property.
func (m *Machine) LargestGap(area AllocArea) uint32 {
	var largest uint32

	for _, g := range m.findGaps(area) {
		if c := g.capacity(); c > largest {
			largest = c
		}
	}

	return largest
}
