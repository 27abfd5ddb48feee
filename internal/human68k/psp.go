package human68k

// PSP (Program Segment Prefix) fields, as offsets from the owning MCB header -- the PSP itself
// starts at mcb+mcbHeaderSize and is pspSize bytes long.
const (
	pspSize = 256

	pspOffEnvPtr     = 0x10
	pspOffCmdLinePtr = 0x20
	pspOffBssPtr     = 0x30
	pspOffHeapPtr    = 0x34
	pspOffStackPtr   = 0x38
	pspOffParentSR   = 0x44
	pspOffParentSSP  = 0x46
	pspOffExePath    = 0x80
	pspOffExeName    = 0xc4

	pspPathMax = pspOffExeName - pspOffExePath // 68 bytes
	pspNameMax = pspSize - pspOffExeName       // 60 bytes
)

// pspAddr returns the address of the PSP owned by the MCB at mcbAddr.
func pspAddr(mcbAddr uint32) uint32 { return mcbAddr + mcbHeaderSize }

func (m *Machine) pspSetEnv(psp, v uint32)      { m.pokeL(psp+pspOffEnvPtr, v) }
func (m *Machine) pspSetCmdLine(psp, v uint32)  { m.pokeL(psp+pspOffCmdLinePtr, v) }
func (m *Machine) pspSetBss(psp, v uint32)      { m.pokeL(psp+pspOffBssPtr, v) }
func (m *Machine) pspSetHeap(psp, v uint32)     { m.pokeL(psp+pspOffHeapPtr, v) }
func (m *Machine) pspSetStack(psp, v uint32)    { m.pokeL(psp+pspOffStackPtr, v) }

func (m *Machine) pspEnv(psp uint32) uint32     { return m.peekL(psp + pspOffEnvPtr) }
func (m *Machine) pspCmdLine(psp uint32) uint32 { return m.peekL(psp + pspOffCmdLinePtr) }
func (m *Machine) pspHeap(psp uint32) uint32    { return m.peekL(psp + pspOffHeapPtr) }

// pspSetParentState records the caller's SR and SSP (widened into a longword, high word unused)
// so _EXIT/_EXIT2/_KEEPPR can restore them.
func (m *Machine) pspSetParentState(psp uint32, sr uint16, ssp uint32) {
	if err := m.Mem.PokeW(psp+pspOffParentSR, sr, true); err != nil {
		panic(err)
	}

	m.pokeL(psp+pspOffParentSSP, ssp)
}

func (m *Machine) pspParentState(psp uint32) (sr uint16, ssp uint32) {
	sr, err := m.Mem.PeekW(psp+pspOffParentSR, true)
	if err != nil {
		panic(err)
	}

	return sr, m.peekL(psp + pspOffParentSSP)
}

// pspSetPath writes the executable's search path and bare name as ASCIZ strings, truncating to
// fit the fixed PSP fields rather than failing outright -- a real Human68k PSP has no room to
// report the error anyway.
func (m *Machine) pspSetPath(psp uint32, path, name string) {
	m.pokeASCIZ(psp+pspOffExePath, path, pspPathMax)
	m.pokeASCIZ(psp+pspOffExeName, name, pspNameMax)
}

func (m *Machine) pokeASCIZ(addr uint32, s string, max int) {
	if len(s) >= max {
		s = s[:max-1]
	}

	for i := 0; i < len(s); i++ {
		if err := m.Mem.PokeB(addr+uint32(i), s[i], true); err != nil {
			panic(err)
		}
	}

	if err := m.Mem.PokeB(addr+uint32(len(s)), 0, true); err != nil {
		panic(err)
	}
}

// writeCmdLine packs a command line in the standard (non-HUPAIR) form: a length-prefixed Pascal
// string, ` args\0`. Lines over 255 bytes are silently truncated; building a HUPAIR-framed line is
// outside this core's scope (see SPEC_FULL.md on the command-line collaborator).
func (m *Machine) writeCmdLine(addr uint32, args string) {
	if len(args) > 255 {
		args = args[:255]
	}

	if err := m.Mem.PokeB(addr, byte(len(args)), true); err != nil {
		panic(err)
	}

	m.pokeASCIZ(addr+1, args, 256)
}

// isHupair reports whether the command line at addr begins with the "#HUPAIR\0" marker.
func (m *Machine) isHupair(addr uint32) bool {
	const marker = "#HUPAIR\x00"

	b, err := m.Mem.ReadBytes(addr, len(marker), true)
	if err != nil {
		return false
	}

	return string(b) == marker
}
