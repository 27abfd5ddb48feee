// Package human68k implements the Human68k OS personality on top of the raw M68000 interpreter in
// internal/cpu: the MCB allocator, the PSP/file-handle bookkeeping, the X/R executable loader, and
// the DOS/IOCS/FEFUNC system-call dispatch reached through F-line opcodes and TRAP #15.
package human68k

import (
	"fmt"

	"github.com/kg68k/run68x-sub000/internal/cpu"
	"github.com/kg68k/run68x-sub000/internal/host"
	"github.com/kg68k/run68x-sub000/internal/log"
	"github.com/kg68k/run68x-sub000/internal/mem"
)

// Settings configures a Machine. It is immutable once passed to New: a caller wanting different
// settings constructs a fresh Machine rather than mutating one in place.
type Settings struct {
	MainMemorySize uint32 // bytes; bounded to 1-12 MiB in 1 MiB steps by the caller's choosing
	HighMemorySize uint32 // bytes; one of {0,16,32,64,128,256,384,512,768} MiB
	SupervisorEnd  uint32 // size of the low, supervisor-only OS workarea

	TrapPC    uint32 // breakpoint address, or 0
	TraceFunc bool   // log every DOS/IOCS/FEFUNC call
	Debug     bool
	IOThrough bool // bypass translation buffers, talk to the host file directly
}

// DefaultSettings matches the documented defaults: 12 MiB main memory, no high memory.
func DefaultSettings() Settings {
	return Settings{
		MainMemorySize: 12 << 20,
		HighMemorySize: 0,
		SupervisorEnd:  0x2000,
	}
}

// nestFrame is one level of the _EXEC call stack: the caller's PC/SR/SSP to resume into on
// _EXIT/_EXIT2/_KEEPPR, and the PSP address of the program at this depth.
type nestFrame struct {
	psp uint32
}

const maxNestDepth = 16

// vectorStubAddr is where the default RTE-only exception handler lives: just past the 256-entry,
// 1 KiB vector table and comfortably below even the smallest sane SupervisorEnd.
const vectorStubAddr = 0x400

// Machine is the complete Human68k process image: the CPU core, its memory, the MCB chain, the
// file-handle table, and the host it talks to. It implements [cpu.SystemCallHandler], so a
// *cpu.CPU constructed with OS: machine routes every F-line and TRAP #15 opcode here.
type Machine struct {
	CPU  *cpu.CPU
	Mem  *mem.Space
	Host host.Host

	Settings Settings

	log *log.Logger

	rootMCB   uint32
	allocArea AllocArea

	files [MaxFiles]fileEntry

	nest       []nestFrame
	currentPSP uint32

	// Exited is set by _EXIT/_EXIT2/_KEEPPR at nest depth 0: there is no parent to return to, and
	// the runner should stop the instruction loop. ExitCode is D0.b from _EXIT2, or 0 from _EXIT.
	Exited   bool
	ExitCode uint8
}

// New creates a Machine with a fresh CPU and memory space sized per settings, wired to host for
// every system call that touches the outside world.
func New(settings Settings, h host.Host, logger *log.Logger) *Machine {
	if logger == nil {
		logger = log.DefaultLogger()
	}

	m := &Machine{
		Settings: settings,
		Host:     h,
		log:      logger,
	}

	m.Mem = mem.New(settings.MainMemorySize, settings.HighMemorySize, settings.SupervisorEnd, logger)
	m.CPU = cpu.New(m.Mem, logger)
	m.CPU.OS = m

	// A guest that executes a privilege violation, an unclaimed F-line opcode, or any other
	// vector this core delivers without OS involvement must come back via RTE rather than jump to
	// whatever garbage sits at a zero-initialized vector slot.
	if err := m.CPU.InstallDefaultVectors(vectorStubAddr); err != nil {
		panic(fmt.Errorf("installing default exception vectors: %w", err))
	}

	m.rootMCB = settings.SupervisorEnd
	m.initMCBChain(m.rootMCB)
	m.allocArea = AreaMainOnly

	m.initFileTable()

	return m
}

// Log returns the logger m was built with, for a collaborator (the runner, a debugger front end)
// that needs to log against the same sink and level without holding its own reference.
func (m *Machine) Log() *log.Logger { return m.log }

// Fault wraps a Human68k-level fault reported by the OS personality up through cpu.Step as a Go
// error, e.g. a divide-by-zero FEFUNC call reaching a guest that never trapped it.
type Fault struct {
	Code host.Err
	Call string
}

func (f *Fault) Error() string { return fmt.Sprintf("%s: %s", f.Call, f.Code) }
