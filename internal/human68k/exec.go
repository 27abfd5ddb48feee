package human68k

import (
	"fmt"
	"strings"

	"github.com/kg68k/run68x-sub000/internal/cpu"
	"github.com/kg68k/run68x-sub000/internal/host"
)

// readWholeFile pulls an entire host file into memory through the Host abstraction, for the
// loader (which needs the complete image before it can compute relocation and bss layout).
func (m *Machine) readWholeFile(path string) ([]byte, error) {
	fh, err := m.Host.OpenFile(path, host.OpenRead)
	if err != nil {
		return nil, err
	}
	defer m.Host.CloseFile(fh)

	var out []byte

	buf := make([]byte, 64*1024)

	for {
		n, err := m.Host.ReadFileOrTty(fh, buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}

		if n == 0 || err != nil {
			break
		}
	}

	return out, nil
}

// StartProgram loads path as the initial (nest depth 0) process, builds its PSP, points the CPU
// at its entry point in user mode with a fresh stack, and packs args as its command line. It is
// the entry point cmd/run68 calls once at startup.
func (m *Machine) StartProgram(path, args string) error {
	data, err := m.readWholeFile(path)
	if err != nil {
		return fmt.Errorf("human68k: %s: %w", path, err)
	}

	forceX := strings.HasSuffix(strings.ToLower(path), ".x")

	return m.startImage(data, forceX, path, args, nil)
}

// startImage sizes the executable in data, allocates an MCB large enough for its PSP, code/data/bss,
// environment and stack, loads (and, for X-format, relocates) it just past the PSP, builds the
// PSP, and either points the CPU at the entry (when parent is nil, i.e. the first
// process) or leaves the caller to push a nest frame (child of _EXEC).
func (m *Machine) startImage(data []byte, forceX bool, path, args string, parent *nestFrame) error {
	const (
		envSize   = 4096
		stackSize = 64 * 1024
	)

	size, err := probeImage(data, forceX)
	if err != nil {
		return err
	}

	total := pspSize + size.progSize + envSize + stackSize

	payload, ok, errWord := m.Malloc(total, 0, FromLower, m.allocArea)
	if !ok {
		return fmt.Errorf("human68k: cannot allocate process image: %#x", errWord)
	}

	pspOwner := payload - mcbHeaderSize
	m.setMcbParent(pspOwner, pspOwner) // a process owns its own root allocation

	base := payload + pspSize // the PSP occupies the first pspSize bytes of the payload

	img, err := m.loadImage(data, base, forceX)
	if err != nil {
		m.Mfree(payload)

		return err
	}

	codeEnd := base + img.progSize
	envAddr := codeEnd
	stackTop := envAddr + envSize + stackSize

	m.pokeASCIZ(envAddr, "", 1) // empty environment block, just a terminating NUL
	m.writeCmdLine(envAddr+envSize-256, args)

	psp := pspOwner + mcbHeaderSize
	m.pspSetEnv(psp, envAddr)
	m.pspSetCmdLine(psp, envAddr+envSize-256)
	m.pspSetBss(psp, base+img.progSize2)
	m.pspSetHeap(psp, base+img.progSize)
	m.pspSetStack(psp, stackTop)
	m.pspSetPath(psp, path, lastComponent(path))

	if parent != nil {
		m.pspSetParentState(psp, m.CPU.SR, m.CPU.A[cpu.SP])
	}

	m.currentPSP = psp

	entry := img.entry

	m.CPU.D = [8]uint32{}
	m.CPU.A = [8]uint32{}
	m.CPU.A[0] = pspOwner
	m.CPU.A[1] = base + img.progSize2
	m.CPU.A[2] = m.pspCmdLine(psp)
	m.CPU.A[3] = envAddr
	m.CPU.A[4] = entry
	m.CPU.A[cpu.SP] = stackTop
	m.CPU.PC = entry
	m.CPU.SetSupervisor(false)

	return nil
}

func lastComponent(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}

	return path
}

// doExit and doKeeppr both restore the parent's PC/SSP/SR from the current PSP, release the MCB
// cascade it owns (doKeeppr instead keeps the resident part alive), close files opened at this
// nest depth, and either terminate the run (nest depth 0) or resume the parent (deeper nests).
func (m *Machine) doExit(code uint8) error {
	return m.unwind(code, false)
}

// doKeeppr implements _KEEPPR: D1 carries the resident size in bytes to keep allocated; the MCB is
// shrunk to that size rather than freed outright, so the code stays resident after return.
func (m *Machine) doKeeppr() error {
	owner := m.currentPSP - mcbHeaderSize
	residentSize := m.CPU.D[1]

	// A failed shrink (the requested size doesn't fit the allocator's bookkeeping) just leaves the
	// whole block resident rather than failing the call outright.
	m.Setblock(owner+mcbHeaderSize, residentSize)

	return m.unwind(uint8(m.CPU.D[0]), true)
}

func (m *Machine) unwind(code uint8, keep bool) error {
	depth := len(m.nest)

	m.closeFilesAtNest(depth)

	if !keep {
		m.MfreeAll(m.currentPSP - mcbHeaderSize)
	}

	if depth == 0 {
		m.Exited = true
		m.ExitCode = code

		return nil
	}

	frame := m.nest[depth-1]
	m.nest = m.nest[:depth-1]

	sr, ssp := m.pspParentState(m.currentPSP)
	m.CPU.SetSupervisor(true)
	m.CPU.A[cpu.SP] = ssp
	m.CPU.SR = sr
	m.currentPSP = frame.psp

	return nil
}

// doExec implements DOS _EXEC. Mode 0 loads and transfers control to a child process; mode 1
// loads but returns the entry address to the parent instead of transferring control; mode 2 only
// checks the path resolves; other modes are not supported by this core and return
// ErrIllegalFunction, a scope decision recorded in DESIGN.md.
func (m *Machine) doExec(c *cpu.CPU) error {
	mode := m.argL(c, 0)
	path := m.argPath(c, 4)
	cmdline := m.argPath(c, 8)

	if len(m.nest) >= maxNestDepth {
		setD0Err(c, host.ErrNoMemory)

		return nil
	}

	switch mode {
	case 2:
		if _, err := m.readWholeFile(path); err != nil {
			setD0Err(c, host.ErrNoEntry)
		} else {
			c.D[0] = 0
		}

		return nil

	case 0:
		data, err := m.readWholeFile(path)
		if err != nil {
			setD0Err(c, host.ErrNoEntry)

			return nil
		}

		parentFrame := nestFrame{psp: m.currentPSP}
		m.nest = append(m.nest, parentFrame)

		forceX := strings.HasSuffix(strings.ToLower(path), ".x")

		if err := m.startImage(data, forceX, path, cmdline, &parentFrame); err != nil {
			m.nest = m.nest[:len(m.nest)-1]
			setD0Err(c, host.ErrNoMemory)

			return nil
		}

		return nil

	case 1:
		// Load-only: build the child's PSP and memory image but leave the calling process running.
		// The caller gets the entry address back and is responsible for transferring control
		// itself (e.g. a debugger front-end stepping into the child).
		data, err := m.readWholeFile(path)
		if err != nil {
			setD0Err(c, host.ErrNoEntry)

			return nil
		}

		savedPSP, savedPC, savedSR, savedSP := m.currentPSP, c.PC, c.SR, c.A[cpu.SP]

		forceX := strings.HasSuffix(strings.ToLower(path), ".x")
		if err := m.startImage(data, forceX, path, cmdline, &nestFrame{psp: savedPSP}); err != nil {
			setD0Err(c, host.ErrNoMemory)

			return nil
		}

		childEntry, childPSP := c.PC, m.currentPSP

		m.currentPSP, c.PC, c.SR, c.A[cpu.SP] = savedPSP, savedPC, savedSR, savedSP
		c.D[0] = childEntry
		c.A[0] = childPSP - mcbHeaderSize

		return nil

	default:
		setD0Err(c, host.ErrIllegalFunction)

		return nil
	}
}
