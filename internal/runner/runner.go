// Package runner drives a [cpu.CPU] through [cpu.CPU.Step] until the guest exits or a fault
// occurs, keeping the short instruction-history ring the error path reports on abort.
package runner

import (
	"context"
	"fmt"

	"github.com/kg68k/run68x-sub000/internal/cpu"
	"github.com/kg68k/run68x-sub000/internal/human68k"
	"github.com/kg68k/run68x-sub000/internal/log"
)

// historyCap is the size of the instruction-history ring kept for fault reporting. Only the last
// 10 entries are surfaced in a [Fault], but a deeper ring gives a debugger collaborator more to
// work with if it inspects the runner directly.
const historyCap = 200

// reportDepth is how many trailing history entries a Fault reports, per SPEC_FULL.md's error
// handling design.
const reportDepth = 10

// Fault describes why Run stopped without the guest calling _EXIT/_EXIT2/_KEEPPR: a CPU exception
// that reached no handler, or a host failure. It carries the last reportDepth instructions executed
// so a caller can print a crash report without re-running anything.
type Fault struct {
	PC      uint32
	Err     error
	History []cpu.HistoryEntry
}

func (f *Fault) Error() string {
	return fmt.Sprintf("run68k: fault at pc=%#08x: %v", f.PC, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Runner wraps a [human68k.Machine], feeding its CPU through Step until the machine exits, a fault
// occurs, or ctx is cancelled.
type Runner struct {
	Machine *human68k.Machine

	log     *log.Logger
	history []cpu.HistoryEntry
}

// New wires m's instruction-history hook into a fresh Runner's ring buffer.
func New(m *human68k.Machine) *Runner {
	r := &Runner{Machine: m, log: m.Log()}

	m.CPU.History = func(e cpu.HistoryEntry) {
		r.history = append(r.history, e)
		if len(r.history) > historyCap {
			r.history = r.history[len(r.history)-historyCap:]
		}
	}

	return r
}

// Run steps the machine until it exits (the guest ran _EXIT/_EXIT2/_KEEPPR at nest depth 0), ctx is
// cancelled, or a fault occurs. It returns the guest's exit code on a clean exit.
func (r *Runner) Run(ctx context.Context) (exitCode uint8, err error) {
	for {
		if err := ctx.Err(); err != nil {
			r.log.Error("run aborted", "pc", fmt.Sprintf("%06x", r.Machine.CPU.PC), "error", err)

			return 0, err
		}

		pc := r.Machine.CPU.PC

		if err := r.Machine.CPU.Step(); err != nil {
			return 0, r.fault(pc, err)
		}

		if r.Machine.Exited {
			return r.Machine.ExitCode, nil
		}
	}
}

// Step executes a single instruction, for a debugger collaborator driving the machine one
// instruction at a time rather than running it to completion.
func (r *Runner) Step() error {
	pc := r.Machine.CPU.PC

	if err := r.Machine.CPU.Step(); err != nil {
		return r.fault(pc, err)
	}

	return nil
}

func (r *Runner) fault(pc uint32, err error) error {
	start := 0
	if len(r.history) > reportDepth {
		start = len(r.history) - reportDepth
	}

	trail := make([]cpu.HistoryEntry, len(r.history)-start)
	copy(trail, r.history[start:])

	r.log.Error("run aborted", "pc", fmt.Sprintf("%06x", pc), "error", err, "history", len(trail))

	return &Fault{PC: pc, Err: err, History: trail}
}
