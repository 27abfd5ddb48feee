// run68 is a Human68k user-mode emulator: it loads a single X- or R-format executable and runs it
// to completion, translating its DOS/IOCS/FEFUNC calls onto the host filesystem and clock.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kg68k/run68x-sub000/internal/host"
	"github.com/kg68k/run68x-sub000/internal/human68k"
	"github.com/kg68k/run68x-sub000/internal/log"
	"github.com/kg68k/run68x-sub000/internal/runner"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("run68", flag.ContinueOnError)

	trace := fs.Bool("trace", false, "log every DOS/IOCS/FEFUNC call")
	debug := fs.Bool("debug", false, "enable debug-level logging")

	if err := fs.Parse(argv); err != nil {
		return 2
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: run68 [-trace] [-debug] program.x [args...]")

		return 2
	}

	path := fs.Arg(0)
	args := strings.Join(fs.Args()[1:], " ")

	logger := log.NewFormattedLogger(os.Stderr)
	if *debug {
		log.Level.Set(-4) // slog.LevelDebug
	}

	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		fmt.Fprintln(os.Stderr, "run68:", err)

		return 1
	}

	h := host.NewNative(root, logger)
	defer h.Shutdown()

	settings := human68k.DefaultSettings()
	settings.TraceFunc = *trace
	settings.Debug = *debug

	m := human68k.New(settings, h, logger)

	if err := m.StartProgram(filepath.Base(path), args); err != nil {
		fmt.Fprintln(os.Stderr, "run68:", err)

		return 1
	}

	r := runner.New(m)

	code, err := r.Run(context.Background())
	if err != nil {
		printFault(err)

		return 1
	}

	return int(code)
}

func printFault(err error) {
	var f *runner.Fault
	if !errors.As(err, &f) {
		fmt.Fprintln(os.Stderr, "run68:", err)

		return
	}

	fmt.Fprintf(os.Stderr, "run68: fault at pc=%#08x: %v\n", f.PC, f.Err)
	fmt.Fprintln(os.Stderr, "instruction history:")

	for _, e := range f.History {
		fmt.Fprintf(os.Stderr, "  pc=%#08x op=%#04x\n", e.PC, e.Opcode)
	}
}
