package host

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Console is stdin set into raw mode so that Human68k's blocking keyboard reads (DOS _INKEY,
// IOCS _B_KEYINP, and plain _READ against handle 0) see one byte per keystroke rather than
// waiting on the host line editor. Adapted from the console handling the wider emulator's
// terminal front-end uses for its own keyboard device.
type Console struct {
	fd    int
	state *term.State
	in    *bufio.Reader
}

// errNoTTY is returned when stdin is not a terminal; Native falls back to plain buffered stdin in
// that case, which is the right behavior when input is a pipe or redirected file.
var errNoTTY = errors.New("host: stdin is not a terminal")

func newConsole() (*Console, error) {
	fd := int(os.Stdin.Fd())

	if !term.IsTerminal(fd) {
		return nil, errNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errNoTTY, err)
	}

	c := &Console{fd: fd, state: saved, in: bufio.NewReader(os.Stdin)}

	if err := c.setTermios(1, 0); err != nil {
		_ = term.Restore(fd, saved)

		return nil, err
	}

	return c, nil
}

// setTermios configures VMIN/VTIME directly, since term.MakeRaw's canonical raw mode already
// disables line buffering and echo but leaves read blocking behavior at its cooked defaults.
func (c *Console) setTermios(vmin, vtime byte) error {
	termIO, err := unix.IoctlGetTermios(c.fd, ioctlGetTermios)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	return unix.IoctlSetTermios(c.fd, ioctlSetTermios, termIO)
}

// Read blocks for at least one byte, exactly as a Human68k console read does.
func (c *Console) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	b, err := c.in.ReadByte()
	if err != nil {
		return 0, err
	}

	buf[0] = b

	n := 1
	for n < len(buf) && c.in.Buffered() > 0 {
		b, err := c.in.ReadByte()
		if err != nil {
			break
		}

		buf[n] = b
		n++
	}

	return n, nil
}

// Restore returns the terminal to its state before raw mode was engaged. Safe to call more than
// once; only the first call has any effect.
func (c *Console) Restore() {
	if c == nil || c.state == nil {
		return
	}

	_ = syscall.SetNonblock(c.fd, false)
	_ = term.Restore(c.fd, c.state)
	c.state = nil
}
