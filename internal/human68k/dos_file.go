package human68k

import (
	"strings"

	"github.com/kg68k/run68x-sub000/internal/cpu"
	"github.com/kg68k/run68x-sub000/internal/host"
	"github.com/kg68k/run68x-sub000/internal/mem"
)

// This core's own DOS argument convention packs every argument into a 4-byte stack slot
// regardless of its natural width, in ascending address order starting at the stack pointer the
// caller had at the moment of the call. Real Human68k packs bytes/words more tightly; since this
// core's own tests are the only callers that need to agree with it, the wider convention trades a
// few bytes of guest stack for a dispatcher with no per-call width table (see DESIGN.md).

func (m *Machine) doOpen(c *cpu.CPU) error {
	path := m.argPath(c, 0)
	mode := host.OpenMode(m.argL(c, 4))

	no := m.findFreeFileNo()
	if no < 0 {
		setD0Err(c, host.ErrTooManyFiles)

		return nil
	}

	fh, err := m.Host.OpenFile(path, mode)
	if err != nil {
		setD0Err(c, err.(host.Err))

		return nil
	}

	m.files[no] = fileEntry{handle: fh, isOpened: true, path: path, nest: len(m.nest)}
	c.D[0] = uint32(no)

	return nil
}

func (m *Machine) doCreateOrNew(c *cpu.CPU, truncateExisting bool) error {
	path := m.argPath(c, 0)

	no := m.findFreeFileNo()
	if no < 0 {
		setD0Err(c, host.ErrTooManyFiles)

		return nil
	}

	var (
		fh  host.FileHandle
		err error
	)

	if truncateExisting {
		fh, err = m.Host.Create(path)
	} else {
		fh, err = m.Host.CreateNewfile(path)
	}

	if err != nil {
		if he, ok := err.(host.Err); ok {
			setD0Err(c, he)
		} else {
			setD0Err(c, host.ErrIllegalFunction)
		}

		return nil
	}

	m.files[no] = fileEntry{handle: fh, isOpened: true, path: path, nest: len(m.nest)}
	c.D[0] = uint32(no)

	return nil
}

func (m *Machine) withFile(c *cpu.CPU, off uint32) (*fileEntry, bool) {
	no := m.argL(c, off)
	if no >= MaxFiles || !m.files[no].isOpened {
		setD0Err(c, host.ErrBadFile)

		return nil, false
	}

	return &m.files[no], true
}

func (m *Machine) doClose(c *cpu.CPU) error {
	fe, ok := m.withFile(c, 0)
	if !ok {
		return nil
	}

	_ = m.Host.CloseFile(fe.handle)
	*fe = fileEntry{}
	c.D[0] = 0

	return nil
}

// doRead implements _READ, including the length==0 quirk documented in SPEC_FULL.md 8: a
// zero-length request returns 0 immediately without even validating the buffer address.
func (m *Machine) doRead(c *cpu.CPU) error {
	length := m.argL(c, 8)
	if length == 0 {
		c.D[0] = 0

		return nil
	}

	fe, ok := m.withFile(c, 0)
	if !ok {
		return nil
	}

	bufAddr := m.argL(c, 4)

	span := c.Mem.GetAccessibleMemory(bufAddr, int(length), true)
	if len(span) == 0 {
		return &mem.BusError{Addr: bufAddr, Dir: mem.Read}
	}

	n, err := m.Host.ReadFileOrTty(fe.handle, span)
	if err != nil {
		setD0Err(c, err.(host.Err))

		return nil
	}

	if n == len(span) && uint32(len(span)) < length {
		// The request buffer straddled an unmapped boundary and the host happened to supply
		// exactly the accessible prefix; probe one more byte to tell "file ended right there"
		// from "the guest buffer itself runs off the edge of memory".
		probe := make([]byte, 1)

		if pn, perr := m.Host.ReadFileOrTty(fe.handle, probe); perr == nil && pn > 0 {
			return &mem.BusError{Addr: bufAddr + uint32(n), Dir: mem.Read}
		}
	}

	c.D[0] = uint32(n)

	return nil
}

func (m *Machine) doWrite(c *cpu.CPU) error {
	fe, ok := m.withFile(c, 0)
	if !ok {
		return nil
	}

	bufAddr := m.argL(c, 4)
	length := m.argL(c, 8)

	data, err := c.Mem.ReadBytes(bufAddr, int(length), true)
	if err != nil {
		return err
	}

	n, werr := m.Host.WriteFile(fe.handle, data)
	if werr != nil {
		setD0Err(c, werr.(host.Err))

		return nil
	}

	c.D[0] = uint32(n)

	return nil
}

func (m *Machine) doSeek(c *cpu.CPU) error {
	fe, ok := m.withFile(c, 0)
	if !ok {
		return nil
	}

	offset := int64(int32(m.argL(c, 4)))
	mode := host.Seek(m.argL(c, 8))

	pos, err := m.Host.SeekFile(fe.handle, offset, mode)
	if err != nil {
		setD0Err(c, host.ErrCantSeek)

		return nil
	}

	c.D[0] = uint32(pos)

	return nil
}

func (m *Machine) doDup(c *cpu.CPU) error {
	fe, ok := m.withFile(c, 0)
	if !ok {
		return nil
	}

	no := m.findFreeFileNo()
	if no < 0 {
		setD0Err(c, host.ErrTooManyFiles)

		return nil
	}

	m.files[no] = *fe
	c.D[0] = uint32(no)

	return nil
}

func (m *Machine) doDup2(c *cpu.CPU) error {
	fe, ok := m.withFile(c, 0)
	if !ok {
		return nil
	}

	newNo := m.argL(c, 4)
	if newNo >= MaxFiles {
		setD0Err(c, host.ErrBadFile)

		return nil
	}

	if m.files[newNo].isOpened {
		_ = m.Host.CloseFile(m.files[newNo].handle)
	}

	m.files[newNo] = *fe
	c.D[0] = 0

	return nil
}

func (m *Machine) doChmod(c *cpu.CPU) error {
	path := m.argPath(c, 0)
	attr := int32(m.argL(c, 4))

	if strings.ContainsAny(path, "*?") {
		setD0Err(c, host.ErrIllegalFilename)

		return nil
	}

	if attr == -1 {
		cur, err := m.Host.GetFileAttribute(path)
		if err != nil {
			setD0Err(c, err.(host.Err))

			return nil
		}

		c.D[0] = uint32(cur)

		return nil
	}

	if err := m.Host.SetFileAttribute(path, int(attr)); err != nil {
		setD0Err(c, err.(host.Err))

		return nil
	}

	c.D[0] = 0

	return nil
}

func (m *Machine) doFiledate(c *cpu.CPU) error {
	fe, ok := m.withFile(c, 0)
	if !ok {
		return nil
	}

	packed := m.argL(c, 4)
	if int32(packed) == -1 {
		fd, err := m.Host.GetFiledate(fe.handle)
		if err != nil {
			setD0Err(c, err.(host.Err))

			return nil
		}

		c.D[0] = uint32(fd.Date)<<16 | uint32(fd.Time)

		return nil
	}

	fd := host.Filedate{Date: uint16(packed >> 16), Time: uint16(packed)}
	if err := m.Host.SetFiledate(fe.handle, fd); err != nil {
		setD0Err(c, err.(host.Err))

		return nil
	}

	c.D[0] = 0

	return nil
}

func (m *Machine) doDelete(c *cpu.CPU) error {
	if err := m.Host.Delete(m.argPath(c, 0)); err != nil {
		setD0Err(c, err.(host.Err))

		return nil
	}

	c.D[0] = 0

	return nil
}

func (m *Machine) doRename(c *cpu.CPU) error {
	if err := m.Host.Rename(m.argPath(c, 0), m.argPath(c, 4)); err != nil {
		setD0Err(c, err.(host.Err))

		return nil
	}

	c.D[0] = 0

	return nil
}

func (m *Machine) doMkdir(c *cpu.CPU) error {
	if err := m.Host.Mkdir(m.argPath(c, 0)); err != nil {
		setD0Err(c, err.(host.Err))

		return nil
	}

	c.D[0] = 0

	return nil
}

func (m *Machine) doRmdir(c *cpu.CPU) error {
	if err := m.Host.Rmdir(m.argPath(c, 0)); err != nil {
		setD0Err(c, err.(host.Err))

		return nil
	}

	c.D[0] = 0

	return nil
}

func (m *Machine) doChdir(c *cpu.CPU) error {
	if err := m.Host.Chdir(m.argPath(c, 0)); err != nil {
		setD0Err(c, err.(host.Err))

		return nil
	}

	c.D[0] = 0

	return nil
}

func (m *Machine) doCurdir(c *cpu.CPU) error {
	drive := m.argL(c, 0)
	bufAddr := m.argL(c, 4)

	dir, err := m.Host.Curdir(int(drive))
	if err != nil {
		setD0Err(c, err.(host.Err))

		return nil
	}

	m.pokeASCIZ(bufAddr, dir, 65)
	c.D[0] = 0

	return nil
}

// doMaketmp implements _MAKETMP: '?' characters in the name are replaced with digits starting at
// "0", retried with an incrementing trailing digit sequence on EEXIST until success or rollover.
func (m *Machine) doMaketmp(c *cpu.CPU) error {
	pathAddr := m.argL(c, 0)

	raw, err := c.Mem.GetStringSuper(pathAddr)
	if err != nil {
		return err
	}

	template := m.Host.SjisToUtf8(raw)

	qCount := strings.Count(template, "?")
	if qCount == 0 {
		setD0Err(c, host.ErrIllegalFilename)

		return nil
	}

	no := m.findFreeFileNo()
	if no < 0 {
		setD0Err(c, host.ErrTooManyFiles)

		return nil
	}

	max := 1
	for i := 0; i < qCount; i++ {
		max *= 10
	}

	for n := 0; n < max; n++ {
		digits := padDigits(n, qCount)

		candidate := strings.Replace(template, strings.Repeat("?", qCount), digits, 1)

		fh, err := m.Host.CreateNewfile(candidate)
		if err == nil {
			m.files[no] = fileEntry{handle: fh, isOpened: true, path: candidate, nest: len(m.nest)}
			m.pokeASCIZ(pathAddr, candidate, len(raw)+1)
			c.D[0] = uint32(no)

			return nil
		}

		if he, ok := err.(host.Err); !ok || he != host.ErrFileExists {
			setD0Err(c, host.ErrIllegalFilename)

			return nil
		}
	}

	setD0Err(c, host.ErrFileExists)

	return nil
}

func padDigits(n, width int) string {
	s := make([]byte, width)

	for i := width - 1; i >= 0; i-- {
		s[i] = byte('0' + n%10)
		n /= 10
	}

	return string(s)
}
