package human68k

import "github.com/kg68k/run68x-sub000/internal/host"

// MaxFiles bounds the file-handle table. Indices 0..4 are pre-wired to the standard streams;
// 5..MaxFiles-1 are available to _OPEN/_CREATE/_NEWFILE.
const MaxFiles = 64

// fileEntry is one slot in the file-handle table.
type fileEntry struct {
	handle   host.FileHandle
	isOpened bool
	path     string
	nest     int // _EXEC nest depth the file was opened at, for _EXIT cleanup
}

func (m *Machine) initFileTable() {
	m.files[0] = fileEntry{handle: m.Host.Stdin(), isOpened: true, path: "stdin"}
	m.files[1] = fileEntry{handle: m.Host.Stdout(), isOpened: true, path: "stdout"}
	m.files[2] = fileEntry{handle: m.Host.Stderr(), isOpened: true, path: "stderr"}
	m.files[3] = fileEntry{handle: m.Host.Stdaux(), isOpened: true, path: "stdaux"}
	m.files[4] = fileEntry{handle: m.Host.Stdprn(), isOpened: true, path: "stdprn"}
}

// findFreeFileNo scans from index 5 and returns the first closed entry, or -1 if the table is
// full (host.ErrTooManyFiles).
func (m *Machine) findFreeFileNo() int {
	for i := 5; i < MaxFiles; i++ {
		if !m.files[i].isOpened {
			return i
		}
	}

	return -1
}

// closeFilesAtNest closes every file opened at or beyond the given _EXEC nest depth, as part of
// _EXIT/_EXIT2/_KEEPPR cleanup.
func (m *Machine) closeFilesAtNest(depth int) {
	for i := 5; i < MaxFiles; i++ {
		if m.files[i].isOpened && m.files[i].nest >= depth {
			_ = m.Host.CloseFile(m.files[i].handle)
			m.files[i] = fileEntry{}
		}
	}
}
