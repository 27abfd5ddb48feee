package human68k

import (
	"bytes"
	"io"
	"testing"

	"github.com/kg68k/run68x-sub000/internal/host"
)

// fakeHost is a minimal in-memory host.Host for exercising the DOS dispatch layer without
// touching the real filesystem or clock, in the style of a hand-rolled test double rather than a
// generated mock (there is no mocking library anywhere in the corpus to follow).
type fakeHost struct {
	files map[string]*bytes.Buffer
	now   int64
}

func newFakeHost() *fakeHost {
	return &fakeHost{files: map[string]*bytes.Buffer{}}
}

type fakeFile struct {
	name string
	buf  *bytes.Buffer
	pos  int64
}

func (f *fakeFile) Read(p []byte) (int, error) {
	if f.pos >= int64(f.buf.Len()) {
		return 0, io.EOF
	}

	n := copy(p, f.buf.Bytes()[f.pos:])
	f.pos += int64(n)

	return n, nil
}

func (f *fakeFile) Write(p []byte) (int, error) {
	data := f.buf.Bytes()
	if f.pos < int64(len(data)) {
		copy(data[f.pos:], p)
		if extra := int64(len(p)) - (int64(len(data)) - f.pos); extra > 0 {
			f.buf.Write(p[int64(len(p))-extra:])
		}
	} else {
		f.buf.Write(p)
	}

	f.pos += int64(len(p))

	return len(p), nil
}

func (f *fakeFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.pos = offset
	case io.SeekCurrent:
		f.pos += offset
	case io.SeekEnd:
		f.pos = int64(f.buf.Len()) + offset
	}

	return f.pos, nil
}

func (f *fakeFile) Close() error { return nil }

func wrapHandle(name string, buf *bytes.Buffer) host.FileHandle {
	return host.NewFileHandle(&fakeFile{name: name, buf: buf}, name)
}

func (h *fakeHost) ToLocaltime(unix int64) (int, int, int, int, int, int, int) {
	return 2024, 1, 1, 0, 0, 0, 1
}

func (h *fakeHost) Now() int64 { return h.now }

func (h *fakeHost) Utf8ToSjis(s string) []byte { return []byte(s) }
func (h *fakeHost) SjisToUtf8(b []byte) string { return string(b) }

func (h *fakeHost) CanonicalPathName(path string) (host.CanonicalPath, error) {
	return host.CanonicalPath{FullPath: path, Name: path}, nil
}

func (h *fakeHost) CreateNewfile(path string) (host.FileHandle, error) {
	if _, ok := h.files[path]; ok {
		return host.FileHandle{}, host.ErrFileExists
	}

	buf := &bytes.Buffer{}
	h.files[path] = buf

	return wrapHandle(path, buf), nil
}

func (h *fakeHost) Create(path string) (host.FileHandle, error) {
	buf := &bytes.Buffer{}
	h.files[path] = buf

	return wrapHandle(path, buf), nil
}

func (h *fakeHost) OpenFile(path string, mode host.OpenMode) (host.FileHandle, error) {
	buf, ok := h.files[path]
	if !ok {
		return host.FileHandle{}, host.ErrNoEntry
	}

	return wrapHandle(path, buf), nil
}

func (h *fakeHost) CloseFile(fh host.FileHandle) error { return nil }

func (h *fakeHost) ReadFileOrTty(fh host.FileHandle, buf []byte) (int, error) {
	if fh.Stream() == nil {
		return 0, nil
	}

	n, err := fh.Stream().Read(buf)
	if err == io.EOF {
		return n, nil
	}

	return n, err
}

func (h *fakeHost) WriteFile(fh host.FileHandle, buf []byte) (int, error) {
	if fh.Stream() == nil {
		return len(buf), nil
	}

	return fh.Stream().Write(buf)
}

func (h *fakeHost) SeekFile(fh host.FileHandle, offset int64, mode host.Seek) (int64, error) {
	return fh.Stream().Seek(offset, int(mode))
}

func (h *fakeHost) GetFileAttribute(path string) (int, error) { return 0, nil }
func (h *fakeHost) SetFileAttribute(path string, attr int) error { return nil }

func (h *fakeHost) Mkdir(path string) error  { return nil }
func (h *fakeHost) Rmdir(path string) error  { return nil }
func (h *fakeHost) Chdir(path string) error  { return nil }
func (h *fakeHost) Curdir(drive int) (string, error) { return "\\", nil }

func (h *fakeHost) Delete(path string) error {
	delete(h.files, path)

	return nil
}

func (h *fakeHost) Rename(oldpath, newpath string) error {
	h.files[newpath] = h.files[oldpath]
	delete(h.files, oldpath)

	return nil
}

func (h *fakeHost) GetFiledate(fh host.FileHandle) (host.Filedate, error) {
	return host.Filedate{}, nil
}

func (h *fakeHost) SetFiledate(fh host.FileHandle, fd host.Filedate) error { return nil }

func (h *fakeHost) IocsOntime() (uint32, uint32) { return 0, 0 }

func (h *fakeHost) Stdin() host.FileHandle  { return wrapHandle("stdin", &bytes.Buffer{}) }
func (h *fakeHost) Stdout() host.FileHandle { return wrapHandle("stdout", &bytes.Buffer{}) }
func (h *fakeHost) Stderr() host.FileHandle { return wrapHandle("stderr", &bytes.Buffer{}) }
func (h *fakeHost) Stdaux() host.FileHandle { return host.FileHandle{} }
func (h *fakeHost) Stdprn() host.FileHandle { return host.FileHandle{} }

func (h *fakeHost) Shutdown() {}

func newTestMachine(t *testing.T) *Machine {
	t.Helper()

	return New(DefaultSettings(), newFakeHost(), nil)
}
