package host

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kg68k/run68x-sub000/internal/log"
)

// Native is the one Host implementation this core ships: a thin layer over the standard library
// plus golang.org/x/sys/unix for file-attribute bits and golang.org/x/term (via [Console]) for
// raw-mode terminal reads.
type Native struct {
	root string // host directory guest path "A:\" (or bare "\") resolves against
	cwd  string // current guest-relative directory, host path form

	console *Console

	log *log.Logger
}

// NewNative creates a Native host rooted at root (a host directory standing in for the guest's
// drive A:). If stdin is a terminal, raw console mode is engaged for ReadFileOrTty on Stdin();
// otherwise console reads fall back to ordinary buffered stdin, and a program expecting an
// interactive console will simply see EOF at end of input.
func NewNative(root string, logger *log.Logger) *Native {
	if logger == nil {
		logger = log.DefaultLogger()
	}

	n := &Native{
		root: filepath.Clean(root),
		cwd:  string(filepath.Separator),
		log:  logger,
	}

	if c, err := newConsole(); err == nil {
		n.console = c
	} else {
		logger.Debug("console unavailable, falling back to plain stdin", "error", err)
	}

	return n
}

func (n *Native) ToLocaltime(unixTime int64) (year, month, day, hour, min, sec, wday int) {
	t := time.Unix(unixTime, 0).Local()

	return t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), int(t.Weekday())
}

func (n *Native) Now() int64 { return time.Now().Unix() }

// hostPath maps a Human68k path (drive letter plus backslashes) to a host filesystem path rooted
// at n.root. A leading drive letter is stripped without being checked, so every drive maps to the
// same tree.
func (n *Native) hostPath(guestPath string) string {
	p := guestPath

	if len(p) >= 2 && p[1] == ':' {
		p = p[2:]
	}

	p = strings.ReplaceAll(p, `\`, string(filepath.Separator))

	if !filepath.IsAbs(p) {
		p = filepath.Join(n.cwd, p)
	}

	return filepath.Join(n.root, p)
}

func (n *Native) CanonicalPathName(guestPath string) (CanonicalPath, error) {
	clean := strings.ReplaceAll(guestPath, `\`, "/")

	drive := ""
	if len(clean) >= 2 && clean[1] == ':' {
		drive = strings.ToUpper(clean[:1])
		clean = clean[2:]
	}

	if drive != "" && drive != "A" {
		return CanonicalPath{}, ErrIllegalDrive
	}

	dir, base := filepath.Split(clean)
	dir = strings.TrimSuffix(dir, "/")

	name, ext := base, ""
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		name, ext = base[:i], base[i+1:]
	}

	if len(dir) > 64 {
		return CanonicalPath{}, ErrIllegalFilename
	}

	if len(name) > 18 {
		return CanonicalPath{}, ErrIllegalFilename
	}

	if len(ext) > 4 {
		return CanonicalPath{}, ErrIllegalFilename
	}

	return CanonicalPath{
		Dir:      dir,
		Name:     name,
		Ext:      ext,
		NameLen:  len(name),
		ExtLen:   len(ext),
		FullPath: guestPath,
	}, nil
}

func mapOsErr(err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return ErrNoEntry
	case os.IsExist(err):
		return ErrFileExists
	case os.IsPermission(err):
		return ErrReadOnly
	default:
		return ErrIllegalFunction
	}
}

func (n *Native) CreateNewfile(guestPath string) (FileHandle, error) {
	f, err := os.OpenFile(n.hostPath(guestPath), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return FileHandle{}, mapOsErr(err)
	}

	return FileHandle{rc: f, name: guestPath}, nil
}

// Create truncates (or creates) the file, unlike CreateNewfile which fails if it already exists.
// It backs the DOS _CREATE call, distinct from _NEWFILE's CreateNewfile.
func (n *Native) Create(guestPath string) (FileHandle, error) {
	f, err := os.OpenFile(n.hostPath(guestPath), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return FileHandle{}, mapOsErr(err)
	}

	return FileHandle{rc: f, name: guestPath}, nil
}

func (n *Native) OpenFile(guestPath string, mode OpenMode) (FileHandle, error) {
	flag := os.O_RDONLY

	switch mode {
	case OpenWrite:
		flag = os.O_WRONLY
	case OpenReadWrite:
		flag = os.O_RDWR
	}

	info, statErr := os.Stat(n.hostPath(guestPath))
	if statErr == nil && info.IsDir() {
		return FileHandle{}, ErrIsDirectory
	}

	f, err := os.OpenFile(n.hostPath(guestPath), flag, 0)
	if err != nil {
		return FileHandle{}, mapOsErr(err)
	}

	return FileHandle{rc: f, name: guestPath}, nil
}

func (n *Native) CloseFile(fh FileHandle) error {
	if fh.console || fh.rc == nil {
		return nil
	}

	return mapOsErr(fh.rc.Close())
}

func (n *Native) ReadFileOrTty(fh FileHandle, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	if fh.console {
		if n.console != nil {
			return n.console.Read(buf)
		}

		return os.Stdin.Read(buf)
	}

	if fh.rc == nil {
		return 0, nil
	}

	count, err := fh.rc.Read(buf)
	if err == io.EOF {
		return count, nil
	}

	return count, mapOsErr(err)
}

func (n *Native) WriteFile(fh FileHandle, buf []byte) (int, error) {
	if fh.rc == nil {
		return len(buf), nil // stdaux/stdprn: discard
	}

	count, err := fh.rc.Write(buf)

	return count, mapOsErr(err)
}

func (n *Native) SeekFile(fh FileHandle, offset int64, mode Seek) (int64, error) {
	if fh.rc == nil {
		return 0, ErrCantSeek
	}

	var whence int

	switch mode {
	case SeekSet:
		whence = io.SeekStart
	case SeekCur:
		whence = io.SeekCurrent
	case SeekEnd:
		whence = io.SeekEnd
	}

	pos, err := fh.rc.Seek(offset, whence)
	if err != nil {
		return 0, ErrCantSeek
	}

	return pos, nil
}

func (n *Native) GetFileAttribute(guestPath string) (int, error) {
	var stat unix.Stat_t

	if err := unix.Stat(n.hostPath(guestPath), &stat); err != nil {
		return 0, mapOsErr(err)
	}

	attr := 0

	if stat.Mode&unix.S_IFMT == unix.S_IFDIR {
		attr |= AttrDirectory
	} else {
		attr |= AttrArchive
	}

	if stat.Mode&0o200 == 0 {
		attr |= AttrReadOnly
	}

	if strings.HasPrefix(filepath.Base(guestPath), ".") {
		attr |= AttrHidden
	}

	return attr, nil
}

func (n *Native) SetFileAttribute(guestPath string, attr int) error {
	var stat unix.Stat_t
	if err := unix.Stat(n.hostPath(guestPath), &stat); err != nil {
		return mapOsErr(err)
	}

	mode := stat.Mode &^ 0o222
	if attr&AttrReadOnly == 0 {
		mode |= 0o200
	}

	return mapOsErr(unix.Chmod(n.hostPath(guestPath), uint32(mode)&0o777))
}

func (n *Native) Mkdir(guestPath string) error {
	return mapOsErr(os.Mkdir(n.hostPath(guestPath), 0o755))
}

func (n *Native) Rmdir(guestPath string) error {
	return mapOsErr(os.Remove(n.hostPath(guestPath)))
}

func (n *Native) Chdir(guestPath string) error {
	target := n.hostPath(guestPath)

	info, err := os.Stat(target)
	if err != nil {
		return mapOsErr(err)
	}

	if !info.IsDir() {
		return ErrNoDirectory
	}

	rel, err := filepath.Rel(n.root, target)
	if err != nil {
		return ErrIllegalFilename
	}

	n.cwd = string(filepath.Separator) + rel

	return nil
}

func (n *Native) Curdir(drive int) (string, error) {
	if drive != 0 && drive != 1 { // 0 = current drive, 1 = 'A'
		return "", ErrIllegalDrive
	}

	cwd := strings.ReplaceAll(n.cwd, string(filepath.Separator), `\`)
	if cwd == "" {
		cwd = `\`
	}

	return cwd, nil
}

func (n *Native) Delete(guestPath string) error {
	return mapOsErr(os.Remove(n.hostPath(guestPath)))
}

func (n *Native) Rename(oldPath, newPath string) error {
	return mapOsErr(os.Rename(n.hostPath(oldPath), n.hostPath(newPath)))
}

func (n *Native) GetFiledate(fh FileHandle) (Filedate, error) {
	f, ok := fh.rc.(*os.File)
	if !ok || f == nil {
		return Filedate{}, ErrBadFile
	}

	info, err := f.Stat()
	if err != nil {
		return Filedate{}, mapOsErr(err)
	}

	t := info.ModTime().Local()

	return Filedate{
		Date: PackDate(t.Year(), int(t.Month()), t.Day()),
		Time: PackTime(t.Hour(), t.Minute(), t.Second()),
	}, nil
}

func (n *Native) SetFiledate(fh FileHandle, fd Filedate) error {
	f, ok := fh.rc.(*os.File)
	if !ok || f == nil {
		return ErrBadFile
	}

	year := int(fd.Date>>9) + 1980
	month := time.Month((fd.Date >> 5) & 0xf)
	day := int(fd.Date & 0x1f)
	hour := int(fd.Time >> 11)
	min := int((fd.Time >> 5) & 0x3f)
	sec := int(fd.Time&0x1f) * 2

	t := time.Date(year, month, day, hour, min, sec, 0, time.Local)

	return mapOsErr(os.Chtimes(f.Name(), t, t))
}

func (n *Native) IocsOntime() (centiseconds uint32, days uint32) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	centiseconds = uint32(now.Sub(midnight).Milliseconds() / 10)
	days = uint32(now.Unix() / 86400)

	return centiseconds, days
}

func (n *Native) Stdin() FileHandle  { return FileHandle{console: true, name: "stdin"} }
func (n *Native) Stdout() FileHandle { return FileHandle{rc: nopSeekCloser{os.Stdout}, name: "stdout"} }
func (n *Native) Stderr() FileHandle { return FileHandle{rc: nopSeekCloser{os.Stderr}, name: "stderr"} }
func (n *Native) Stdaux() FileHandle { return FileHandle{name: "stdaux"} } // no host equivalent
func (n *Native) Stdprn() FileHandle { return FileHandle{name: "stdprn"} } // no host equivalent

func (n *Native) Shutdown() {
	if n.console != nil {
		n.console.Restore()
	}
}

// nopSeekCloser adapts an *os.File known never to be sought (stdout/stderr) to the FileHandle
// interface; Seek always fails with ErrCantSeek via SeekFile's error mapping.
type nopSeekCloser struct {
	*os.File
}

func (nopSeekCloser) Seek(int64, int) (int64, error) { return 0, ErrCantSeek }
