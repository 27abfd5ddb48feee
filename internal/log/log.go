// Package log provides the structured logging used throughout the emulator core.
package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"
)

var (
	// DefaultLogger returns the default, package-global logger. Components should call
	// DefaultLogger once during construction and hold onto the result; the default does not
	// change at runtime.
	DefaultLogger = func() *Logger { return NewFormattedLogger(os.Stderr) }

	// SetDefault overrides the slog default logger.
	SetDefault = slog.SetDefault

	// Level holds the current logging level and can be changed at runtime, e.g. from a debugger
	// front-end toggling Settings.Debug.
	Level = &slog.LevelVar{}
)

// NewFormattedLogger returns a logger that writes grouped, human-scannable records to out.
func NewFormattedLogger(out io.Writer) *Logger {
	return slog.New(NewHandler(out))
}

// Handler implements slog.Handler, rendering each record as a block of upper-cased field names
// and values rather than slog's default single-line form; the extra vertical space pays for
// itself once records start carrying nested register/memory groups.
type Handler struct {
	mut *sync.Mutex
	out io.Writer

	opts  *slog.HandlerOptions
	group string
	attrs []Attr
}

// HandlerOptions are the default options for loggers created by this package.
var HandlerOptions = &slog.HandlerOptions{
	AddSource:   true,
	Level:       Level,
	ReplaceAttr: func(_ []string, attr Attr) Attr { return attr },
}

// NewHandler creates a Handler that writes to out using HandlerOptions.
func NewHandler(out io.Writer) *Handler {
	return &Handler{
		out:  out,
		mut:  new(sync.Mutex),
		opts: HandlerOptions,
	}
}

// Enabled reports whether level is at or above the handler's configured level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle formats and writes a single log record.
//
// See the [slog handler guide] for the subtle rules a well-behaved handler must follow.
//
// [slog handler guide]: https://github.com/golang/example/tree/master/slog-handler-guide
func (h *Handler) Handle(_ context.Context, rec slog.Record) error {
	out := bytes.NewBuffer(make([]byte, 0, 4096))

	if !rec.Time.IsZero() {
		fmt.Fprintf(out, "%10s : %s\n", "TIMESTAMP", rec.Time.Format(time.RFC3339Nano))
	}

	fmt.Fprintf(out, "%10s : %s\n", "LEVEL", rec.Level.String())

	if h.opts.AddSource && rec.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{rec.PC})
		f, _ := frames.Next()
		_, file := path.Split(f.File)
		fmt.Fprintf(out, "%10s : %s:%d\n", "SOURCE", file, f.Line)

		if f.Func != nil {
			parts := strings.Split(f.Function, "/")
			fmt.Fprintf(out, "%10s : %s\n", "FUNCTION", parts[len(parts)-1])
		}
	}

	fmt.Fprintf(out, "%10s : %s\n", "MESSAGE", rec.Message)

	for _, a := range h.attrs {
		if err := h.appendAttr(out, a, false); err != nil {
			return err
		}
	}

	var attrErr error

	rec.Attrs(func(attr Attr) bool {
		attrErr = h.appendAttr(out, attr, false)
		return attrErr == nil
	})

	if attrErr != nil {
		return attrErr
	}

	fmt.Fprintln(out)

	h.mut.Lock()
	defer h.mut.Unlock()

	_, err := h.out.Write(out.Bytes())

	return err
}

// WithGroup returns a handler that nests subsequent attributes under name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	attrs := make([]Attr, len(h.attrs))
	copy(attrs, h.attrs)

	return &Handler{mut: h.mut, out: h.out, opts: h.opts, attrs: attrs, group: name}
}

// WithAttrs returns a handler that always includes attrs in addition to the record's own.
func (h *Handler) WithAttrs(attrs []Attr) slog.Handler {
	as := make([]Attr, 0, len(h.attrs)+len(attrs))
	as = append(as, h.attrs...)
	as = append(as, attrs...)

	return &Handler{out: h.out, mut: h.mut, opts: h.opts, attrs: as}
}

func (h *Handler) appendAttr(out io.Writer, attr slog.Attr, grouped bool) error {
	attr.Value = attr.Value.Resolve()
	attr = h.opts.ReplaceAttr([]string{h.group}, attr)

	key, value := strings.ToUpper(attr.Key), attr.Value

	switch {
	case attr.Equal(Attr{}):
		return nil
	case value.Kind() != slog.KindGroup:
		if grouped {
			fmt.Fprint(out, "  ")
		}

		_, err := fmt.Fprintf(out, "%10s : %v\n", key, value.Any())

		return err
	case key != "":
		if _, err := fmt.Fprintf(out, "%10s :\n", key); err != nil {
			return err
		}

		h.group = key

		for _, a := range value.Group() {
			if err := h.appendAttr(out, a, true); err != nil {
				return err
			}
		}
	default:
		for _, a := range value.Group() {
			if err := h.appendAttr(out, a, grouped); err != nil {
				return err
			}
		}
	}

	return nil
}

type (
	Attr   = slog.Attr
	Logger = slog.Logger
	Value  = slog.Value
)

var (
	String      = slog.String
	StringValue = slog.StringValue
	Int         = slog.Int
	Uint64      = slog.Uint64
	Group       = slog.Group
	GroupValue  = slog.GroupValue
	Any         = slog.Any
	AnyValue    = slog.AnyValue
)

const (
	Debug = slog.LevelDebug
	Info  = slog.LevelInfo
	Warn  = slog.LevelWarn
	Error = slog.LevelError
)

// Registers builds a structured attribute group for a CPU register dump: D0-D7, A0-A7, PC, and
// SR packed two rows of hex rather than sixteen separate fields, since that is how a trace reader
// actually wants to scan a register snapshot.
func Registers(d, a [8]uint32, pc uint32, sr uint16) Attr {
	return Group("registers",
		String("d0-d7", hexRow(d[:])),
		String("a0-a7", hexRow(a[:])),
		String("pc", fmt.Sprintf("%06x", pc)),
		String("sr", fmt.Sprintf("%04x", sr)),
	)
}

func hexRow(regs []uint32) string {
	var b strings.Builder

	for i, v := range regs {
		if i > 0 {
			b.WriteByte(' ')
		}

		fmt.Fprintf(&b, "%08x", v)
	}

	return b.String()
}

// MCBBlock builds a structured attribute group describing one memory control block, for
// _MALLOC/_MFREE/_SETBLOCK tracing.
func MCBBlock(addr, parent, end, next uint32) Attr {
	return Group("mcb",
		String("addr", fmt.Sprintf("%06x", addr)),
		String("parent", fmt.Sprintf("%06x", parent)),
		String("end", fmt.Sprintf("%06x", end)),
		String("next", fmt.Sprintf("%06x", next)),
	)
}
