// Package log provides the structured log handler shared by the hypervisor command and its
// devices.
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
	// DefaultLogger returns a new formatted logger writing to os.Stderr, filtered by LogLevel.
	// Each call builds a fresh logger; it does not return the logger installed with SetDefault.
	DefaultLogger = func() *Logger { return NewFormattedLogger(os.Stderr) }

	// SetDefault overrides the default logger used by the standard log/slog package.
	SetDefault = slog.SetDefault

	// LogLevel holds the active log level and can be changed at runtime, e.g. from a CLI flag.
	LogLevel = &slog.LevelVar{}
)

// NewFormattedLogger returns a logger that writes formatted, multi-line records to out.
func NewFormattedLogger(out io.Writer) *Logger {
	handler := NewHandler(out)
	return slog.New(handler)
}

// Handler implements slog.Handler to produce a field-per-line log format, readable when a guest
// trap and its emulation are being traced side by side.
type Handler struct {
	mut *sync.Mutex // Synchronizes writer.
	out io.Writer

	opts  *slog.HandlerOptions
	group string
	attrs []Attr
}

// Options configures the default handler.
var Options = &slog.HandlerOptions{
	AddSource:   true,
	Level:       LogLevel,
	ReplaceAttr: func(_ []string, attr Attr) Attr { return attr },
}

// NewHandler creates and initializes a Handler writing to out.
func NewHandler(out io.Writer) *Handler {
	h := Handler{
		out:  out,
		mut:  new(sync.Mutex),
		opts: Options,
	}

	return &h
}

// Enabled reports whether level is at or above the handler's configured level.
func (h *Handler) Enabled(ctx context.Context, level Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle formats and writes a log record. See the [slog handler guide] for the contract a
// handler must satisfy.
//
// [slog handler guide]: https://github.com/golang/example/tree/master/slog-handler-guide
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	buf := make([]byte, 0, 4096)
	out := bytes.NewBuffer(buf)

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
			splits := strings.Split(f.Function, "/")
			fmt.Fprintf(out, "%10s : %s\n", "FUNCTION", splits[len(splits)-1])
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
		if err := h.appendAttr(out, attr, false); err != nil {
			attrErr = err
			return false
		}
		return true
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

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	attrs := make([]Attr, len(h.attrs))
	copy(attrs, h.attrs)

	return &Handler{
		mut:   h.mut,
		out:   h.out,
		opts:  h.opts,
		attrs: attrs,
		group: name,
	}
}

// WithAttrs returns a new handler that combines the handler's attributes with those given.
func (h *Handler) WithAttrs(attrs []Attr) slog.Handler {
	as := make([]Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(as, h.attrs)
	as = append(as, attrs...)

	return &Handler{
		out:   h.out,
		mut:   h.mut,
		opts:  h.opts,
		attrs: as,
	}
}

func (h *Handler) appendAttr(out io.Writer, attr slog.Attr, grouped bool) error {
	var err error

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

		_, err = fmt.Fprintf(out, "%10s : %v\n", key, value.Any())

		return err
	case value.Kind() == slog.KindGroup && key != "":
		_, err = fmt.Fprintf(out, "%10s :\n", key)
		grouped = true
		h.group = key

		if err != nil {
			return err
		}

		for _, a := range value.Group() {
			if err := h.appendAttr(out, a, grouped); err != nil {
				return err
			}
		}

	case attr.Value.Kind() == slog.KindGroup && key == "":
		for _, a := range value.Group() {
			if err := h.appendAttr(out, a, grouped); err != nil {
				return err
			}
		}
	}

	return nil
}

// Loggable is implemented by components that accept a logger after construction, such as
// devices attached to the MMIO bus.
type Loggable interface {
	WithLogger(*Logger)
}

type (
	Attr   = slog.Attr
	Level  = slog.Level
	Logger = slog.Logger
	Value  = slog.Value
)

var (
	String      = slog.String
	StringValue = slog.StringValue
	Group       = slog.Group
	GroupValue  = slog.GroupValue
	Any         = slog.Any
	AnyValue    = slog.AnyValue
	Uint64      = slog.Uint64
)

const (
	Debug = slog.LevelDebug
	Info  = slog.LevelInfo
	Warn  = slog.LevelWarn
	Error = slog.LevelError
)
