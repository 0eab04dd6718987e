// Package debug builds the zerolog loggers used by the commands.
package debug

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// TimeFormat is millisecond precision without a zone.
const TimeFormat = "2006-01-02T15:04:05.000Z"

type TimeHook struct {
	Format string
	// Now is replaced in tests.
	Now func() time.Time
}

func (t TimeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	format := t.Format
	if format == "" {
		format = TimeFormat
	}
	e.Str("time", now().Format(format))
}

// CallerHook adds "caller" with the first frame outside zerolog.
type CallerHook struct {
	WithColor bool
}

func (c CallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		pkg, fn := SplitFuncName(f.Function)
		if !strings.HasPrefix(pkg, "github.com/rs/zerolog") && !strings.Contains(fn, "CallerHook") {
			e.Str("caller", FormatCaller(pkg, f.File, f.Line, c.WithColor))
			return
		}
		if !more {
			return
		}
	}
}

// SplitFuncName splits a runtime function name such as
// "github.com/a/b.(*T).M" into its package and function parts.
func SplitFuncName(name string) (pkg, function string) {
	lastSlash := strings.LastIndexByte(name, '/')
	if lastSlash < 0 {
		lastSlash = 0
	}
	firstDot := strings.IndexByte(name[lastSlash:], '.')
	if firstDot < 0 {
		return name, ""
	}
	firstDot += lastSlash
	return name[:firstDot], name[firstDot+1:]
}

func FormatCaller(pkg, path string, line int, colorize bool) string {
	file := filepath.Base(path)
	if colorize {
		sep := color.New(color.Faint).Sprint(":")
		return fmt.Sprintf("%s%s%s%s%s", pkg, sep,
			color.New(color.Bold).Sprint(file), sep,
			color.New(color.FgHiRed, color.Bold).Sprintf("%d", line))
	}
	return fmt.Sprintf("%s:%s:%d", pkg, file, line)
}

type Options struct {
	Level zerolog.Level
	// Console switches from JSON lines to zerolog's human readable output.
	Console bool
	Color   bool
	// Caller adds the caller hook.
	Caller bool
}

// NewLogger writes to w with the time hook and, optionally, the caller hook.
func NewLogger(w io.Writer, opts Options) zerolog.Logger {
	out := w
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: w, NoColor: !opts.Color, TimeFormat: TimeFormat}
	}
	logger := zerolog.New(out).Level(opts.Level).Hook(TimeHook{})
	if opts.Caller {
		logger = logger.Hook(CallerHook{WithColor: opts.Color && opts.Console})
	}
	return logger
}
