// Package xlog is electsim's structured logger. It follows the shape of
// the teacher's "github.com/tos-network/gtos/log" package: a leveled,
// key-value logger that colorizes output when writing to a terminal and
// falls back to plain key=value pairs otherwise.
package xlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a log verbosity level, ordered from most to least severe.
type Level int

const (
	LvlError Level = iota
	LvlWarn
	LvlInfo
	LvlDebug
)

func (l Level) String() string {
	switch l {
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	default:
		return "?"
	}
}

var levelColor = map[Level]*color.Color{
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
}

// Logger writes leveled, key-value formatted records to an output stream.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	maxLevel Level
	color    bool
	withCtx  []any
}

// root is the process-wide default logger, matching the teacher's
// convention of a package-level root logger callers reach for directly.
var root = New(os.Stderr, LvlInfo)

// SetOutput redirects the root logger's output stream; it leaves the
// verbosity unchanged (see SetLevel).
func SetOutput(w io.Writer) { root.mu.Lock(); root.out = w; root.mu.Unlock() }

// SetLevel adjusts the root logger's max verbosity.
func SetLevel(l Level) { root.mu.Lock(); root.maxLevel = l; root.mu.Unlock() }

// New builds a Logger writing to w, auto-detecting terminal color support
// for os.Stdout/os.Stderr via go-isatty, matching the teacher's console
// coloring heuristic.
func New(w io.Writer, max Level) *Logger {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		if useColor {
			w = colorable.NewColorable(f)
		}
	}
	return &Logger{out: w, maxLevel: max, color: useColor}
}

// With returns a child logger that prepends the given key-value pairs to
// every record it emits.
func (l *Logger) With(ctx ...any) *Logger {
	child := &Logger{out: l.out, maxLevel: l.maxLevel, color: l.color}
	child.withCtx = append(append([]any{}, l.withCtx...), ctx...)
	return child
}

func (l *Logger) log(lvl Level, msg string, ctx []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lvl > l.maxLevel {
		return
	}
	var b strings.Builder
	b.WriteString(time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteByte(' ')
	levelTag := fmt.Sprintf("[%-5s]", lvl.String())
	if l.color {
		levelTag = levelColor[lvl].Sprint(levelTag)
	}
	b.WriteString(levelTag)
	b.WriteByte(' ')
	fmt.Fprintf(&b, "[%s] ", Caller(2))
	b.WriteString(msg)
	all := append(append([]any{}, l.withCtx...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	if len(all)%2 == 1 {
		fmt.Fprintf(&b, " %v=MISSING", all[len(all)-1])
	}
	b.WriteByte('\n')
	io.WriteString(l.out, b.String())
}

func (l *Logger) Error(msg string, ctx ...any) { l.log(LvlError, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...any)  { l.log(LvlWarn, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...any)  { l.log(LvlInfo, msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...any) { l.log(LvlDebug, msg, ctx) }

// Error logs msg at ERROR level on the root logger.
func Error(msg string, ctx ...any) { root.log(LvlError, msg, ctx) }

// Warn logs msg at WARN level on the root logger.
func Warn(msg string, ctx ...any) { root.log(LvlWarn, msg, ctx) }

// Info logs msg at INFO level on the root logger.
func Info(msg string, ctx ...any) { root.log(LvlInfo, msg, ctx) }

// Debug logs msg at DEBUG level on the root logger.
func Debug(msg string, ctx ...any) { root.log(LvlDebug, msg, ctx) }

// Caller returns the file:line of the caller skip frames up, useful when a
// log line needs to point at the site that triggered it rather than this
// package.
func Caller(skip int) string {
	c := stack.Caller(skip + 1)
	return fmt.Sprintf("%+v", c)
}
