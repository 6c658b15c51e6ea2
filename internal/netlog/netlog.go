// Package netlog wraps zerolog with a small five-level vocabulary
// (Debug/Info/Warn/Error/Success) and a colored console writer. Every
// drop event and session summary is a set of named fields rather than
// a format string.
package netlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a component-scoped wrapper around a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New returns a console-writing logger tagged with component (e.g.
// "emulator", "sender", "requester", "routerd").
func New(component string) *Logger {
	return NewTo(os.Stderr, component)
}

// NewTo returns a console-formatted logger writing to w instead of
// stderr. To write to both the console and a file, use NewMulti.
func NewTo(w io.Writer, component string) *Logger {
	writer := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: false}
	zl := zerolog.New(writer).Level(zerolog.InfoLevel).With().Timestamp().Str("component", component).Logger()
	return &Logger{zl: zl}
}

// NewMulti writes every event to both stderr (colored console) and w
// (typically a plain log file), matching the emulator's -l flag while
// keeping interactive output on the console.
func NewMulti(w io.Writer, component string) *Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05", NoColor: false}
	zl := zerolog.New(zerolog.MultiLevelWriter(console, w)).Level(zerolog.InfoLevel).With().Timestamp().Str("component", component).Logger()
	return &Logger{zl: zl}
}

// WithDebug returns a copy of the logger with debug-level events
// enabled. Default loggers run at info level and suppress them.
func (l *Logger) WithDebug() *Logger {
	return &Logger{zl: l.zl.Level(zerolog.DebugLevel)}
}

// Event is a chainable, not-yet-written log line. Field methods mutate
// and return the same Event; Send writes it.
type Event struct {
	ev  *zerolog.Event
	msg string
}

func (e *Event) Str(key, val string) *Event {
	if e == nil {
		return nil
	}
	e.ev = e.ev.Str(key, val)
	return e
}

func (e *Event) Int(key string, val int) *Event {
	if e == nil {
		return nil
	}
	e.ev = e.ev.Int(key, val)
	return e
}

func (e *Event) Uint32(key string, val uint32) *Event {
	if e == nil {
		return nil
	}
	e.ev = e.ev.Uint32(key, val)
	return e
}

func (e *Event) Uint8(key string, val byte) *Event {
	if e == nil {
		return nil
	}
	e.ev = e.ev.Uint8(key, val)
	return e
}

func (e *Event) Dur(key string, val time.Duration) *Event {
	if e == nil {
		return nil
	}
	e.ev = e.ev.Dur(key, val)
	return e
}

func (e *Event) Err(err error) *Event {
	if e == nil {
		return nil
	}
	e.ev = e.ev.Err(err)
	return e
}

// Send writes the event with its stored message.
func (e *Event) Send() {
	if e == nil {
		return
	}
	e.ev.Msg(e.msg)
}

func (l *Logger) Debug(msg string) *Event { return &Event{ev: l.zl.Debug(), msg: msg} }
func (l *Logger) Info(msg string) *Event  { return &Event{ev: l.zl.Info(), msg: msg} }
func (l *Logger) Warn(msg string) *Event  { return &Event{ev: l.zl.Warn(), msg: msg} }
func (l *Logger) Error(msg string) *Event { return &Event{ev: l.zl.Error(), msg: msg} }

// Success logs at info level with a success=true field, rounding out
// the five-level vocabulary on top of zerolog's four.
func (l *Logger) Success(msg string) *Event {
	return &Event{ev: l.zl.Info().Bool("success", true), msg: msg}
}

// Fatal logs at fatal level and exits the process.
func (l *Logger) Fatal(msg string) *Event {
	return &Event{ev: l.zl.Fatal(), msg: msg}
}
