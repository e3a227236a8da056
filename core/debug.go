package core

import "fmt"

// Logger receives human-readable status messages. They are purely
// observational; nothing in core depends on them being delivered.
// *logrus.Logger and *logrus.Entry satisfy it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}

// debugLogger formats messages and hands them to a DebugWriter.
// Platforms redirect the writer to UART, USB, etc.
type debugLogger struct {
	write   DebugWriter
	verbose bool
}

// NewDebugLogger returns a Logger that writes through w. Debug messages
// are only emitted when verbose is set
func NewDebugLogger(w DebugWriter, verbose bool) Logger {
	if w == nil {
		return nopLogger{}
	}
	return &debugLogger{write: w, verbose: verbose}
}

func (l *debugLogger) Debugf(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.write("debug: " + fmt.Sprintf(format, args...))
}

func (l *debugLogger) Infof(format string, args ...interface{}) {
	l.write(fmt.Sprintf(format, args...))
}

func (l *debugLogger) Warnf(format string, args ...interface{}) {
	l.write("warning: " + fmt.Sprintf(format, args...))
}
