// Package logger is a minimal leveled logger for a single-shot diagnostic
// tool: every line goes to one writer (stdout by default), and warnings and
// errors are prefixed so they can be grepped out of a captured run.
package logger

import (
	"fmt"
	"io"
	"os"
)

type Logger struct {
	level LogLevel
	out   io.Writer
}

func New(level LogLevel, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{level: level, out: out}
}

func (l *Logger) logf(level LogLevel, format string, args ...any) {
	if level < l.level {
		return
	}
	fmt.Fprintf(l.out, level.prefix()+format+"\n", args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.logf(DEBUG, format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.logf(INFO, format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.logf(WARN, format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.logf(ERROR, format, args...)
}
