package logger

import "strings"

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func LevelFromString(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// prefix is what a line at this level starts with on the wire. Warnings and
// errors carry the conventional diagnostic prefixes; info lines are bare.
func (l LogLevel) prefix() string {
	switch l {
	case DEBUG:
		return "[debug] "
	case WARN:
		return "Warning: "
	case ERROR:
		return "Error: "
	}
	return ""
}
