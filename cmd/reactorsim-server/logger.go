package main

import (
	"io"
	"log"
	"os"
	"strings"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return "unknown"
	}
}

// parseLogLevel is case-insensitive; unknown levels fall back to info.
func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger writes leveled, prefixed lines through a stdlib log.Logger.
type Logger struct {
	level LogLevel
	out   *log.Logger
}

// NewLogger creates a logger writing to stderr at the given level.
func NewLogger(level string) *Logger {
	return NewLoggerTo(os.Stderr, level)
}

// NewLoggerTo creates a logger writing to w.
func NewLoggerTo(w io.Writer, level string) *Logger {
	return &Logger{
		level: parseLogLevel(level),
		out:   log.New(w, "", log.LstdFlags),
	}
}

func (l *Logger) Level() LogLevel { return l.level }

func (l *Logger) logf(level LogLevel, format string, v ...any) {
	if level < l.level {
		return
	}
	l.out.Printf("["+strings.ToUpper(level.String())+"] "+format, v...)
}

func (l *Logger) Debugf(format string, v ...any) { l.logf(LogLevelDebug, format, v...) }
func (l *Logger) Infof(format string, v ...any)  { l.logf(LogLevelInfo, format, v...) }
func (l *Logger) Warnf(format string, v ...any)  { l.logf(LogLevelWarn, format, v...) }
func (l *Logger) Errorf(format string, v ...any) { l.logf(LogLevelError, format, v...) }

// Fatalf logs regardless of level and exits.
func (l *Logger) Fatalf(format string, v ...any) {
	l.out.Fatalf("[FATAL] "+format, v...)
}
