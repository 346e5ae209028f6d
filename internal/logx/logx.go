// Package logx is a minimal leveled logger over the standard library's
// log package — HyQuery does not pull in a structured-logging framework
// (see DESIGN.md); a small "l.log(level, ...)" wrapper around a single
// *log.Logger is all the lifecycle logging here needs.
package logx

import (
	"fmt"
	"log"
	"os"
)

// Level is a log verbosity threshold, lowest-to-highest.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// ParseLevel normalizes a config string to a Level, defaulting to Info on
// anything unrecognized (config.go logs a warning in that case).
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "error":
		return LevelError, true
	case "warn":
		return LevelWarn, true
	case "info":
		return LevelInfo, true
	case "debug":
		return LevelDebug, true
	default:
		return LevelInfo, false
	}
}

// Logger gates standard-library log output by level. A nil *Logger logs at
// Info through the standard logger; the zero value Logger logs errors only.
type Logger struct {
	level Level
	out   *log.Logger
}

// New creates a Logger writing to stderr at the given level.
func New(level Level) *Logger {
	return &Logger{level: level, out: log.New(os.Stderr, "[hyquery] ", log.LstdFlags)}
}

func (l *Logger) enabled(level Level) bool {
	if l == nil {
		return level <= LevelInfo
	}
	return level <= l.level
}

func (l *Logger) log(level Level, tag, format string, args ...any) {
	if !l.enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l == nil || l.out == nil {
		log.Printf("%s %s", tag, msg)
		return
	}
	l.out.Printf("%s %s", tag, msg)
}

func (l *Logger) Error(format string, args ...any) { l.log(LevelError, "ERROR", format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LevelWarn, "WARN", format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(LevelInfo, "INFO", format, args...) }
func (l *Logger) Debug(format string, args ...any) { l.log(LevelDebug, "DEBUG", format, args...) }
