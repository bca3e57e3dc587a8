// Package logger provides structured logging with custom levels and formatting
// for the Jukebox RPC client.
//
// Log output format:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2=value2
//
// Custom levels beyond the standard slog set:
//   - LevelTrace (-8): verbose diagnostic tracing
//   - LevelFail  (12): unrecoverable errors
//
// Attributes whose key is "token", at any group depth, are redacted.
package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

// Levels in ascending order. Debug through Error are the slog values.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelFail  = slog.Level(12)
)

// levelNames pairs each level with its config and display name, ascending.
var levelNames = []struct {
	level slog.Level
	name  string
}{
	{LevelTrace, "trace"},
	{LevelDebug, "debug"},
	{LevelInfo, "info"},
	{LevelWarn, "warn"},
	{LevelError, "error"},
	{LevelFail, "fail"},
}

// levelName returns the display name of the lowest named level at or above l.
func levelName(l slog.Level) string {
	for _, ln := range levelNames {
		if l <= ln.level {
			return strings.ToUpper(ln.name)
		}
	}
	return "FAIL"
}

// ParseLevel maps a config value such as "debug" to its level, ignoring
// case. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	for _, ln := range levelNames {
		if strings.EqualFold(s, ln.name) {
			return ln.level
		}
	}
	return LevelInfo
}

// ///////////////////////////////////////////////
// Constructor
// ///////////////////////////////////////////////

// Options configures [New].
type Options struct {
	// Path is the log file; it rotates at MaxSizeMB.
	Path string
	// MaxSizeMB is the rotation threshold in megabytes.
	MaxSizeMB int
	// Level is the minimum level. Keep the pointer to change it later.
	Level *slog.LevelVar
	// Stderr, when set, receives a copy of every line (headless mode).
	Stderr io.Writer
}

// New returns a logger writing to the rotating file at opts.Path, and to
// opts.Stderr as well when set. Close the returned io.Closer on exit.
func New(opts Options) (*slog.Logger, io.Closer) {
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: keepBackups,
	}

	var w io.Writer = lj
	if opts.Stderr != nil {
		w = io.MultiWriter(lj, opts.Stderr)
	}

	var level slog.Leveler = LevelInfo
	if opts.Level != nil {
		level = opts.Level
	}
	return slog.New(NewHandler(w, level)), lj
}

// keepBackups is how many rotated files lumberjack retains.
const keepBackups = 2

// Trace logs at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs at LevelFail.
func Fail(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFail, msg, args...)
}
