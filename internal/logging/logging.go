// Package logging wires the engine and its collaborators to a structured,
// low-allocation logger, following the same stumpy-backed logiface.Logger
// construction used throughout the joeycumines/go-utilpkg tree.
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger used across the engine, dispatcher and
// middleware. It is a thin alias so callers don't need to spell out the
// generic stumpy.Event parameter everywhere.
type Logger = logiface.Logger[*stumpy.Event]

// Level mirrors the subset of logiface levels this program actually emits.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelErr   Level = "err"
)

// New builds a Logger writing newline-delimited JSON to w, filtered to the
// given minimum level.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		logiface.WithLevel[*stumpy.Event](toLogifaceLevel(level)),
	)
}

func toLogifaceLevel(level Level) logiface.Level {
	switch level {
	case LevelTrace:
		return logiface.LevelTrace
	case LevelDebug:
		return logiface.LevelDebug
	case LevelWarn:
		return logiface.LevelWarning
	case LevelErr:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
