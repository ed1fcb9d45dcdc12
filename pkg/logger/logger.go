// Package logger provides the leveled logging interface used across the SDK
// and its default zerolog-backed implementation.
package logger

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Logger is the minimal leveled interface the SDK components log through.
// Args are alternating key/value pairs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Zerolog adapts a zerolog.Logger to the Logger interface.
type Zerolog struct {
	logger zerolog.Logger
}

// New builds a Zerolog logger writing to w at the given level.
func New(w io.Writer, level zerolog.Level) *Zerolog {
	return &Zerolog{
		logger: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// FromZerolog wraps an existing zerolog.Logger.
func FromZerolog(l zerolog.Logger) *Zerolog {
	return &Zerolog{logger: l}
}

func (z *Zerolog) Error(msg string, args ...any) { emit(z.logger.Error(), msg, args) }
func (z *Zerolog) Warn(msg string, args ...any)  { emit(z.logger.Warn(), msg, args) }
func (z *Zerolog) Info(msg string, args ...any)  { emit(z.logger.Info(), msg, args) }
func (z *Zerolog) Debug(msg string, args ...any) { emit(z.logger.Debug(), msg, args) }

func emit(e *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		e = e.Interface(key, args[i+1])
	}
	e.Msg(msg)
}

// Nop discards everything. It is the default for components constructed
// without an explicit logger.
type Nop struct{}

func (Nop) Error(string, ...any) {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Info(string, ...any)  {}
func (Nop) Debug(string, ...any) {}
