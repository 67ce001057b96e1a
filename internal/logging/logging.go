// Package logging provides the narrow, injected logging capability used
// throughout the runtime. There is no package-level logger: every
// component that wants to log takes a Logger value explicitly, the same
// way it takes a context.Context.
package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging capability components depend on. namespace
// identifies the component ("interpreter", "binding", "sandbox", ...);
// fields carries structured key/value pairs.
type Logger func(namespace string, msg string, fields map[string]any)

// Nop discards everything. Components default to this when constructed
// with a nil Logger.
func Nop(string, string, map[string]any) {}

// NewZerolog builds a Logger backed by zerolog, writing to w through the
// same zerolog.ConsoleWriter + RFC3339 timestamp format the teacher
// configures at process startup — except here it's bound into a local
// zerolog.Logger value instead of mutating the zerolog global, so two
// Loggers built against two different writers never interfere.
func NewZerolog(w io.Writer) Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	return func(namespace, msg string, fields map[string]any) {
		ev := zl.Info().Str("component", namespace)
		for k, v := range fields {
			ev = ev.Interface(k, v)
		}
		ev.Msg(msg)
	}
}
