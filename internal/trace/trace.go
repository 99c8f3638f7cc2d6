// Package trace implements the message bus's "trace sink" collaborator:
// spec.md §1 specifies it only as a leveled string logger consumed by the
// core, so that's the whole of the interface here.
package trace

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Sink is the leveled string logger the engine and bus use to report
// callback faults (spec §7) and lifecycle events, without depending on a
// concrete logging library.
type Sink interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Format selects the zerolog output encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Zerolog adapts a zerolog.Logger to the Sink contract.
type Zerolog struct {
	logger zerolog.Logger
}

// New builds a Zerolog sink at the given level/format, mirroring the
// teacher's NewLogger (src/logger.go): JSON by default, pretty console
// output for local development, RFC3339 timestamps, caller info attached.
func New(level string, format Format) *Zerolog {
	var output io.Writer = os.Stdout
	if format == FormatPretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(parseLevel(level))

	logger := zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("component", "signalbus").
		Logger()

	return &Zerolog{logger: logger}
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (z *Zerolog) Debugf(format string, args ...interface{}) { z.logger.Debug().Msgf(format, args...) }
func (z *Zerolog) Infof(format string, args ...interface{})  { z.logger.Info().Msgf(format, args...) }
func (z *Zerolog) Warnf(format string, args ...interface{})  { z.logger.Warn().Msgf(format, args...) }

// Errorf logs at error level with a stack trace attached, mirroring the
// teacher's LogErrorWithStack. The engine uses it for internal assertion
// violations (spec §7); callback faults are logged at info level via Infof.
func (z *Zerolog) Errorf(format string, args ...interface{}) {
	z.logger.Error().Str("stack", string(debug.Stack())).Msgf(format, args...)
}

// Noop discards everything; useful for tests and embedders that don't want
// log output.
type Noop struct{}

func (Noop) Debugf(string, ...interface{}) {}
func (Noop) Infof(string, ...interface{})  {}
func (Noop) Warnf(string, ...interface{})  {}
func (Noop) Errorf(string, ...interface{}) {}
