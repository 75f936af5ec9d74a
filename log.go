/*
Package dynamo – logging interface.

The registry owns a root Logger; each Table logs through a child carrying
the model name.
*/
package dynamo

import (
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Logger is the interface callers may supply to a Registry.
// Each method receives a structured context map (may be nil).
type Logger interface {
	Trace(message string, ctx map[string]any)
	Info(message string, ctx map[string]any)
	Error(message string, ctx map[string]any)
	Data(message string, ctx map[string]any)
	With(fields map[string]any) Logger
}

// zeroLogger adapts a zerolog.Logger. Data lines are emitted at debug level.
type zeroLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger wraps a zerolog logger.
func NewZerologLogger(zl zerolog.Logger) Logger { return zeroLogger{zl: zl} }

// defaultLogger writes errors only, to stderr.
func defaultLogger() Logger {
	return NewZerologLogger(newZerolog(os.Stderr, zerolog.ErrorLevel))
}

func newZerolog(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Str("name", "dynamo").Logger()
}

func (z zeroLogger) Trace(msg string, ctx map[string]any) { z.zl.Trace().Fields(ctx).Msg(msg) }
func (z zeroLogger) Info(msg string, ctx map[string]any)  { z.zl.Info().Fields(ctx).Msg(msg) }
func (z zeroLogger) Error(msg string, ctx map[string]any) { z.zl.Error().Fields(ctx).Msg(msg) }
func (z zeroLogger) Data(msg string, ctx map[string]any)  { z.zl.Debug().Fields(ctx).Msg(msg) }

func (z zeroLogger) With(fields map[string]any) Logger {
	return zeroLogger{zl: z.zl.With().Fields(fields).Logger()}
}

// FuncLogger wraps a plain function: func(level, message string, ctx map[string]any).
type FuncLogger struct {
	Fn     func(level, message string, ctx map[string]any)
	fields map[string]any
}

func (f FuncLogger) Trace(msg string, ctx map[string]any) { f.Fn("trace", msg, f.merge(ctx)) }
func (f FuncLogger) Data(msg string, ctx map[string]any)  { f.Fn("data", msg, f.merge(ctx)) }
func (f FuncLogger) Info(msg string, ctx map[string]any)  { f.Fn("info", msg, f.merge(ctx)) }
func (f FuncLogger) Error(msg string, ctx map[string]any) { f.Fn("error", msg, f.merge(ctx)) }

func (f FuncLogger) With(fields map[string]any) Logger {
	return FuncLogger{Fn: f.Fn, fields: mergeFields(f.fields, fields)}
}

func (f FuncLogger) merge(ctx map[string]any) map[string]any {
	if len(f.fields) == 0 {
		return ctx
	}
	return mergeFields(f.fields, ctx)
}

func mergeFields(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// nopLogger silently discards everything.
type nopLogger struct{}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Trace(string, map[string]any) {}
func (nopLogger) Data(string, map[string]any)  {}
func (nopLogger) Info(string, map[string]any)  {}
func (nopLogger) Error(string, map[string]any) {}
func (nopLogger) With(map[string]any) Logger   { return nopLogger{} }

// fmtCtx is a quick JSON string for error messages.
func fmtCtx(ctx map[string]any) string {
	b, err := json.Marshal(ctx)
	if err != nil {
		return "{}"
	}
	return string(b)
}
